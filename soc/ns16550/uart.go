// 16550-compatible UART driver
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ns16550 implements a minimal driver for the 16550-compatible
// UART exposed by QEMU's "virt" machine. Only transmit is used by this
// bootloader; receive is implemented for completeness and symmetry
// with the teacher's other console drivers but is never exercised by
// the boot path.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=riscv64`
// as supported by the TamaGo framework for bare metal Go.
package ns16550

import (
	"github.com/usbarmory/virtio-boot/internal/reg"
)

// Register offsets, relative to the UART base address (DLAB=0 view).
const (
	RBR = 0x00 // receiver buffer register (read)
	THR = 0x00 // transmit holding register (write)
	IER = 0x01 // interrupt enable register
	FCR = 0x02 // FIFO control register
	LCR = 0x03 // line control register
	MCR = 0x04 // modem control register
	LSR = 0x05 // line status register

	LSR_DR   = 0 // data ready
	LSR_THRE = 5 // transmit holding register empty
	LSR_TEMT = 6 // transmitter empty
)

// UART represents a 16550-compatible serial port instance.
type UART struct {
	// Base is the peripheral's physical base address.
	Base uint64

	thr uint64
	rbr uint64
	lsr uint64
}

// Init computes the instance's register addresses. QEMU's 16550 model
// needs no baud rate or line discipline programming to work under
// virtualization, so Init performs no register writes of its own.
func (hw *UART) Init() {
	if hw.Base == 0 {
		panic("invalid UART controller instance")
	}

	hw.thr = hw.Base + THR
	hw.rbr = hw.Base + RBR
	hw.lsr = hw.Base + LSR
}

func (hw *UART) txReady() bool {
	return reg.IsSet8(hw.lsr, LSR_THRE)
}

func (hw *UART) rxReady() bool {
	return reg.IsSet8(hw.lsr, LSR_DR)
}

// Tx transmits a single byte to the serial port, spinning until the
// transmit holding register is empty.
func (hw *UART) Tx(c byte) {
	for !hw.txReady() {
		// busy-spin: single-hart, no scheduler to yield to before
		// the Go runtime is up.
	}

	reg.Write8(hw.thr, c)
}

// Rx receives a single byte from the serial port, if any is pending.
func (hw *UART) Rx() (c byte, valid bool) {
	if !hw.rxReady() {
		return
	}

	return reg.Get8(hw.rbr), true
}

// Write transmits buf to the serial port, implementing io.Writer.
func (hw *UART) Write(buf []byte) (n int, err error) {
	for n = 0; n < len(buf); n++ {
		hw.Tx(buf[n])
	}

	return
}

// WriteString transmits s to the serial port.
func (hw *UART) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		hw.Tx(s[i])
	}
}
