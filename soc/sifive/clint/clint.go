// Core-Local Interruptor (CLINT) driver
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package clint implements a driver for the Core-Local Interruptor
// block found on QEMU's "virt" machine, adopting the same MTIME/
// MTIMECMP layout as the SiFive FU540 CLINT this package is adapted
// from.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=riscv64`
// as supported by the TamaGo framework for bare metal Go on RISC-V SoCs.
package clint

import (
	"github.com/usbarmory/virtio-boot/internal/reg"
)

// CLINT registers, relative to Base.
const (
	MSIP     = 0x0000
	MTIMECMP = 0x4000
	MTIME    = 0xbff8
)

// CLINT represents a Core-Local Interruptor instance.
type CLINT struct {
	// Base register
	Base uint64
	// CPU real time clock
	RTCCLK uint64
	// Timer offset in nanoseconds
	TimerOffset int64
}

// Mtime returns the number of cycles counted from the RTCCLK input.
func (hw *CLINT) Mtime() uint64 {
	return reg.Read64(hw.Base + MTIME)
}

// SetTimer sets the timer to the argument nanoseconds value, recording
// only the software offset used by Nanotime; it does not arm a timer
// interrupt.
func (hw *CLINT) SetTimer(t int64) {
	hw.TimerOffset = t - hw.Nanotime()
}

// ArmTimer programs MTIMECMP for hart 0 so that a machine timer
// interrupt fires once Mtime() reaches the given absolute cycle count.
// This backs the optional SBI Timer extension; the bootloader itself
// never enables timer interrupts on its own boot path.
func (hw *CLINT) ArmTimer(cycles uint64) {
	reg.Write64(hw.Base+MTIMECMP, cycles)
}

// DisarmTimer sets MTIMECMP for hart 0 to its maximum value, the
// conventional way to mask a pending machine timer interrupt without
// touching the global interrupt-enable CSR.
func (hw *CLINT) DisarmTimer() {
	reg.Write64(hw.Base+MTIMECMP, ^uint64(0))
}
