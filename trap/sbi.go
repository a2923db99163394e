// Optional SBI trap stub
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package trap implements the optional SBI-like ecall handler a
// resident bootloader can install to keep serving the kernel after
// handoff. It is optional and takes effect only once a caller runs
// Stub.Install; cmd/bootloader does not install it and always jumps
// away to the kernel.
package trap

import (
	"github.com/usbarmory/virtio-boot/riscv64"
	"github.com/usbarmory/virtio-boot/soc/ns16550"
	"github.com/usbarmory/virtio-boot/soc/sifive/clint"
	"github.com/usbarmory/virtio-boot/status"
)

// SBI extension ids this stub recognizes.
const (
	ExtBase         = 0x10
	ExtLegacyPutchar = 0x01
	ExtTimer         = 0x54494D45 // "TIME"
	ExtSystemReset   = 0x53525354 // "SRST"
)

// SBI error codes, Base extension.
const (
	sbiSuccess     = 0
	sbiNotSupported = -2
)

// defined in sbi_riscv64.s
func read_a6() uint64
func read_a7() uint64
func write_a0(uint64)
func write_a1(uint64)
func advance_sepc()

// Stub fields the loaded kernel's SBI-like ecalls.
type Stub struct {
	console *ns16550.UART
	timer   *clint.CLINT
}

var active *Stub

// New returns a Stub that answers console output through uart and
// timer requests through timer.
func New(uart *ns16550.UART, timer *clint.CLINT) *Stub {
	return &Stub{console: uart, timer: timer}
}

// Install registers the stub as the CPU's supervisor-mode trap
// handler.
func (s *Stub) Install(cpu *riscv64.CPU) {
	active = s
	cpu.SetSupervisorExceptionHandler(handle)
}

// handle is vectored to directly by the supervisor trap hardware; it
// dispatches on the extension id in a7 and, for recognized calls that
// take an argument, the value in a6.
func handle() {
	if active == nil {
		advance_sepc()
		return
	}

	ext := read_a7()
	arg := read_a6()
	result := int64(sbiNotSupported)

	switch ext {
	case ExtBase:
		result = sbiSuccess
	case ExtLegacyPutchar:
		active.console.Tx(byte(arg))
		result = sbiSuccess
	case ExtTimer:
		if active.timer != nil {
			active.timer.ArmTimer(arg)
		}
		result = sbiSuccess
	case ExtSystemReset:
		for {
			// shutdown: spin forever, interrupts already masked
			// by the trap entry.
		}
	}

	// write_a0 must be the last register write before advance_sepc:
	// the value only survives in X10 until the next call or runtime
	// safepoint.
	write_a0(uint64(result))
	advance_sepc()
}

// Error reports an unsupported extension as a status.Error, used by
// callers that want the ecall dispatch result as a normal Go error
// rather than via the raw SBI return convention.
func Error(ext uint64) error {
	return status.Newf("trap", status.InvalidParam, "unsupported SBI extension")
}
