// Machine-to-supervisor boot handoff
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package boot implements the final, never-returning jump from the
// bootloader to the loaded kernel, with the hart id and device-tree
// blob pointer placed in the argument registers the kernel expects.
package boot

// jump is implemented in handoff_riscv64.s. It disables interrupts,
// loads hartID into a0 and dtb into a1, and performs an unconditional
// indirect jump to entry. It establishes no stack frame between
// argument setup and the jump and never returns.
func jump(entry uint64, hartID uint64, dtb uint64)

// Handoff transfers control to the kernel at entry, with hartID in
// argument register 0 and dtb (the device-tree blob's physical
// address) in argument register 1, per the RV64 supervisor handoff
// convention. It does not return.
func Handoff(entry uint64, hartID uint64, dtb uint64) {
	jump(entry, hartID, dtb)
}
