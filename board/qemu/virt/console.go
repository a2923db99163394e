// QEMU "virt" RISC-V machine support
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virt

import (
	_ "unsafe"
)

// printk hooks the runtime's low-level console output (used for early
// panics and print/println before the board's own diagnostic helpers
// are reachable) to the board's UART.
//
//go:linkname printk runtime/goos.Printk
func printk(c byte) {
	UART0.Tx(c)
}
