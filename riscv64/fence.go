// RISC-V 64-bit processor support
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package riscv64

// defined in fence.s
func fence()

// Fence issues a full-system memory fence (`fence iorw,iorw`). The
// virtqueue's producer/consumer protocol only needs the weaker
// acquire/release forms at most call sites, but a single conservative
// full fence is never incorrect, only potentially slower, and keeps
// this package's surface to the one barrier primitive the rest of the
// tree actually needs: ordering MMIO and DMA-visible memory accesses
// around the notify and completion-polling boundaries.
func Fence() {
	fence()
}
