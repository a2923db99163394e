// QEMU "virt" RISC-V machine support
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virt

import (
	_ "unsafe"
)

// ramStart and ramSize describe the RAM range the Go runtime may use
// for its own heap and goroutine stacks. The range ends exactly where
// the virtqueue ring region begins (platform.RingRegionBase), so the
// garbage collector can never be handed a pointer into memory the
// virtio-blk driver treats as DMA-owned.
//
//go:linkname ramStart runtime.ramStart
var ramStart uint64 = 0x80000000

//go:linkname ramSize runtime.ramSize
var ramSize uint32 = 0x00070000
