// Segment materialization into physical RAM
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import (
	"github.com/usbarmory/virtio-boot/internal/reg"
)

// PhysicalMemory implements SegmentWriter over identity-mapped
// physical RAM using explicit single-byte stores through an
// unsafe.Pointer. A plain slice copy or runtime.memmove would be legal
// for the compiler to elide here, since nothing in this program ever
// reads the destination back before jumping away to the kernel;
// routing every store through reg.StoreByte keeps each one an opaque,
// observable side effect.
type PhysicalMemory struct{}

// WriteAt copies data to addr one byte at a time.
func (PhysicalMemory) WriteAt(addr uint64, data []byte) {
	for i, b := range data {
		reg.StoreByte(addr+uint64(i), b)
	}
}

// ZeroAt stores n zero bytes starting at addr.
func (PhysicalMemory) ZeroAt(addr uint64, n uint64) {
	for i := uint64(0); i < n; i++ {
		reg.StoreByte(addr+i, 0)
	}
}
