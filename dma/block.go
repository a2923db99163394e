// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

import (
	"reflect"
	"unsafe"
)

// alignUp rounds up size to the next multiple of a (a must be a power of
// 2); word alignment is always enforced to keep unsafe.Pointer
// conversions valid for any field width this repository stores in DMA
// memory (virtqueue descriptors, ring indices, ELF header fields).
func alignUp(size, a int) int {
	if a < 4 {
		a = 4
	}

	return (size + a - 1) &^ (a - 1)
}

// alloc finds the first free block large enough to satisfy size (after
// alignment), splitting it if it is larger than required, and returns
// a used block describing the allocation. Must be called with the
// region locked.
func (dma *Region) alloc(size int, a int) *block {
	size = alignUp(size, a)

	for e := dma.freeBlocks.Front(); e != nil; e = e.Next() {
		fb := e.Value.(*block)

		if fb.size < size {
			continue
		}

		if fb.size > size {
			rem := &block{
				addr: fb.addr + uint64(size),
				size: fb.size - size,
			}
			dma.freeBlocks.InsertAfter(rem, e)
		}

		dma.freeBlocks.Remove(e)

		return &block{
			addr: fb.addr,
			size: size,
		}
	}

	panic("out of DMA memory")
}

// free returns a used block to the free list, coalescing it with an
// adjacent free block when possible. Must be called with the region
// locked.
func (dma *Region) free(b *block) {
	for e := dma.freeBlocks.Front(); e != nil; e = e.Next() {
		fb := e.Value.(*block)

		if fb.addr+uint64(fb.size) == b.addr {
			fb.size += b.size
			return
		}

		if b.addr+uint64(b.size) == fb.addr {
			fb.addr = b.addr
			fb.size += b.size
			return
		}
	}

	dma.freeBlocks.PushBack(&block{addr: b.addr, size: b.size})
}

func (b *block) slice() []byte {
	var buf []byte

	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&buf))
	hdr.Data = uintptr(b.addr)
	hdr.Len = b.size
	hdr.Cap = b.size

	return buf
}

func (b *block) write(off int, buf []byte) {
	copy(b.slice()[off:], buf)
}

func (b *block) read(off int, buf []byte) {
	copy(buf, b.slice()[off:off+len(buf)])
}
