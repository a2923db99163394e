// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dma provides primitives for direct memory allocation and
// alignment, used in bare metal device driver operation to avoid
// passing Go pointers for DMA purposes.
//
// Unlike the teacher's ARM-targeted version (32-bit addresses only),
// this package carries addresses as uint64 throughout: RISC-V64
// physical addresses, the virtqueue's 64-bit descriptor field and the
// platform's fixed region bases are all native 64-bit quantities.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=riscv64`
// as supported by the TamaGo framework for bare metal Go on RISC-V SoCs.
package dma

import (
	"container/list"
	"reflect"
	"sync"
	"unsafe"
)

type block struct {
	// pointer address
	addr uint64
	// buffer size
	size int
	// distinguish regular (`Alloc`/`Free`) and reserved
	// (`Reserve`/`Release`) blocks.
	res bool
}

// Region represents a memory region allocated for DMA purposes.
type Region struct {
	sync.Mutex

	Start uint64
	Size  int

	freeBlocks *list.List
	usedBlocks map[uint64]*block
}

var dma *Region

// Init initializes a memory region for DMA buffer allocation, the
// application must guarantee that the passed memory range is never
// used by the Go runtime (defining runtime.ramStart and
// runtime.ramSize accordingly) nor by another Region.
//
// A region sized exactly to its expected allocation gives its first
// Reserve() call the region's Start address for free, which is how
// this repository pins the virtqueue ring region and the staging
// buffer to their architecturally fixed physical addresses without a
// separate "fixed address" allocation mode.
func (dma *Region) Init() {
	b := &block{
		addr: dma.Start,
		size: dma.Size,
	}

	dma.Lock()
	defer dma.Unlock()

	dma.freeBlocks = list.New()
	dma.freeBlocks.PushFront(b)

	dma.usedBlocks = make(map[uint64]*block)
}

// Reserve allocates a slice of bytes for DMA purposes, by placing its
// data within the DMA region, with optional alignment. It returns the
// slice along with its data allocation address. The buffer can be
// freed up with Release().
func (dma *Region) Reserve(size int, align int) (addr uint64, buf []byte) {
	if size == 0 {
		return
	}

	dma.Lock()
	defer dma.Unlock()

	b := dma.alloc(size, align)
	b.res = true

	dma.usedBlocks[b.addr] = b

	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&buf))
	hdr.Data = uintptr(b.addr)
	hdr.Len = size
	hdr.Cap = hdr.Len

	return b.addr, buf
}

// Reserved returns whether a slice of bytes data is allocated within
// the DMA buffer region, it is used to determine whether the passed
// buffer has been previously allocated by this package with Reserve().
func (dma *Region) Reserved(buf []byte) (res bool, addr uint64) {
	if len(buf) == 0 {
		return
	}

	addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	res = addr >= dma.Start && addr+uint64(len(buf)) <= dma.Start+uint64(dma.Size)

	return
}

// Alloc reserves a memory region for DMA purposes, copying over a
// buffer and returning its allocation address, with optional
// alignment. The region can be freed up with Free().
func (dma *Region) Alloc(buf []byte, align int) (addr uint64) {
	size := len(buf)

	if size == 0 {
		return 0
	}

	if res, addr := dma.Reserved(buf); res {
		return addr
	}

	dma.Lock()
	defer dma.Unlock()

	b := dma.alloc(size, align)
	b.write(0, buf)

	dma.usedBlocks[b.addr] = b

	return b.addr
}

// Read reads exactly len(buf) bytes from a memory region address into
// a buffer, the region must have been previously allocated with
// Alloc().
func (dma *Region) Read(addr uint64, off int, buf []byte) {
	size := len(buf)

	if addr == 0 || size == 0 {
		return
	}

	if res, _ := dma.Reserved(buf); res {
		return
	}

	dma.Lock()
	defer dma.Unlock()

	b, ok := dma.usedBlocks[addr]

	if !ok {
		panic("read of unallocated pointer")
	}

	if off+size > b.size {
		panic("invalid read parameters")
	}

	b.read(off, buf)
}

// Write writes buffer contents to a memory region address, the region
// must have been previously allocated with Alloc().
func (dma *Region) Write(addr uint64, off int, buf []byte) {
	size := len(buf)

	if addr == 0 || size == 0 {
		return
	}

	dma.Lock()
	defer dma.Unlock()

	b, ok := dma.usedBlocks[addr]

	if !ok {
		return
	}

	if off+size > b.size {
		panic("invalid write parameters")
	}

	b.write(off, buf)
}

// Free frees the memory region stored at the passed address, the
// region must have been previously allocated with Alloc().
func (dma *Region) Free(addr uint64) {
	dma.freeBlock(addr, false)
}

// Release frees the memory region stored at the passed address, the
// region must have been previously allocated with Reserve().
func (dma *Region) Release(addr uint64) {
	dma.freeBlock(addr, true)
}

func (dma *Region) freeBlock(addr uint64, res bool) {
	if addr == 0 {
		return
	}

	dma.Lock()
	defer dma.Unlock()

	b, ok := dma.usedBlocks[addr]

	if !ok {
		return
	}

	if b.res != res {
		return
	}

	dma.free(b)
	delete(dma.usedBlocks, addr)
}

// Init initializes the global memory region for DMA buffer allocation,
// the application must guarantee that the passed memory range is never
// used by the Go runtime.
//
// Nothing in this repository calls Init or allocates from the global
// region; the virtqueue ring region and the staging buffer use their
// own dedicated Region instances (see board/qemu/virt) so that their
// addresses stay architecturally fixed.
func Init(start uint64, size int) {
	dma = &Region{
		Start: start,
		Size:  size,
	}

	dma.Init()
}

// Default returns the global DMA region instance.
func Default() *Region {
	return dma
}

// Reserve is the equivalent of Region.Reserve() on the global DMA region.
func Reserve(size int, align int) (addr uint64, buf []byte) {
	return dma.Reserve(size, align)
}

// Reserved is the equivalent of Region.Reserved() on the global DMA region.
func Reserved(buf []byte) (res bool, addr uint64) {
	return dma.Reserved(buf)
}

// Alloc is the equivalent of Region.Alloc() on the global DMA region.
func Alloc(buf []byte, align int) (addr uint64) {
	return dma.Alloc(buf, align)
}

// Read is the equivalent of Region.Read() on the global DMA region.
func Read(addr uint64, off int, buf []byte) {
	dma.Read(addr, off, buf)
}

// Write is the equivalent of Region.Write() on the global DMA region.
func Write(addr uint64, off int, buf []byte) {
	dma.Write(addr, off, buf)
}

// Free is the equivalent of Region.Free() on the global DMA region.
func Free(addr uint64) {
	dma.Free(addr)
}

// Release is the equivalent of Region.Release() on the global DMA region.
func Release(addr uint64) {
	dma.Release(addr)
}
