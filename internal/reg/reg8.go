// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

import (
	"sync/atomic"
	"unsafe"
)

// Get8 returns the full 8-bit contents of the 32-bit-aligned register
// at addr. No peripheral on this platform requires byte-wide registers
// except the 16550-compatible console, hence this file's narrower
// surface compared to reg32.go/reg64.go.
func Get8(addr uint64) uint8 {
	reg := (*uint32)(unsafe.Pointer(uintptr(addr)))
	return uint8(atomic.LoadUint32(reg))
}

// Write8 stores val into the 32-bit-aligned register at addr. QEMU's
// 16550 model decodes only the low byte of each 32-bit-aligned
// register slot, so the store goes through a 32-bit atomic access
// rather than a narrower one.
func Write8(addr uint64, val uint8) {
	reg := (*uint32)(unsafe.Pointer(uintptr(addr)))
	atomic.StoreUint32(reg, uint32(val))
}

// IsSet8 reports whether the bit at position pos of the 8-bit-valued
// register at addr is set.
func IsSet8(addr uint64, pos int) bool {
	return (Get8(addr)>>uint(pos))&1 == 1
}

// StoreByte writes a single byte directly to addr, with no surrounding
// word read-modify-write. Unlike Write8, this targets arbitrary RAM
// (kernel segment materialization) rather than a 32-bit-aligned
// peripheral register slot, so it must never touch neighboring bytes.
func StoreByte(addr uint64, val uint8) {
	*(*uint8)(unsafe.Pointer(uintptr(addr))) = val
}

// LoadByte reads a single byte directly from addr.
func LoadByte(addr uint64) uint8 {
	return *(*uint8)(unsafe.Pointer(uintptr(addr)))
}
