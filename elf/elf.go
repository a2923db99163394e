// ELF64 kernel image parser
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package elf implements the minimal ELF64 parsing this bootloader
// needs: header validation, program-header iteration and PT_LOAD
// segment materialization data. It borrows its input byte slice rather
// than copying it; the view is only valid for as long as that slice
// is.
package elf

import (
	"encoding/binary"

	"github.com/usbarmory/virtio-boot/status"
)

const (
	ehdrSize = 64
	phdrSize = 56

	ptLoad = 1

	elfClass64   = 2
	elfDataLSB   = 1
	machineRISCV = 0xf3
)

var magic = [4]byte{0x7f, 'E', 'L', 'F'}

// ProgramHeader is the subset of an ELF64 program header this
// bootloader honors; all other fields are ignored.
type ProgramHeader struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	VAddr  uint64
	FileSz uint64
	MemSz  uint64
	Align  uint64
}

// File is a parsed view over a byte slice holding an ELF64 image.
type File struct {
	data []byte

	entry  uint64
	phoff  uint64
	phnum  uint16
	phsize uint16
}

// Parse validates the ELF64 header in data and returns a File view
// over it. data is borrowed, not copied; it must remain valid and
// unmodified for the lifetime of the returned File.
func Parse(data []byte) (*File, error) {
	if len(data) < ehdrSize {
		return nil, status.New("elf", status.InvalidFormat)
	}

	if [4]byte{data[0], data[1], data[2], data[3]} != magic {
		return nil, status.New("elf", status.InvalidFormat)
	}

	if data[4] != elfClass64 {
		return nil, status.Newf("elf", status.InvalidFormat, "not a 64-bit image")
	}

	if data[5] != elfDataLSB {
		return nil, status.Newf("elf", status.InvalidFormat, "not little-endian")
	}

	ehsize := binary.LittleEndian.Uint16(data[52:54])
	if ehsize != ehdrSize {
		return nil, status.Newf("elf", status.InvalidFormat, "unexpected header size")
	}

	phentsize := binary.LittleEndian.Uint16(data[54:56])
	if phentsize != phdrSize {
		return nil, status.Newf("elf", status.InvalidFormat, "unexpected program header entry size")
	}

	f := &File{
		data:   data,
		entry:  binary.LittleEndian.Uint64(data[24:32]),
		phoff:  binary.LittleEndian.Uint64(data[32:40]),
		phnum:  binary.LittleEndian.Uint16(data[56:58]),
		phsize: phentsize,
	}

	tableEnd := f.phoff + uint64(f.phnum)*uint64(f.phsize)
	if tableEnd > uint64(len(data)) {
		return nil, status.Newf("elf", status.InvalidFormat, "program header table out of bounds")
	}

	return f, nil
}

// EntryPoint returns the image's entry-point virtual address (e_entry).
func (f *File) EntryPoint() uint64 {
	return f.entry
}

// Segment pairs a loadable program header with the (possibly
// truncated) slice of file data backing it.
type Segment struct {
	Header ProgramHeader
	Data   []byte
}

// LoadSegments returns every PT_LOAD program header along with the
// file-backed slice the loader should copy to Header.VAddr.
//
// When Header.Offset + Header.FileSz exceeds the data slice, the
// returned Data is clamped to the slice's end instead of failing: the
// staging buffer may legitimately hold fewer bytes than the full file
// if the missing tail is pure BSS. This permissiveness is the parser's
// core contract.
func (f *File) LoadSegments() []Segment {
	var segments []Segment

	for i := uint16(0); i < f.phnum; i++ {
		off := f.phoff + uint64(i)*uint64(f.phsize)
		raw := f.data[off : off+phdrSize]

		typ := binary.LittleEndian.Uint32(raw[0:4])
		if typ != ptLoad {
			continue
		}

		ph := ProgramHeader{
			Type:   typ,
			Flags:  binary.LittleEndian.Uint32(raw[4:8]),
			Offset: binary.LittleEndian.Uint64(raw[8:16]),
			VAddr:  binary.LittleEndian.Uint64(raw[16:24]),
			FileSz: binary.LittleEndian.Uint64(raw[32:40]),
			MemSz:  binary.LittleEndian.Uint64(raw[40:48]),
			Align:  binary.LittleEndian.Uint64(raw[48:56]),
		}

		start := ph.Offset
		end := ph.Offset + ph.FileSz

		var data []byte

		switch {
		case start >= uint64(len(f.data)):
			data = nil
		case end > uint64(len(f.data)):
			data = f.data[start:]
		default:
			data = f.data[start:end]
		}

		segments = append(segments, Segment{Header: ph, Data: data})
	}

	return segments
}
