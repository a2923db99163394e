// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package elf

import (
	"encoding/binary"
	"testing"
)

// buildImage assembles a minimal, well-formed ELF64 image with a
// single PT_LOAD program header whose file-backed payload is payload.
// e_phnum is always 1; truncateAt, if non-zero, shortens the returned byte slice to
// simulate a staging buffer that did not receive the full file.
func buildImage(entry uint64, vaddr uint64, memsz uint64, payload []byte, truncateAt int) []byte {
	const phoff = ehdrSize

	buf := make([]byte, phoff+phdrSize+len(payload))

	copy(buf[0:4], magic[:])
	buf[4] = elfClass64
	buf[5] = elfDataLSB

	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], phoff)
	binary.LittleEndian.PutUint16(buf[52:54], ehdrSize)
	binary.LittleEndian.PutUint16(buf[54:56], phdrSize)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	ph := buf[phoff : phoff+phdrSize]
	binary.LittleEndian.PutUint32(ph[0:4], ptLoad)
	binary.LittleEndian.PutUint64(ph[8:16], phoff+phdrSize) // p_offset
	binary.LittleEndian.PutUint64(ph[16:24], vaddr)
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(payload)))
	binary.LittleEndian.PutUint64(ph[40:48], memsz)

	copy(buf[phoff+phdrSize:], payload)

	if truncateAt > 0 && truncateAt < len(buf) {
		buf = buf[:truncateAt]
	}

	return buf
}

func TestParseValidImage(t *testing.T) {
	img := buildImage(0x80400000, 0x80400000, 16, []byte("kernel payload!!"), 0)

	f, err := Parse(img)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := f.EntryPoint(); got != 0x80400000 {
		t.Errorf("EntryPoint() = %#x, want %#x", got, 0x80400000)
	}
}

func TestParseRejectsShortBuffer(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); err == nil {
		t.Fatal("Parse() error = nil, want error on short buffer")
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	img := buildImage(0x1000, 0x1000, 4, []byte("xxxx"), 0)
	img[0] = 0x00

	if _, err := Parse(img); err == nil {
		t.Fatal("Parse() error = nil, want error on bad magic")
	}
}

func TestParseRejectsProgramHeaderTableOutOfBounds(t *testing.T) {
	img := buildImage(0x1000, 0x1000, 4, []byte("xxxx"), 0)
	binary.LittleEndian.PutUint16(img[56:58], 5) // claim 5 headers, only room for 1

	if _, err := Parse(img); err == nil {
		t.Fatal("Parse() error = nil, want error on out-of-bounds program header table")
	}
}

func TestLoadSegmentsFullyBacked(t *testing.T) {
	payload := []byte("0123456789abcdef")
	img := buildImage(0x80400000, 0x80400000, uint64(len(payload)), payload, 0)

	f, err := Parse(img)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	segs := f.LoadSegments()
	if len(segs) != 1 {
		t.Fatalf("len(LoadSegments()) = %d, want 1", len(segs))
	}

	seg := segs[0]
	if seg.Header.VAddr != 0x80400000 {
		t.Errorf("VAddr = %#x, want %#x", seg.Header.VAddr, 0x80400000)
	}

	if string(seg.Data) != string(payload) {
		t.Errorf("Data = %q, want %q", seg.Data, payload)
	}
}

func TestLoadSegmentsClampsTruncatedData(t *testing.T) {
	payload := []byte("0123456789abcdef")
	// memsz exceeds filesz: the tail should be zero-filled by the
	// caller, not supplied by Data.
	img := buildImage(0x80400000, 0x80400000, uint64(len(payload)*4), payload, 0)

	// Simulate a staging buffer that only received the first half of
	// the payload.
	truncateAt := ehdrSize + phdrSize + len(payload)/2
	img = img[:truncateAt]

	f, err := Parse(img)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	segs := f.LoadSegments()
	if len(segs) != 1 {
		t.Fatalf("len(LoadSegments()) = %d, want 1", len(segs))
	}

	if got, want := len(segs[0].Data), len(payload)/2; got != want {
		t.Errorf("len(Data) = %d, want %d (clamped to staged bytes)", got, want)
	}
}
