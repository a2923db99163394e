// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import (
	"encoding/binary"
	"testing"

	"github.com/usbarmory/virtio-boot/elf"
	"github.com/usbarmory/virtio-boot/platform"
	"github.com/usbarmory/virtio-boot/status"
)

// fakeBlockReader implements BlockReader over an in-memory sector
// image, standing in for the real virtio.Device so ScanForELF can be
// exercised without touching MMIO or a dma.Region.
type fakeBlockReader struct {
	sectors  map[uint64][]byte
	capacity uint64
	failAt   uint64
}

func (f *fakeBlockReader) ReadBlock(sector uint64, buf []byte) error {
	if sector == f.failAt {
		return status.New("fake", status.IoError)
	}

	data, ok := f.sectors[sector]
	if !ok {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}

	copy(buf, data)
	return nil
}

func (f *fakeBlockReader) Capacity() uint64 { return f.capacity }

func sectorWithELF() []byte {
	buf := make([]byte, platform.SectorSize)
	copy(buf, []byte{0x7f, 'E', 'L', 'F'})
	return buf
}

func TestScanForELFFindsSignatureAtSectorZero(t *testing.T) {
	dev := &fakeBlockReader{
		sectors:  map[uint64][]byte{0: sectorWithELF()},
		capacity: 1000,
		failAt:   ^uint64(0),
	}

	l := New(dev, nil)

	sector, found, err := l.ScanForELF(make([]byte, platform.SectorSize))
	if err != nil {
		t.Fatalf("ScanForELF() error = %v", err)
	}

	if !found || sector != 0 {
		t.Errorf("ScanForELF() = (%d, %v), want (0, true)", sector, found)
	}
}

func TestScanForELFFindsSignatureAtLaterSector(t *testing.T) {
	dev := &fakeBlockReader{
		sectors:  map[uint64][]byte{3: sectorWithELF()},
		capacity: 1000,
		failAt:   ^uint64(0),
	}

	l := New(dev, nil)

	sector, found, err := l.ScanForELF(make([]byte, platform.SectorSize))
	if err != nil {
		t.Fatalf("ScanForELF() error = %v", err)
	}

	if !found || sector != 3 {
		t.Errorf("ScanForELF() = (%d, %v), want (3, true)", sector, found)
	}
}

func TestScanForELFFallsBackWhenNotFound(t *testing.T) {
	dev := &fakeBlockReader{
		sectors:  map[uint64][]byte{},
		capacity: 1000,
		failAt:   ^uint64(0),
	}

	l := New(dev, nil)

	sector, found, err := l.ScanForELF(make([]byte, platform.SectorSize))
	if err != nil {
		t.Fatalf("ScanForELF() error = %v", err)
	}

	if found {
		t.Error("found = true, want false")
	}

	if sector != platform.ELFScanFallbackSector {
		t.Errorf("sector = %d, want %d", sector, platform.ELFScanFallbackSector)
	}
}

func TestScanForELFPropagatesReadError(t *testing.T) {
	dev := &fakeBlockReader{
		sectors:  map[uint64][]byte{},
		capacity: 1000,
		failAt:   0,
	}

	l := New(dev, nil)

	if _, _, err := l.ScanForELF(make([]byte, platform.SectorSize)); err == nil {
		t.Fatal("ScanForELF() error = nil, want error")
	}
}

func TestScanForELFRejectsShortScratch(t *testing.T) {
	l := New(&fakeBlockReader{}, nil)

	if _, _, err := l.ScanForELF(make([]byte, 4)); err == nil {
		t.Fatal("ScanForELF() error = nil, want error on short scratch buffer")
	}
}

// buildMinimalELF mirrors elf package test fixtures closely enough to
// exercise Loader.Parse without depending on the elf package's
// internal test helpers.
func buildMinimalELF(entry uint64) []byte {
	const ehdrSize = 64
	const phdrSize = 56
	const phoff = ehdrSize

	payload := []byte("payload")
	buf := make([]byte, phoff+phdrSize)

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB

	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], phoff)
	binary.LittleEndian.PutUint16(buf[52:54], ehdrSize)
	binary.LittleEndian.PutUint16(buf[54:56], phdrSize)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	ph := buf[phoff : phoff+phdrSize]
	binary.LittleEndian.PutUint32(ph[0:4], 1) // PT_LOAD
	binary.LittleEndian.PutUint64(ph[8:16], phoff+phdrSize)
	binary.LittleEndian.PutUint64(ph[16:24], entry) // segment vaddr tracks entry in this fixture
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(payload)))
	binary.LittleEndian.PutUint64(ph[40:48], uint64(len(payload)))

	return append(buf, payload...)
}

func TestParseSanityChecksEntryPoint(t *testing.T) {
	l := &Loader{}
	l.buf = buildMinimalELF(0xdeadbeef) // well outside the entry window
	l.bytesLoaded = len(l.buf)

	_, entry, err := l.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if entry != platform.EntryFallback {
		t.Errorf("entry = %#x, want fallback %#x", entry, platform.EntryFallback)
	}
}

func TestParseAcceptsInWindowEntryPoint(t *testing.T) {
	const entry = platform.EntryWindowLow + 0x400000

	l := &Loader{}
	l.buf = buildMinimalELF(entry)
	l.bytesLoaded = len(l.buf)

	_, got, err := l.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got != entry {
		t.Errorf("entry = %#x, want %#x", got, entry)
	}
}

func TestParseRejectsEmptyImage(t *testing.T) {
	l := &Loader{}

	if _, _, err := l.Parse(); err == nil {
		t.Fatal("Parse() error = nil, want error when nothing was staged")
	}
}

// fakeSegmentWriter records every write/zero call for assertion,
// standing in for the real PhysicalMemory implementation.
type fakeSegmentWriter struct {
	writes []writeCall
	zeros  []zeroCall
}

type writeCall struct {
	addr uint64
	data []byte
}

type zeroCall struct {
	addr uint64
	n    uint64
}

func (w *fakeSegmentWriter) WriteAt(addr uint64, data []byte) {
	cp := append([]byte(nil), data...)
	w.writes = append(w.writes, writeCall{addr, cp})
}

func (w *fakeSegmentWriter) ZeroAt(addr uint64, n uint64) {
	w.zeros = append(w.zeros, zeroCall{addr, n})
}

func TestMaterializeSegmentsCopiesAndZeroFills(t *testing.T) {
	const vaddr = platform.SegmentMinVAddr + 0x2000

	img := buildMinimalELF(vaddr)
	// Pad memsz beyond filesz, so MaterializeSegments must zero-fill
	// the remainder.
	binary.LittleEndian.PutUint64(img[64+40:64+48], 7+5)

	f, err := elf.Parse(img)
	if err != nil {
		t.Fatalf("elf.Parse() error = %v", err)
	}

	l := &Loader{}
	w := &fakeSegmentWriter{}

	if err := l.MaterializeSegments(f, w); err != nil {
		t.Fatalf("MaterializeSegments() error = %v", err)
	}

	if len(w.writes) != 1 || w.writes[0].addr != vaddr {
		t.Fatalf("writes = %+v, want one write at %#x", w.writes, vaddr)
	}

	if len(w.zeros) != 1 || w.zeros[0].n != 5 {
		t.Fatalf("zeros = %+v, want 5 trailing zero bytes", w.zeros)
	}
}

func TestMaterializeSegmentsRejectsImplausibleVAddr(t *testing.T) {
	img := buildMinimalELF(0x100) // below SegmentMinVAddr as a segment vaddr too

	f, err := elf.Parse(img)
	if err != nil {
		t.Fatalf("elf.Parse() error = %v", err)
	}

	l := &Loader{}
	w := &fakeSegmentWriter{}

	if err := l.MaterializeSegments(f, w); err == nil {
		t.Fatal("MaterializeSegments() error = nil, want error on implausible vaddr")
	}
}
