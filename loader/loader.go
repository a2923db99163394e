// Kernel image loader
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package loader orchestrates the three phases that turn raw sectors
// on the block device into a running kernel image in RAM: locating the
// ELF signature, streaming sectors into a fixed staging buffer, and
// materializing PT_LOAD segments at their target physical addresses.
package loader

import (
	"github.com/usbarmory/virtio-boot/dma"
	"github.com/usbarmory/virtio-boot/elf"
	"github.com/usbarmory/virtio-boot/platform"
	"github.com/usbarmory/virtio-boot/status"
)

// BlockReader is the subset of virtio.Device the loader depends on; it
// is expressed as an interface so the loader can be tested against a
// fake backing store without pulling in the MMIO transport.
type BlockReader interface {
	ReadBlock(sector uint64, buf []byte) error
	Capacity() uint64
}

// Loader streams a kernel image out of a block device into a fixed
// staging buffer and exposes the segments ready for copy to their
// final physical addresses.
type Loader struct {
	dev    BlockReader
	region *dma.Region

	bufAddr uint64
	buf     []byte

	startSector uint64
	bytesLoaded int
}

// New returns a Loader reading from dev and staging sectors into
// region (sized and positioned to land at platform.StagingBufferBase).
func New(dev BlockReader, region *dma.Region) *Loader {
	return &Loader{dev: dev, region: region}
}

// ScanForELF implements phase 1: it reads sector 0 and, failing a
// match, sectors 1..platform.ELFScanLimit, looking for the ELF magic
// in the first four bytes of each sector. If no sector matches, it
// falls back to platform.ELFScanFallbackSector so a small pre-header
// on the image does not halt the boot.
func (l *Loader) ScanForELF(scratch []byte) (startSector uint64, found bool, err error) {
	if len(scratch) < platform.SectorSize {
		return 0, false, status.New("loader", status.BufferTooSmall)
	}

	for sector := uint64(0); sector <= platform.ELFScanLimit; sector++ {
		if err := l.dev.ReadBlock(sector, scratch); err != nil {
			return 0, false, err
		}

		if isELFMagic(scratch) {
			l.startSector = sector
			return sector, true, nil
		}
	}

	l.startSector = platform.ELFScanFallbackSector

	return platform.ELFScanFallbackSector, false, nil
}

func isELFMagic(buf []byte) bool {
	return len(buf) >= 4 && buf[0] == 0x7f && buf[1] == 'E' && buf[2] == 'L' && buf[3] == 'F'
}

// BulkRead implements phase 2: it streams sectors starting at the
// detected start sector into the staging buffer, 512 bytes at a time,
// bounded by the device's reported capacity and the staging buffer's
// size, and records the exact number of bytes loaded.
func (l *Loader) BulkRead() error {
	l.bufAddr, l.buf = l.region.Reserve(platform.StagingBufferSize, platform.GuestPageSize)

	capacity := l.dev.Capacity()

	remaining := uint64(0)
	if capacity > l.startSector {
		remaining = capacity - l.startSector
	}

	maxSectors := uint64(platform.StagingBufferSize / platform.SectorSize)
	if remaining > 0 && remaining < maxSectors {
		maxSectors = remaining
	}

	l.bytesLoaded = 0

	for i := uint64(0); i < maxSectors; i++ {
		off := i * platform.SectorSize

		if err := l.dev.ReadBlock(l.startSector+i, l.buf[off:off+platform.SectorSize]); err != nil {
			return err
		}

		l.bytesLoaded += platform.SectorSize
	}

	return nil
}

// BytesLoaded returns the number of bytes BulkRead staged.
func (l *Loader) BytesLoaded() int {
	return l.bytesLoaded
}

// StagingData returns the staged bytes, offset 0 of the staging
// buffer, matching the loader's contract that the ELF image always
// starts at buffer offset 0 once the start sector has been detected
// and copying begins from there.
func (l *Loader) StagingData() []byte {
	return l.buf[:l.bytesLoaded]
}

// Parse implements the first half of phase 3: it constructs an ELF
// view over the staged bytes and returns it along with the sanity-
// checked entry point (falling back to platform.EntryFallback when the
// parsed entry point lies outside the acceptable window).
func (l *Loader) Parse() (file *elf.File, entry uint64, err error) {
	if l.bytesLoaded == 0 {
		return nil, 0, status.New("loader", status.KernelNotFound)
	}

	file, err = elf.Parse(l.StagingData())
	if err != nil {
		return nil, 0, err
	}

	entry = file.EntryPoint()

	if entry < platform.EntryWindowLow || entry >= platform.EntryWindowHigh {
		entry = platform.EntryFallback
	}

	return file, entry, nil
}

// SegmentWriter copies bytes to a physical address and zero-fills a
// trailing range, using volatile byte stores so the compiler cannot
// elide writes the code never reads back before jumping away.
type SegmentWriter interface {
	WriteAt(addr uint64, data []byte)
	ZeroAt(addr uint64, n uint64)
}

// MaterializeSegments implements the second half of phase 3: for every
// PT_LOAD segment in file, it refuses (with a fatal error) any vaddr
// below platform.SegmentMinVAddr, copies the segment's file-backed
// bytes to its target address, and zero-fills the remainder of memsz.
func (l *Loader) MaterializeSegments(file *elf.File, w SegmentWriter) error {
	for _, seg := range file.LoadSegments() {
		if seg.Header.VAddr < platform.SegmentMinVAddr {
			return status.Newf("loader", status.SegmentLoadError, "implausible segment vaddr")
		}

		w.WriteAt(seg.Header.VAddr, seg.Data)

		if seg.Header.MemSz > uint64(len(seg.Data)) {
			w.ZeroAt(seg.Header.VAddr+uint64(len(seg.Data)), seg.Header.MemSz-uint64(len(seg.Data)))
		}
	}

	return nil
}
