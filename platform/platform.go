// Platform description for the QEMU "virt" RV64GC machine
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package platform centralizes the physical addresses, register offsets
// and build-time tunables shared by every subsystem, so a port to a
// different machine model is a matter of editing this table alone.
package platform

const (
	// UARTBase is the physical base address of the 16550-compatible
	// console UART.
	UARTBase = 0x10000000

	// VirtioMMIOBase is the base address of the first candidate
	// legacy virtio-over-MMIO slot.
	VirtioMMIOBase = 0x10001000

	// VirtioMMIOStride is the address spacing between candidate
	// virtio-over-MMIO slots.
	VirtioMMIOStride = 0x1000

	// VirtioMMIOSlots is the number of candidate slots probed during
	// device discovery.
	VirtioMMIOSlots = 8

	// VirtioMagic is the little-endian "virt" magic value found at
	// MMIO offset 0x000 on a legacy virtio device.
	VirtioMagic = 0x74726976

	// VirtioDeviceBlock is the DEVICE_ID value identifying a block
	// device.
	VirtioDeviceBlock = 2

	// VirtioLegacyVersion is the VERSION register value for the
	// legacy (pre-1.0) transport.
	VirtioLegacyVersion = 1

	// GuestPageSize is the page size communicated to the device
	// through GUEST_PAGE_SIZE during initialization.
	GuestPageSize = 4096

	// QueueSize is the virtqueue length Q, a small power of two
	// chosen at build time.
	QueueSize = 8

	// RingRegionBase is the fixed physical base address of the
	// descriptor table; the available ring follows it contiguously
	// and the used ring starts on the next guest page.
	RingRegionBase = 0x80070000

	// RingRegionSize bounds the virtqueue (descriptor table,
	// available ring and used ring, two guest pages) plus the block
	// request header, data and status buffers reserved after it.
	RingRegionSize = 0x3000

	// StagingBufferBase is the fixed physical base address of the
	// buffer raw sectors are streamed into before ELF parsing.
	StagingBufferBase = 0x81000000

	// StagingBufferSize bounds the staging buffer.
	StagingBufferSize = 1 << 20 // 1 MiB

	// SectorSize is the block device's logical sector size.
	SectorSize = 512

	// ELFScanLimit is the number of sectors, beyond sector 0, probed
	// for an ELF magic before falling back to a default start sector.
	ELFScanLimit = 100

	// ELFScanFallbackSector is the start sector assumed when no ELF
	// magic is found during the scan.
	ELFScanFallbackSector = 1

	// EntryWindowLow and EntryWindowHigh bound the range of
	// acceptable ELF entry points; values outside the window are
	// replaced by EntryFallback.
	EntryWindowLow  = 0x80000000
	EntryWindowHigh = 0x90000000

	// EntryFallback is the entry point used when the parsed entry
	// point fails the sanity window check.
	EntryFallback = 0x80400000

	// SegmentMinVAddr is the minimum virtual address a PT_LOAD
	// segment may target; anything lower is treated as a corrupt
	// header.
	SegmentMinVAddr = 0x1000

	// DTBAddress is the physical address of the device-tree blob
	// passed to the kernel in argument register 1, by platform
	// convention.
	DTBAddress = 0x87000000

	// ReadRetryBudget bounds the total number of attempts made for a
	// block read that fails with a Timeout or IoError before the
	// failure is surfaced.
	ReadRetryBudget = 32

	// PollSpinBudget bounds the number of polling iterations spent
	// waiting for a single virtqueue completion before declaring a
	// Timeout.
	PollSpinBudget = 1 << 20

	// CLINTBase is the physical base address of the Core-Local
	// Interruptor on the QEMU "virt" machine.
	CLINTBase = 0x02000000
)

// VirtioMMIOCandidate returns the physical base address of the nth
// (0-indexed) candidate virtio-over-MMIO slot probed during discovery.
func VirtioMMIOCandidate(n int) uint64 {
	return VirtioMMIOBase + uint64(n)*VirtioMMIOStride
}
