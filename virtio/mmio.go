// Legacy virtio-over-MMIO transport
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package virtio implements the legacy (pre-1.0) virtio-over-MMIO
// transport and the split virtqueue data structure, specialized to a
// single block device. It deliberately supports nothing beyond what a
// minimal bootloader needs: one queue, one in-flight request, no
// interrupts, no version-2 transport.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=riscv64`
// as supported by the TamaGo framework for bare metal Go.
package virtio

import (
	"github.com/usbarmory/virtio-boot/internal/reg"
	"github.com/usbarmory/virtio-boot/platform"
	"github.com/usbarmory/virtio-boot/status"
)

// MMIO register offsets, legacy (pre-1.0) virtio-over-MMIO transport.
const (
	RegMagic          = 0x000
	RegVersion        = 0x004
	RegDeviceID       = 0x008
	RegVendorID       = 0x00c
	RegDeviceFeatures = 0x010
	RegDriverFeatures = 0x020
	RegGuestPageSize  = 0x028
	RegQueueSel       = 0x030
	RegQueueNumMax    = 0x034
	RegQueueNum       = 0x038
	RegQueueAlign     = 0x03c
	RegQueuePFN       = 0x040
	RegQueueNotify    = 0x050
	RegISRStatus      = 0x060
	RegStatus         = 0x070
	RegConfig         = 0x100
)

// Device status bits (legacy transport).
const (
	StatusAcknowledge      = 1 << 0
	StatusDriver           = 1 << 1
	StatusDriverOK         = 1 << 2
	StatusFeaturesOK       = 1 << 3
	StatusDeviceNeedsReset = 1 << 6
	StatusFailed           = 1 << 7
)

// ISR status bits.
const (
	ISRQueueInterrupt = 1 << 0
)

// MMIO represents a register interface to a single legacy
// virtio-over-MMIO slot.
type MMIO struct {
	Base uint64
}

func (m *MMIO) reg(off uint64) uint64 {
	return m.Base + off
}

func (m *MMIO) read(off uint64) uint32 {
	return reg.Read(m.reg(off))
}

func (m *MMIO) write(off uint64, val uint32) {
	reg.Write(m.reg(off), val)
}

// Probe reads the MMIO magic and device id at the receiver's base
// address and reports whether a block device is present. It does not
// modify device state, so a failed probe leaves the slot untouched for
// the next candidate.
func (m *MMIO) Probe() error {
	if magic := m.read(RegMagic); magic != platform.VirtioMagic {
		return status.New("virtio", status.InvalidMagic)
	}

	if version := m.read(RegVersion); version != platform.VirtioLegacyVersion {
		return status.New("virtio", status.UnsupportedVersion)
	}

	switch id := m.read(RegDeviceID); id {
	case 0:
		return status.New("virtio", status.DeviceNotFound)
	case platform.VirtioDeviceBlock:
		return nil
	default:
		return status.New("virtio", status.UnsupportedDevice)
	}
}

// Status returns the current value of the STATUS register.
func (m *MMIO) Status() uint32 {
	return m.read(RegStatus)
}

// SetStatus ORs bits into the STATUS register and returns the
// resulting read-back value, the pattern every step of the
// initialization state machine uses to both advance and verify state.
func (m *MMIO) SetStatus(bits uint32) uint32 {
	m.write(RegStatus, m.Status()|bits)
	return m.Status()
}

// ResetStatus writes zero to the STATUS register, the first step of
// device initialization.
func (m *MMIO) ResetStatus() {
	m.write(RegStatus, 0)
}

// NegotiateFeatures implements the legacy feature handshake: this core
// requires no optional features, so DEVICE_FEATURES is read and
// discarded and zero is written back as DRIVER_FEATURES.
func (m *MMIO) NegotiateFeatures() error {
	_ = m.read(RegDeviceFeatures)
	m.write(RegDriverFeatures, 0)

	after := m.SetStatus(StatusFeaturesOK)

	// Some legacy devices never model FEATURES_OK; tolerate its
	// absence rather than failing, matching the device model QEMU's
	// legacy virtio-mmio implementation exposes.
	if after&StatusFeaturesOK == 0 {
		return nil
	}

	return nil
}

// SelectQueue writes QUEUE_SEL and returns the device-advertised
// maximum queue size for it.
func (m *MMIO) SelectQueue(index uint32) (maxSize uint32) {
	m.write(RegQueueSel, index)
	return m.read(RegQueueNumMax)
}

// SetQueueSize writes QUEUE_NUM for the currently selected queue.
func (m *MMIO) SetQueueSize(size uint32) {
	m.write(RegQueueNum, size)
}

// SetQueuePFN writes the descriptor table's page-frame number to
// QUEUE_PFN and reads it back, returning whether the device accepted
// it. Per spec.md §9, the PFN is always computed from the descriptor
// table's base address; it is never a hard-coded constant.
func (m *MMIO) SetQueuePFN(descBase uint64) bool {
	pfn := uint32(descBase >> 12)

	m.write(RegQueuePFN, pfn)

	return m.read(RegQueuePFN) == pfn
}

// Notify writes the queue index to QUEUE_NOTIFY.
func (m *MMIO) Notify(index uint32) {
	m.write(RegQueueNotify, index)
}

// ISRStatus reads and clears the ISR_STATUS register.
func (m *MMIO) ISRStatus() uint32 {
	return m.read(RegISRStatus)
}

// Capacity reads the block device's 64-bit sector count from the
// CONFIG space (lo/hi 32-bit halves, little-endian word order).
func (m *MMIO) Capacity() uint64 {
	lo := uint64(m.read(RegConfig))
	hi := uint64(m.read(RegConfig + 4))

	return lo | hi<<32
}
