// Legacy virtio-blk driver
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import (
	"encoding/binary"

	"github.com/usbarmory/virtio-boot/dma"
	"github.com/usbarmory/virtio-boot/platform"
	"github.com/usbarmory/virtio-boot/status"
)

// Block request types, as written into the 16-byte request header.
const (
	ReqTypeIn    = 0 // read
	ReqTypeOut   = 1 // write, unused (no write path)
	ReqTypeFlush = 4
)

// Block status byte values.
const (
	BlkStatusOK     = 0
	BlkStatusIOErr  = 1
	BlkStatusUnsupp = 2
)

const (
	requestHeaderSize = 16
	requestQueueIndex = 0
)

// Device is a handle to one virtio-blk device discovered on the MMIO
// bus. It owns exactly one virtqueue once initialization succeeds.
type Device struct {
	mmio  MMIO
	queue Queue

	region *dma.Region

	reqAddr  uint64
	reqBuf   []byte
	dataAddr uint64
	dataBuf  []byte
	statAddr uint64
	statBuf  []byte

	ready bool
}

// Discover probes the fixed list of candidate MMIO bases and returns a
// Device bound to the first slot that identifies as a legacy virtio
// block device and completes initialization. region supplies the
// backing memory for the virtqueue and its request buffers.
func Discover(region *dma.Region) (*Device, error) {
	for n := 0; n < platform.VirtioMMIOSlots; n++ {
		base := platform.VirtioMMIOCandidate(n)

		dev := &Device{mmio: MMIO{Base: base}, region: region}

		if err := dev.mmio.Probe(); err != nil {
			continue
		}

		if err := dev.init(); err != nil {
			continue
		}

		return dev, nil
	}

	return nil, status.New("virtio-blk", status.DeviceNotFound)
}

// init runs the legacy initialization state machine (spec.md §4.3).
func (d *Device) init() error {
	d.mmio.ResetStatus()

	after := d.mmio.SetStatus(StatusAcknowledge)
	if after&StatusAcknowledge == 0 {
		return status.New("virtio-blk", status.InitFailed)
	}

	after = d.mmio.SetStatus(StatusDriver)
	if after&(StatusAcknowledge|StatusDriver) != StatusAcknowledge|StatusDriver {
		return status.New("virtio-blk", status.InitFailed)
	}

	if err := d.mmio.NegotiateFeatures(); err != nil {
		return status.New("virtio-blk", status.FeaturesNegotiationFailed)
	}

	d.mmio.write(RegGuestPageSize, platform.GuestPageSize)

	maxQueue := d.mmio.SelectQueue(requestQueueIndex)
	if uint32(platform.QueueSize) > maxQueue {
		return status.New("virtio-blk", status.QueueSetupFailed)
	}

	d.mmio.SetQueueSize(platform.QueueSize)

	d.queue.Init(d.region, platform.QueueSize)

	if !d.mmio.SetQueuePFN(d.queue.DescBase()) {
		return status.New("virtio-blk", status.QueueSetupFailed)
	}

	after = d.mmio.SetStatus(StatusDriverOK)
	required := uint32(StatusAcknowledge | StatusDriver | StatusDriverOK)
	if after&required != required {
		return status.New("virtio-blk", status.InitFailed)
	}

	d.reqAddr, d.reqBuf = d.region.Reserve(requestHeaderSize, 8)
	d.dataAddr, d.dataBuf = d.region.Reserve(platform.SectorSize, 8)
	d.statAddr, d.statBuf = d.region.Reserve(1, 8)

	d.ready = true

	return nil
}

// Capacity returns the device's reported capacity in 512-byte sectors.
func (d *Device) Capacity() uint64 {
	return d.mmio.Capacity()
}

// ReadBlock reads one sector into buf, which must be at least
// platform.SectorSize bytes long. It retries on Timeout or IoError,
// making at most platform.ReadRetryBudget attempts in total before
// surfacing the failure,
// matching the bounded-retry completion policy the original
// implementation applies to block reads.
func (d *Device) ReadBlock(sector uint64, buf []byte) error {
	if !d.ready {
		return status.New("virtio-blk", status.InitFailed)
	}

	if len(buf) < platform.SectorSize {
		return status.New("virtio-blk", status.BufferTooSmall)
	}

	var lastErr error

	for attempt := 0; attempt < platform.ReadRetryBudget; attempt++ {
		err := d.readOnce(sector, buf)
		if err == nil {
			return nil
		}

		lastErr = err

		if !status.Is(err, status.Timeout) && !status.Is(err, status.IoError) {
			return err
		}
	}

	return lastErr
}

func (d *Device) readOnce(sector uint64, buf []byte) error {
	binary.LittleEndian.PutUint32(d.reqBuf[0:4], ReqTypeIn)
	binary.LittleEndian.PutUint32(d.reqBuf[4:8], 0)
	binary.LittleEndian.PutUint64(d.reqBuf[8:16], sector)

	d.statBuf[0] = 0xff // sentinel, overwritten by the device on completion

	head, err := d.queue.AllocChain(3)
	if err != nil {
		return err
	}

	dataDesc := d.queue.NextOf(head)
	statDesc := d.queue.NextOf(dataDesc)

	d.queue.SetDescriptor(head, d.reqAddr, requestHeaderSize, DescFlagNext, dataDesc)
	d.queue.SetDescriptor(dataDesc, d.dataAddr, platform.SectorSize, DescFlagNext|DescFlagWrite, statDesc)
	d.queue.SetDescriptor(statDesc, d.statAddr, 1, DescFlagWrite, 0)

	d.queue.Submit(head)
	d.mmio.Notify(requestQueueIndex)

	if !d.waitCompletion() {
		d.queue.Reclaim(head)
		return status.New("virtio-blk", status.Timeout)
	}

	d.queue.Reclaim(head)

	switch d.statBuf[0] {
	case BlkStatusOK:
		copy(buf[:platform.SectorSize], d.dataBuf)
		return nil
	case BlkStatusUnsupp:
		return status.New("virtio-blk", status.UnsupportedDevice)
	default:
		return status.New("virtio-blk", status.IoError)
	}
}

// waitCompletion polls the used ring index within a bounded spin
// budget. Each iteration also reads the ISR register to clear it, but
// its value is not used: completion is decided by the used ring alone.
func (d *Device) waitCompletion() bool {
	for i := 0; i < platform.PollSpinBudget; i++ {
		d.mmio.ISRStatus() // read-to-clear; completion itself is confirmed via the ring

		if _, ok := d.queue.PollUsed(); ok {
			return true
		}
	}

	return false
}
