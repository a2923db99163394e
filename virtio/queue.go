// Split virtqueue data structure
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import (
	"encoding/binary"

	"github.com/usbarmory/virtio-boot/dma"
	"github.com/usbarmory/virtio-boot/platform"
	"github.com/usbarmory/virtio-boot/riscv64"
	"github.com/usbarmory/virtio-boot/status"
)

// Descriptor flags (bit values fixed by the transport).
const (
	DescFlagNext     = 1 << 0
	DescFlagWrite    = 1 << 1
	DescFlagIndirect = 1 << 2
)

const descriptorSize = 16 // addr(8) + len(4) + flags(2) + next(2)

// Queue implements the split virtqueue: a descriptor table, an
// available ring produced by the driver and a used ring produced by
// the device, all living in one contiguous, page-aligned DMA region at
// a fixed physical address.
//
// Descriptor allocation is a singly-linked free list threaded through
// the descriptor table's own `next` field, rooted at freeHead. This is
// the proper allocator spec.md §9 calls for, replacing the fixed
// descriptor-chain-index shortcut the original implementation took.
type Queue struct {
	size uint16

	buf      []byte
	descOff  int
	availOff int
	usedOff  int

	base uint64

	freeHead uint16
	numFree  uint16

	lastUsedIdx uint16
}

// Init reserves the queue's backing memory from region (sized and
// positioned so the first reservation lands at region.Start, pinning
// the queue to its architecturally fixed physical address) and
// initializes the free descriptor list.
func (q *Queue) Init(region *dma.Region, size uint16) {
	q.size = size

	descLen := int(size) * descriptorSize

	q.descOff = 0
	q.availOff = descLen

	// The used ring lives at a 4-KiB-aligned address agreed with the
	// transport; the descriptor table and available ring share the
	// first guest page, the used ring occupies the next.
	q.usedOff = platform.GuestPageSize

	total := q.usedOff + 4 + int(size)*8

	addr, buf := region.Reserve(total, platform.GuestPageSize)

	q.base = addr
	q.buf = buf

	q.initFreeList()
}

// DescBase returns the physical address of the descriptor table, the
// value QUEUE_PFN is derived from.
func (q *Queue) DescBase() uint64 {
	return q.base + uint64(q.descOff)
}

func (q *Queue) initFreeList() {
	for i := uint16(0); i < q.size; i++ {
		next := i + 1
		if i == q.size-1 {
			next = 0
		}
		q.writeDescriptor(i, 0, 0, 0, next)
	}

	q.freeHead = 0
	q.numFree = q.size
	q.lastUsedIdx = 0

	binary.LittleEndian.PutUint16(q.buf[q.availOff:], 0)   // avail.flags
	binary.LittleEndian.PutUint16(q.buf[q.availOff+2:], 0) // avail.idx
	binary.LittleEndian.PutUint16(q.buf[q.usedOff+2:], 0)  // used.idx
}

func (q *Queue) descCell(i uint16) []byte {
	off := q.descOff + int(i)*descriptorSize
	return q.buf[off : off+descriptorSize]
}

func (q *Queue) writeDescriptor(i uint16, addr uint64, length uint32, flags uint16, next uint16) {
	cell := q.descCell(i)
	binary.LittleEndian.PutUint64(cell[0:8], addr)
	binary.LittleEndian.PutUint32(cell[8:12], length)
	binary.LittleEndian.PutUint16(cell[12:14], flags)
	binary.LittleEndian.PutUint16(cell[14:16], next)
}

func (q *Queue) readNext(i uint16) uint16 {
	cell := q.descCell(i)
	return binary.LittleEndian.Uint16(cell[14:16])
}

// AllocChain returns the head index of a chain of n free descriptors,
// reducing NumFree() by n. The n descriptors are linked, in pop order,
// through their own `next` field; NextOf reveals the rest of the chain
// to the caller one hop at a time so it never needs to assume a
// particular numbering.
func (q *Queue) AllocChain(n uint16) (head uint16, err error) {
	if q.numFree < n {
		return 0, status.New("virtqueue", status.QueueFull)
	}

	head = q.freeHead

	cur := q.freeHead
	for i := uint16(0); i < n; i++ {
		cur = q.readNext(cur)
	}

	q.freeHead = cur
	q.numFree -= n

	return head, nil
}

// NextOf returns the descriptor currently linked after i, valid both
// while i is on the free list and while it is part of a chain built by
// SetDescriptor.
func (q *Queue) NextOf(i uint16) uint16 {
	return q.readNext(i)
}

// SetDescriptor writes one descriptor cell; it has no allocation
// side-effect.
func (q *Queue) SetDescriptor(i uint16, addr uint64, length uint32, flags uint16, next uint16) {
	q.writeDescriptor(i, addr, length, flags, next)
}

// NumFree returns the number of descriptors currently on the free
// list.
func (q *Queue) NumFree() uint16 {
	return q.numFree
}

// Submit writes head into the available ring, then performs the
// release-fence / increment-idx / release-fence sequence the transport
// requires before the device may be notified.
func (q *Queue) Submit(head uint16) {
	avail := q.buf[q.availOff:]
	idx := binary.LittleEndian.Uint16(avail[2:4])

	slot := 4 + (idx%q.size)*2
	binary.LittleEndian.PutUint16(avail[slot:slot+2], head)

	riscv64.Fence()

	binary.LittleEndian.PutUint16(avail[2:4], idx+1)

	riscv64.Fence()
}

// UsedElem is one entry consumed from the used ring.
type UsedElem struct {
	ID     uint32
	Length uint32
}

// PollUsed reads used.idx with an acquire fence; if it equals the
// driver's last observed index, it returns ok=false. Otherwise it
// reads the next used element, advances the driver's index, and
// returns ok=true.
func (q *Queue) PollUsed() (elem UsedElem, ok bool) {
	used := q.buf[q.usedOff:]

	riscv64.Fence()

	idx := binary.LittleEndian.Uint16(used[2:4])

	if idx == q.lastUsedIdx {
		return UsedElem{}, false
	}

	slot := 4 + (q.lastUsedIdx%q.size)*8
	elem.ID = binary.LittleEndian.Uint32(used[slot : slot+4])
	elem.Length = binary.LittleEndian.Uint32(used[slot+4 : slot+8])

	q.lastUsedIdx++

	return elem, true
}

// Reclaim walks the `next` chain starting at head until a descriptor
// whose NEXT flag is clear, links the tail back onto the free list and
// restores num_free to reflect every descriptor in the chain.
func (q *Queue) Reclaim(head uint16) {
	n := uint16(1)
	cur := head

	for {
		cell := q.descCell(cur)
		flags := binary.LittleEndian.Uint16(cell[12:14])

		if flags&DescFlagNext == 0 {
			break
		}

		cur = binary.LittleEndian.Uint16(cell[14:16])
		n++
	}

	// tail.next -> old free_head
	q.writeDescriptorNext(cur, q.freeHead)

	q.freeHead = head
	q.numFree += n
}

func (q *Queue) writeDescriptorNext(i uint16, next uint16) {
	cell := q.descCell(i)
	binary.LittleEndian.PutUint16(cell[14:16], next)
}
