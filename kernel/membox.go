package kernel

import (
	"encoding/binary"
	"unsafe"
)

// memboxMagic occupies the top 24 bits of an allocated block's header
// word; the low 8 bits carry the allocating task's id, mirroring
// OS_MEMBOX_MAGIC / OS_MEMBOX_TASKID_BITS from the original membox.
const memboxMagic uint32 = 0xa55a5a00
const memboxMagicMask uint32 = 0xffffff00
const memboxTaskIDMask uint32 = 0x000000ff

// memboxNoNext terminates a membox free list, analogous to a NULL
// pstNext in the original implementation.
const memboxNoNext uint32 = 0xffffffff

const memboxHeaderSize = 4

// Membox is a fixed-block memory pool: every block is the same size, and
// allocation/free are O(1) singly-linked-free-list operations with no
// fragmentation, per spec.md §4.3. Unlike Task/Mutex/Timer, a Membox's
// backing storage is a plain byte slice the caller supplies, not a
// kernel-managed table.
type Membox struct {
	region   []byte
	stride   uint32 // bytes per block, including the header word
	userSize uint32 // bytes available to the caller per block
	count    uint32
	freeHead uint32
	used     uint32
}

// MemboxInit partitions region into fixed-size blocks of at least
// blockSize usable bytes each, per spec.md §4.3's init operation. region
// must not be reused for anything else afterward.
func (k *Kernel) MemboxInit(region []byte, blockSize uint32) (*Membox, error) {
	if len(region) < memboxHeaderSize {
		return nil, ErrMemboxRegionTooSmall
	}
	if blockSize == 0 {
		return nil, ErrMemboxBlockSizeZero
	}
	stride := align4(blockSize + memboxHeaderSize)
	count := uint32(len(region)) / stride
	if count == 0 {
		return nil, ErrMemboxNoCapacity
	}

	m := &Membox{
		region:   region[:stride*count],
		stride:   stride,
		userSize: stride - memboxHeaderSize,
		count:    count,
		freeHead: 0,
	}
	for i := uint32(0); i < count; i++ {
		next := i + 1
		if next == count {
			next = memboxNoNext
		}
		m.writeHeader(i, next)
	}
	return m, nil
}

func align4(n uint32) uint32 { return (n + 3) &^ 3 }

func (m *Membox) headerOffset(block uint32) uint32 { return block * m.stride }

func (m *Membox) readHeader(block uint32) uint32 {
	off := m.headerOffset(block)
	return binary.LittleEndian.Uint32(m.region[off : off+4])
}

func (m *Membox) writeHeader(block uint32, v uint32) {
	off := m.headerOffset(block)
	binary.LittleEndian.PutUint32(m.region[off:off+4], v)
}

func (m *Membox) blockData(block uint32) []byte {
	start := m.headerOffset(block) + memboxHeaderSize
	return m.region[start : start+m.userSize]
}

// MemboxAlloc returns a fresh block, tagged internally with owner for
// later double-free/foreign-free detection. It does not zero the block;
// call MemboxClear first if that matters.
func (k *Kernel) MemboxAlloc(m *Membox, owner TaskID) ([]byte, error) {
	if m == nil {
		return nil, ErrMemboxInvalid
	}
	var data []byte
	var err error
	k.criticalSection(func() {
		if m.freeHead == memboxNoNext {
			err = ErrMemboxAllocEmpty
			return
		}
		block := m.freeHead
		m.freeHead = m.readHeader(block)
		m.writeHeader(block, memboxMagic|(uint32(owner)&memboxTaskIDMask))
		m.used++
		data = m.blockData(block)
	})
	return data, err
}

// MemboxFree returns box, previously obtained from MemboxAlloc on the
// same pool, to the free list. Passing a pointer outside the pool, not
// block-aligned, or already free (magic mismatch) is rejected without
// mutating the pool, per spec.md §4.3.
func (k *Kernel) MemboxFree(m *Membox, box []byte) error {
	if m == nil {
		return ErrMemboxInvalid
	}
	block, err := m.blockIndex(box)
	if err != nil {
		return err
	}
	k.criticalSection(func() {
		m.writeHeader(block, m.freeHead)
		m.freeHead = block
		m.used--
	})
	return nil
}

// MemboxClear zeroes a previously allocated block.
func (k *Kernel) MemboxClear(m *Membox, box []byte) error {
	if m == nil {
		return ErrMemboxInvalid
	}
	if _, err := m.blockIndex(box); err != nil {
		return err
	}
	for i := range box {
		box[i] = 0
	}
	return nil
}

// blockIndex recovers box's block index within m and validates that it is
// currently allocated, mirroring OsCheckBoxMem/OsMemBoxCheckMagic.
func (m *Membox) blockIndex(box []byte) (uint32, error) {
	if len(box) == 0 || len(m.region) == 0 {
		return 0, ErrMemboxFreeBadPtr
	}
	base := uintptr(unsafe.Pointer(&m.region[0]))
	ptr := uintptr(unsafe.Pointer(&box[0]))
	regionEnd := base + uintptr(len(m.region))
	if ptr < base+memboxHeaderSize || ptr >= regionEnd {
		return 0, ErrMemboxFreeBadPtr
	}
	rel := ptr - base - memboxHeaderSize
	if rel%uintptr(m.stride) != 0 {
		return 0, ErrMemboxFreeBadPtr
	}
	block := uint32(rel / uintptr(m.stride))
	if block >= m.count {
		return 0, ErrMemboxFreeBadPtr
	}
	if m.readHeader(block)&memboxMagicMask != memboxMagic {
		return 0, ErrMemboxFreeBadPtr
	}
	return block, nil
}

// MemboxStats reports a pool's capacity and current occupancy.
type MemboxStats struct {
	BlockSize  uint32
	TotalCount uint32
	UsedCount  uint32
}

// MemboxStats returns m's current occupancy.
func (k *Kernel) MemboxStats(m *Membox) MemboxStats {
	return MemboxStats{BlockSize: m.userSize, TotalCount: m.count, UsedCount: m.used}
}
