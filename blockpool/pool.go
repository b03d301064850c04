// Package blockpool implements the Pool component of spec §4.5: a
// fixed-count, fixed-size block allocator backed by an intrusive free
// list addressed by index rather than pointer, which is what makes it
// ABA-safe across processes that do not share an address space.
// Grounded on the teacher's pool/bufferpool.go free-list shape, adapted
// from a Go-slice-of-pointers free list to an index-based one living
// entirely inside the shared byte buffer.
// Author: momentics <momentics@gmail.com>
package blockpool

import (
	"github.com/queelius/zeroipc/internal/atomic"
	"github.com/queelius/zeroipc/memory"
	"github.com/queelius/zeroipc/zerr"
)

const (
	headerSize = 16 // free_head u32, allocated u32, capacity u32, elem_size u32

	offFreeHead = 0
	offAllocated = 4
	offCapacity  = 8
	offElemSize  = 12
)

// nilIndex is the free-list terminator (spec §4.5).
const nilIndex uint32 = 0xFFFFFFFF

// Pool is a non-owning view over a fixed-count block allocator in
// shared memory.
type Pool struct {
	buf      []byte
	capacity uint32
	elemSize uint32
	nodeLen  uint32 // elem_size + next(u32), padded to 8 bytes
}

func nodeLen(elemSize uint32) uint32 {
	raw := elemSize + 4
	return (raw + 7) &^ 7
}

// New allocates and initializes a Pool of capacity blocks, each
// elemSize bytes, and links the initial free list 0 -> 1 -> ... ->
// capacity-1 -> NIL.
func New(mem *memory.Memory, name string, capacity, elemSize uint32) (*Pool, error) {
	if capacity == 0 {
		return nil, zerr.New(zerr.CodeCapacityRequired, "pool capacity must be > 0")
	}
	if elemSize == 0 {
		return nil, zerr.New(zerr.CodeDtypeRequired, "pool elem_size must be > 0")
	}
	nl := nodeLen(elemSize)
	total := uint64(headerSize) + uint64(capacity)*uint64(nl)
	offset, err := mem.Allocate(name, total)
	if err != nil {
		return nil, err
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	p := &Pool{buf: buf, capacity: capacity, elemSize: elemSize, nodeLen: nl}
	p.initFreeList()
	atomic.StoreUint32(buf, offFreeHead, 0)
	atomic.StoreUint32(buf, offAllocated, 0)
	atomic.StoreUint32(buf, offCapacity, capacity)
	atomic.StoreUint32(buf, offElemSize, elemSize)
	return p, nil
}

// Open attaches to an existing Pool by name.
func Open(mem *memory.Memory, name string) (*Pool, error) {
	offset, _, ok := mem.Find(name)
	if !ok {
		return nil, memory.ErrNotFound.WithContext("name", name)
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	capacity := atomic.LoadUint32(buf, offCapacity)
	elemSize := atomic.LoadUint32(buf, offElemSize)
	return &Pool{buf: buf, capacity: capacity, elemSize: elemSize, nodeLen: nodeLen(elemSize)}, nil
}

func (p *Pool) nodeAt(i uint32) []byte {
	start := uint64(headerSize) + uint64(i)*uint64(p.nodeLen)
	return p.buf[start : start+uint64(p.nodeLen)]
}

func (p *Pool) nextOffset(i uint32) uint64 {
	return uint64(headerSize) + uint64(i)*uint64(p.nodeLen) + uint64(p.elemSize)
}

func (p *Pool) initFreeList() {
	for i := uint32(0); i < p.capacity; i++ {
		next := i + 1
		if i == p.capacity-1 {
			next = nilIndex
		}
		atomic.StoreUint32(p.buf, p.nextOffset(i), next)
	}
}

// Capacity returns the fixed block count.
func (p *Pool) Capacity() uint32 { return p.capacity }

// ElemSize returns the configured per-block byte width.
func (p *Pool) ElemSize() uint32 { return p.elemSize }

// Allocated returns a snapshot of the number of outstanding blocks.
func (p *Pool) Allocated() uint32 {
	return atomic.LoadUint32(p.buf, offAllocated)
}

// Available returns a snapshot of the number of free blocks.
func (p *Pool) Available() uint32 {
	return p.capacity - p.Allocated()
}

// Allocate pops an index off the free list, returning (index, true),
// or (0, false) if the pool is exhausted.
func (p *Pool) Allocate() (uint32, bool) {
	for {
		h := atomic.LoadUint32(p.buf, offFreeHead)
		if h == nilIndex {
			return 0, false
		}
		next := atomic.LoadUint32(p.buf, p.nextOffset(h))
		if atomic.CASUint32(p.buf, offFreeHead, h, next) {
			atomic.FetchAddUint32(p.buf, offAllocated, 1)
			return h, true
		}
	}
}

// Deallocate pushes index i back onto the free list.
func (p *Pool) Deallocate(i uint32) bool {
	if i >= p.capacity {
		return false
	}
	for {
		h := atomic.LoadUint32(p.buf, offFreeHead)
		// next-write (release) must precede the CAS that publishes i as
		// the new free_head, so a subsequent allocator's next-read
		// (acquire) observes a consistent link.
		atomic.StoreUint32(p.buf, p.nextOffset(i), h)
		if atomic.CASUint32(p.buf, offFreeHead, h, i) {
			p.decrementAllocated()
			return true
		}
	}
}

func (p *Pool) decrementAllocated() {
	for {
		cur := atomic.LoadUint32(p.buf, offAllocated)
		if cur == 0 {
			return
		}
		if atomic.CASUint32(p.buf, offAllocated, cur, cur-1) {
			return
		}
	}
}

// Block returns a view of block index i's element bytes (excluding the
// intrusive next-pointer trailer).
func (p *Pool) Block(i uint32) ([]byte, error) {
	if i >= p.capacity {
		return nil, zerr.New(zerr.CodeSizeMismatch, "pool index out of range").
			WithContext("index", i).WithContext("capacity", p.capacity)
	}
	node := p.nodeAt(i)
	return node[:p.elemSize], nil
}

// Reset reinitializes the free list and zeroes allocated. Single-writer,
// non-atomic: callers must ensure no concurrent allocators/deallocators
// during the call, per SPEC_FULL.md.
func (p *Pool) Reset() {
	p.initFreeList()
	atomic.StoreUint32(p.buf, offFreeHead, 0)
	atomic.StoreUint32(p.buf, offAllocated, 0)
}
