// Package queue implements the Queue component of spec §4.2: a bounded
// MPMC FIFO ring with one slot reserved to distinguish empty from full
// (usable capacity is capacity-1). The push/pop CAS protocol and its
// release/acquire pairing are a public cross-language wire contract and
// are reproduced exactly as spec §4.2/§5 mandate — this is a different
// algorithm from the teacher's Vyukov sequence-number cells
// (core/concurrency/lock_free_queue.go, core/concurrency/ring.go); what
// is kept from the teacher is the CAS-retry-loop shape. head and tail
// are adjacent 4-byte header fields, with no cache-line padding
// between them.
// Author: momentics <momentics@gmail.com>
package queue

import (
	"github.com/queelius/zeroipc/internal/atomic"
	"github.com/queelius/zeroipc/internal/backoff"
	"github.com/queelius/zeroipc/memory"
	"github.com/queelius/zeroipc/zerr"
)

const (
	headerSize = 16 // head u32, tail u32, capacity u32, elem_size u32

	offHead     = 0
	offTail     = 4
	offCapacity = 8
	offElemSize = 12
)

// Queue is a non-owning view over a bounded MPMC ring buffer.
type Queue struct {
	buf      []byte // header + payload
	capacity uint32 // slot count (usable = capacity-1)
	elemSize uint32
}

// New allocates and initializes a new Queue with the given slot
// capacity (usable capacity is capacity-1) and per-element byte width.
func New(mem *memory.Memory, name string, capacity, elemSize uint32) (*Queue, error) {
	if capacity < 2 {
		return nil, zerr.New(zerr.CodeCapacityRequired, "queue capacity must be >= 2")
	}
	if elemSize == 0 {
		return nil, zerr.New(zerr.CodeDtypeRequired, "queue elem_size must be > 0")
	}
	total := uint64(headerSize) + uint64(capacity)*uint64(elemSize)
	offset, err := mem.Allocate(name, total)
	if err != nil {
		return nil, err
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	atomic.StoreUint32(buf, offHead, 0)
	atomic.StoreUint32(buf, offTail, 0)
	atomic.StoreUint32(buf, offCapacity, capacity)
	atomic.StoreUint32(buf, offElemSize, elemSize)
	return &Queue{buf: buf, capacity: capacity, elemSize: elemSize}, nil
}

// Open attaches to an existing Queue by name.
func Open(mem *memory.Memory, name string) (*Queue, error) {
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
	return &Queue{buf: buf, capacity: capacity, elemSize: elemSize}, nil
}

func (q *Queue) slot(index uint32) []byte {
	start := uint64(headerSize) + uint64(index)*uint64(q.elemSize)
	return q.buf[start : start+uint64(q.elemSize)]
}

// Capacity returns the raw slot count (usable capacity is Capacity()-1).
func (q *Queue) Capacity() uint32 { return q.capacity }

// ElemSize returns the configured per-element byte width.
func (q *Queue) ElemSize() uint32 { return q.elemSize }

// Push copies value (len must equal ElemSize) into the queue, returning
// false if the queue is full. Linearizes at the tail CAS (spec §5).
func (q *Queue) Push(value []byte) bool {
	if uint32(len(value)) != q.elemSize {
		return false
	}
	for {
		tail := atomic.LoadUint32(q.buf, offTail)
		next := (tail + 1) % q.capacity
		head := atomic.LoadUint32(q.buf, offHead)
		if next == head {
			return false // full
		}
		// The element store must precede the tail-CAS (release ordering)
		// so a consumer that observes the advanced tail also observes the
		// value it published (spec §4.2, §5).
		copy(q.slot(tail), value)
		if atomic.CASUint32(q.buf, offTail, tail, next) {
			return true
		}
	}
}

// Pop removes and returns the oldest element, or ok=false if empty.
// Linearizes at the head CAS (spec §5).
func (q *Queue) Pop(dst []byte) (ok bool) {
	if uint32(len(dst)) != q.elemSize {
		return false
	}
	for {
		head := atomic.LoadUint32(q.buf, offHead)
		tail := atomic.LoadUint32(q.buf, offTail)
		if head == tail {
			return false // empty
		}
		next := (head + 1) % q.capacity
		// Copy the element out before the head-CAS hands its slot back to
		// producers; if the CAS loses, the copy is discarded and redone.
		copy(dst, q.slot(head))
		if atomic.CASUint32(q.buf, offHead, head, next) {
			return true
		}
	}
}

// Empty reports whether the queue currently holds no elements.
func (q *Queue) Empty() bool {
	return atomic.LoadUint32(q.buf, offHead) == atomic.LoadUint32(q.buf, offTail)
}

// Full reports whether the queue is at usable capacity.
func (q *Queue) Full() bool {
	tail := atomic.LoadUint32(q.buf, offTail)
	head := atomic.LoadUint32(q.buf, offHead)
	return (tail+1)%q.capacity == head
}

// Size returns a snapshot approximation of (tail-head) mod capacity.
// May lag under concurrency, per spec §4.2.
func (q *Queue) Size() uint32 {
	tail := atomic.LoadUint32(q.buf, offTail)
	head := atomic.LoadUint32(q.buf, offHead)
	return (tail - head + q.capacity) % q.capacity
}

// PushWait retries Push under the §5 spin-backoff schedule until it
// succeeds or the deadline expires.
func (q *Queue) PushWait(value []byte, d *backoff.Deadline) bool {
	for {
		if q.Push(value) {
			return true
		}
		if d.Expired() {
			return false
		}
		d.Spin()
	}
}

// PopWait retries Pop under the §5 spin-backoff schedule until it
// succeeds or the deadline expires.
func (q *Queue) PopWait(dst []byte, d *backoff.Deadline) bool {
	for {
		if q.Pop(dst) {
			return true
		}
		if d.Expired() {
			return false
		}
		d.Spin()
	}
}
