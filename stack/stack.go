// Package stack implements the Stack component of spec §4.3: a bounded
// LIFO with a signed `top` index (−1 == empty) mutated by CAS. Cheaper
// than Queue because there is only one hot index, and tolerant of index
// ABA: slots are addressed by top's numeric value, never by a reused
// pointer, so a losing CAS simply discards stale data on retry (spec
// §4.3, §9).
// Author: momentics <momentics@gmail.com>
package stack

import (
	"github.com/queelius/zeroipc/internal/atomic"
	"github.com/queelius/zeroipc/internal/backoff"
	"github.com/queelius/zeroipc/memory"
	"github.com/queelius/zeroipc/zerr"
)

const (
	// Header is padded to 16 bytes (top i32, capacity u32, elem_size
	// u32, 4 bytes reserved) to keep the payload region 8-byte aligned,
	// per spec §3's "all per-structure headers are 8-byte aligned".
	headerSize = 16

	offTop      = 0
	offCapacity = 4
	offElemSize = 8
)

const empty = -1

// Stack is a non-owning view over a bounded LIFO in shared memory.
type Stack struct {
	buf      []byte
	capacity uint32
	elemSize uint32
}

// New allocates and initializes a new Stack with the given capacity and
// per-element byte width. top starts at -1 (empty).
func New(mem *memory.Memory, name string, capacity, elemSize uint32) (*Stack, error) {
	if capacity == 0 {
		return nil, zerr.New(zerr.CodeCapacityRequired, "stack capacity must be > 0")
	}
	if elemSize == 0 {
		return nil, zerr.New(zerr.CodeDtypeRequired, "stack elem_size must be > 0")
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
	atomic.StoreInt32(buf, offTop, empty)
	atomic.StoreUint32(buf, offCapacity, capacity)
	atomic.StoreUint32(buf, offElemSize, elemSize)
	return &Stack{buf: buf, capacity: capacity, elemSize: elemSize}, nil
}

// Open attaches to an existing Stack by name.
func Open(mem *memory.Memory, name string) (*Stack, error) {
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
	return &Stack{buf: buf, capacity: capacity, elemSize: elemSize}, nil
}

func (s *Stack) slot(index int32) []byte {
	start := uint64(headerSize) + uint64(index)*uint64(s.elemSize)
	return s.buf[start : start+uint64(s.elemSize)]
}

// Capacity returns the fixed slot count.
func (s *Stack) Capacity() uint32 { return s.capacity }

// ElemSize returns the configured per-element byte width.
func (s *Stack) ElemSize() uint32 { return s.elemSize }

// Push writes value onto the top of the stack, returning false if full.
func (s *Stack) Push(value []byte) bool {
	if uint32(len(value)) != s.elemSize {
		return false
	}
	for {
		t := atomic.LoadInt32(s.buf, offTop)
		next := t + 1
		if next >= int32(s.capacity) {
			return false // full
		}
		if atomic.CASInt32(s.buf, offTop, t, next) {
			copy(s.slot(next), value)
			return true
		}
	}
}

// Pop removes and returns the top element, or ok=false if empty.
func (s *Stack) Pop(dst []byte) (ok bool) {
	if uint32(len(dst)) != s.elemSize {
		return false
	}
	for {
		t := atomic.LoadInt32(s.buf, offTop)
		if t < 0 {
			return false // empty
		}
		copy(dst, s.slot(t))
		if atomic.CASInt32(s.buf, offTop, t, t-1) {
			return true
		}
		// A concurrent pop or push changed top; re-read dst on retry.
	}
}

// Top peeks at the current top element non-destructively. A concurrent
// Pop may invalidate the read; callers must treat this as best-effort,
// per spec §4.3.
func (s *Stack) Top(dst []byte) (ok bool) {
	if uint32(len(dst)) != s.elemSize {
		return false
	}
	t := atomic.LoadInt32(s.buf, offTop)
	if t < 0 {
		return false
	}
	copy(dst, s.slot(t))
	return true
}

// Empty reports whether the stack currently holds no elements.
func (s *Stack) Empty() bool {
	return atomic.LoadInt32(s.buf, offTop) < 0
}

// Full reports whether the stack is at capacity.
func (s *Stack) Full() bool {
	return atomic.LoadInt32(s.buf, offTop)+1 >= int32(s.capacity)
}

// Size returns a snapshot element count.
func (s *Stack) Size() uint32 {
	t := atomic.LoadInt32(s.buf, offTop)
	if t < 0 {
		return 0
	}
	return uint32(t) + 1
}

// PushWait retries Push under the §5 spin-backoff schedule.
func (s *Stack) PushWait(value []byte, d *backoff.Deadline) bool {
	for {
		if s.Push(value) {
			return true
		}
		if d.Expired() {
			return false
		}
		d.Spin()
	}
}

// PopWait retries Pop under the §5 spin-backoff schedule.
func (s *Stack) PopWait(dst []byte, d *backoff.Deadline) bool {
	for {
		if s.Pop(dst) {
			return true
		}
		if d.Expired() {
			return false
		}
		d.Spin()
	}
}
