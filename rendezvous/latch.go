package rendezvous

import (
	"github.com/queelius/zeroipc/internal/atomic"
	"github.com/queelius/zeroipc/internal/backoff"
	"github.com/queelius/zeroipc/memory"
	"github.com/queelius/zeroipc/zerr"
)

const (
	latchHeaderSize = 16 // count i32, initial_count i32, _pad i32, _pad i32

	latOffCount        = 0
	latOffInitialCount = 4
)

// Latch is a non-owning view over a single-use countdown latch in
// shared memory.
type Latch struct {
	buf []byte
}

// NewLatch allocates and initializes a new Latch with the given count.
func NewLatch(mem *memory.Memory, name string, count int32) (*Latch, error) {
	if count < 0 {
		return nil, zerr.New(zerr.CodeCapacityRequired, "latch count must be >= 0")
	}
	offset, err := mem.Allocate(name, latchHeaderSize)
	if err != nil {
		return nil, err
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	atomic.StoreInt32(buf, latOffCount, count)
	atomic.StoreInt32(buf, latOffInitialCount, count)
	return &Latch{buf: buf}, nil
}

// OpenLatch attaches to an existing Latch by name.
func OpenLatch(mem *memory.Memory, name string) (*Latch, error) {
	offset, _, ok := mem.Find(name)
	if !ok {
		return nil, memory.ErrNotFound.WithContext("name", name)
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	return &Latch{buf: buf}, nil
}

// Count returns a snapshot of the remaining count.
func (l *Latch) Count() int32 { return atomic.LoadInt32(l.buf, latOffCount) }

// InitialCount returns the count the latch was constructed with.
func (l *Latch) InitialCount() int32 { return atomic.LoadInt32(l.buf, latOffInitialCount) }

// CountDown decrements count by n (default 1 if n<=0), saturating at
// zero; it never goes negative and never resets once it reaches zero.
func (l *Latch) CountDown(n int32) {
	if n <= 0 {
		n = 1
	}
	for {
		cur := atomic.LoadInt32(l.buf, latOffCount)
		if cur == 0 {
			return
		}
		next := cur - n
		if next < 0 {
			next = 0
		}
		if atomic.CASInt32(l.buf, latOffCount, cur, next) {
			return
		}
	}
}

// TryWait reports whether count has already reached zero.
func (l *Latch) TryWait() bool {
	return atomic.LoadInt32(l.buf, latOffCount) == 0
}

// Wait spins under the §5 backoff schedule until count reaches zero or
// the deadline expires. Once zero, always returns true immediately
// (no reset).
func (l *Latch) Wait(d *backoff.Deadline) bool {
	for {
		if l.TryWait() {
			return true
		}
		if d.Expired() {
			return false
		}
		d.Spin()
	}
}
