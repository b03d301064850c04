// Package rendezvous implements the counting-based rendezvous
// primitives of spec §4.8-§4.10: Semaphore, Barrier, and Latch, all
// sharing the same spin-backoff wait discipline as the rest of the
// library. Grounded on the teacher's core/concurrency/executor.go
// worker-coordination counters, adapted from in-process sync primitives
// to CAS loops over shared bytes.
// Author: momentics <momentics@gmail.com>
package rendezvous

import (
	"github.com/queelius/zeroipc/internal/atomic"
	"github.com/queelius/zeroipc/internal/backoff"
	"github.com/queelius/zeroipc/memory"
	"github.com/queelius/zeroipc/zerr"
)

const (
	semHeaderSize = 16 // count i32, waiting i32, max_count i32, _pad u32

	semOffCount    = 0
	semOffWaiting  = 4
	semOffMaxCount = 8
)

// Semaphore is a non-owning view over a counting semaphore in shared
// memory.
type Semaphore struct {
	buf []byte
}

// NewSemaphore allocates and initializes a new Semaphore with the given
// initial count and max (0 = unbounded).
func NewSemaphore(mem *memory.Memory, name string, initial, max int32) (*Semaphore, error) {
	if initial < 0 {
		return nil, zerr.New(zerr.CodeCapacityRequired, "semaphore initial count must be >= 0")
	}
	offset, err := mem.Allocate(name, semHeaderSize)
	if err != nil {
		return nil, err
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	atomic.StoreInt32(buf, semOffCount, initial)
	atomic.StoreInt32(buf, semOffWaiting, 0)
	atomic.StoreInt32(buf, semOffMaxCount, max)
	return &Semaphore{buf: buf}, nil
}

// OpenSemaphore attaches to an existing Semaphore by name.
func OpenSemaphore(mem *memory.Memory, name string) (*Semaphore, error) {
	offset, _, ok := mem.Find(name)
	if !ok {
		return nil, memory.ErrNotFound.WithContext("name", name)
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	return &Semaphore{buf: buf}, nil
}

// Count returns a snapshot of the current permit count.
func (s *Semaphore) Count() int32 { return atomic.LoadInt32(s.buf, semOffCount) }

// Waiting returns a snapshot of the current waiter count.
func (s *Semaphore) Waiting() int32 { return atomic.LoadInt32(s.buf, semOffWaiting) }

// MaxCount returns the configured overflow ceiling (0 = unbounded).
func (s *Semaphore) MaxCount() int32 { return atomic.LoadInt32(s.buf, semOffMaxCount) }

// TryAcquire attempts to take one permit without spinning.
func (s *Semaphore) TryAcquire() bool {
	for {
		c := atomic.LoadInt32(s.buf, semOffCount)
		if c <= 0 {
			return false
		}
		if atomic.CASInt32(s.buf, semOffCount, c, c-1) {
			return true
		}
	}
}

// Acquire takes one permit, spin-waiting under the §5 backoff schedule
// until one is available or the deadline expires.
func (s *Semaphore) Acquire(d *backoff.Deadline) bool {
	atomic.FetchAddInt32(s.buf, semOffWaiting, 1)
	for {
		c := atomic.LoadInt32(s.buf, semOffCount)
		if c > 0 && atomic.CASInt32(s.buf, semOffCount, c, c-1) {
			atomic.FetchAddInt32(s.buf, semOffWaiting, -1)
			return true
		}
		if d.Expired() {
			atomic.FetchAddInt32(s.buf, semOffWaiting, -1)
			return false
		}
		d.Spin()
	}
}

// Release returns one permit, refusing to exceed max_count when it is
// nonzero. Returns zerr.CodeOverflow if the release would overflow.
func (s *Semaphore) Release() error {
	for {
		c := atomic.LoadInt32(s.buf, semOffCount)
		max := atomic.LoadInt32(s.buf, semOffMaxCount)
		if max != 0 && c >= max {
			return zerr.New(zerr.CodeOverflow, "semaphore release exceeds max_count").
				WithContext("count", c).WithContext("max_count", max)
		}
		if atomic.CASInt32(s.buf, semOffCount, c, c+1) {
			return nil
		}
	}
}
