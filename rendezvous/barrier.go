package rendezvous

import (
	"github.com/queelius/zeroipc/internal/atomic"
	"github.com/queelius/zeroipc/internal/backoff"
	"github.com/queelius/zeroipc/memory"
	"github.com/queelius/zeroipc/zerr"
)

const (
	barrierHeaderSize = 16 // arrived i32, generation i32, participants i32, _pad u32

	barOffArrived      = 0
	barOffGeneration   = 4
	barOffParticipants = 8
)

// Barrier is a non-owning view over a reusable cyclic barrier in shared
// memory.
type Barrier struct {
	buf []byte
}

// NewBarrier allocates and initializes a new Barrier for the given
// number of participants.
func NewBarrier(mem *memory.Memory, name string, participants int32) (*Barrier, error) {
	if participants <= 0 {
		return nil, zerr.New(zerr.CodeCapacityRequired, "barrier participants must be > 0")
	}
	offset, err := mem.Allocate(name, barrierHeaderSize)
	if err != nil {
		return nil, err
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	atomic.StoreInt32(buf, barOffArrived, 0)
	atomic.StoreInt32(buf, barOffGeneration, 0)
	atomic.StoreInt32(buf, barOffParticipants, participants)
	return &Barrier{buf: buf}, nil
}

// OpenBarrier attaches to an existing Barrier by name.
func OpenBarrier(mem *memory.Memory, name string) (*Barrier, error) {
	offset, _, ok := mem.Find(name)
	if !ok {
		return nil, memory.ErrNotFound.WithContext("name", name)
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	return &Barrier{buf: buf}, nil
}

// Arrived returns a snapshot of the current-generation arrival count.
func (b *Barrier) Arrived() int32 { return atomic.LoadInt32(b.buf, barOffArrived) }

// Generation returns the current generation counter.
func (b *Barrier) Generation() int32 { return atomic.LoadInt32(b.buf, barOffGeneration) }

// Participants returns the configured participant count.
func (b *Barrier) Participants() int32 { return atomic.LoadInt32(b.buf, barOffParticipants) }

// Wait blocks until all participants have called Wait for the current
// generation, then returns true. If d expires first, it decrements
// arrived and returns false; per spec §4.8 this is racy by design if
// the last arriver crosses the generation bump concurrently with a
// timeout give-up.
func (b *Barrier) Wait(d *backoff.Deadline) bool {
	myGen := atomic.LoadInt32(b.buf, barOffGeneration)
	arrivedNow := atomic.FetchAddInt32(b.buf, barOffArrived, 1)
	participants := atomic.LoadInt32(b.buf, barOffParticipants)

	if arrivedNow == participants {
		atomic.StoreInt32(b.buf, barOffArrived, 0)
		atomic.FetchAddInt32(b.buf, barOffGeneration, 1)
		return true
	}

	for {
		if atomic.LoadInt32(b.buf, barOffGeneration) != myGen {
			return true
		}
		if d.Expired() {
			atomic.FetchAddInt32(b.buf, barOffArrived, -1)
			return false
		}
		d.Spin()
	}
}
