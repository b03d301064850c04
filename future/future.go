// Package future implements the Future and Lazy components of spec
// §4.7: a single-assignment value cell with state transitions
// PENDING -> COMPUTING -> READY or PENDING -> COMPUTING -> ERROR, CAS'd
// on the state word. Lazy layers a process-local thunk registry over
// the same wire cell, since a Go closure cannot itself live in shared
// memory: only the peer that wins the COMPUTING CAS evaluates it.
// Grounded on the teacher's core/concurrency/executor.go future-style
// result cell, adapted from an in-process channel-backed promise to a
// CAS state machine over shared bytes.
// Author: momentics <momentics@gmail.com>
package future

import (
	"github.com/queelius/zeroipc/internal/atomic"
	"github.com/queelius/zeroipc/internal/backoff"
	"github.com/queelius/zeroipc/memory"
	"github.com/queelius/zeroipc/zerr"
)

// State values (spec §4.7).
const (
	StatePending   uint32 = 0
	StateComputing uint32 = 1
	StateReady     uint32 = 2
	StateError     uint32 = 3
)

const errorSlotSize = 256

const (
	futureHeaderSize = 16 // state u32, waiters u32, completion_us u64
	futOffState      = 0
	futOffWaiters    = 4
	futOffCompletion = 8

	lazyHeaderSize = 8 // state u32, reserved u32
	lazOffState    = 0
)

// Future is a non-owning view over a single-assignment value cell in
// shared memory.
type Future struct {
	buf       []byte
	valueSize uint32
}

func futureErrorOffset(valueSize uint32) uint64 {
	return uint64(futureHeaderSize) + uint64(valueSize)
}

// New allocates and initializes a new Future holding values of
// valueSize bytes.
func New(mem *memory.Memory, name string, valueSize uint32) (*Future, error) {
	total := uint64(futureHeaderSize) + uint64(valueSize) + errorSlotSize
	offset, err := mem.Allocate(name, total)
	if err != nil {
		return nil, err
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	atomic.StoreUint32(buf, futOffState, StatePending)
	atomic.StoreUint32(buf, futOffWaiters, 0)
	atomic.StoreUint64(buf, futOffCompletion, 0)
	return &Future{buf: buf, valueSize: valueSize}, nil
}

// Open attaches to an existing Future by name. valueSize must match
// what the creator used.
func Open(mem *memory.Memory, name string, valueSize uint32) (*Future, error) {
	offset, _, ok := mem.Find(name)
	if !ok {
		return nil, memory.ErrNotFound.WithContext("name", name)
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	return &Future{buf: buf, valueSize: valueSize}, nil
}

func (f *Future) valueSlot() []byte {
	return f.buf[futureHeaderSize : uint64(futureHeaderSize)+uint64(f.valueSize)]
}

func (f *Future) errorSlot() []byte {
	start := futureErrorOffset(f.valueSize)
	return f.buf[start : start+errorSlotSize]
}

// SetValue attempts the PENDING->COMPUTING->READY transition, writing
// value before the READY release store. Returns false if some other
// writer already claimed or completed the future.
func (f *Future) SetValue(value []byte) bool {
	if uint32(len(value)) != f.valueSize {
		return false
	}
	if !atomic.CASUint32(f.buf, futOffState, StatePending, StateComputing) {
		return false
	}
	copy(f.valueSlot(), value)
	atomic.StoreUint32(f.buf, futOffState, StateReady)
	return true
}

// SetError attempts the PENDING->COMPUTING->ERROR transition, writing
// msg (truncated to errorSlotSize-1 bytes, nul-terminated) before the
// ERROR release store.
func (f *Future) SetError(msg string) bool {
	if !atomic.CASUint32(f.buf, futOffState, StatePending, StateComputing) {
		return false
	}
	slot := f.errorSlot()
	for i := range slot {
		slot[i] = 0
	}
	n := copy(slot[:errorSlotSize-1], msg)
	_ = n
	atomic.StoreUint32(f.buf, futOffState, StateError)
	return true
}

// State returns the current state word.
func (f *Future) State() uint32 {
	return atomic.LoadUint32(f.buf, futOffState)
}

// IsPending, IsReady, IsError report the current state.
func (f *Future) IsPending() bool { return f.State() == StatePending }
func (f *Future) IsReady() bool   { return f.State() == StateReady }
func (f *Future) IsError() bool   { return f.State() == StateError }

// TryGet returns the value immediately if READY, without blocking.
func (f *Future) TryGet() ([]byte, bool) {
	if f.State() != StateReady {
		return nil, false
	}
	out := make([]byte, f.valueSize)
	copy(out, f.valueSlot())
	return out, true
}

// errMessage decodes the nul-terminated error slot.
func (f *Future) errMessage() string {
	slot := f.errorSlot()
	n := 0
	for n < len(slot) && slot[n] != 0 {
		n++
	}
	return string(slot[:n])
}

// Wait spins under the §5 backoff schedule until the future reaches
// READY or ERROR, or the deadline expires. On READY it returns the
// value; on ERROR it returns a zerr.CodeComputationFailed error; on
// timeout it returns (nil, nil, false).
func (f *Future) Wait(d *backoff.Deadline) (value []byte, err error, ok bool) {
	for {
		switch f.State() {
		case StateReady:
			v, _ := f.TryGet()
			return v, nil, true
		case StateError:
			return nil, zerr.New(zerr.CodeComputationFailed, f.errMessage()), true
		}
		if d.Expired() {
			return nil, nil, false
		}
		d.Spin()
	}
}

// Get blocks indefinitely until the future completes.
func (f *Future) Get() ([]byte, error) {
	v, err, _ := f.Wait(backoff.NewDeadline(0))
	return v, err
}

// Lazy layers a process-local thunk over a PENDING/COMPUTING/READY
// state cell. Only the peer that wins the COMPUTING CAS evaluates the
// thunk; others spin-wait on Force.
type Lazy struct {
	buf       []byte
	valueSize uint32
	thunk     func() ([]byte, error)
}

func lazyErrorOffset(valueSize uint32) uint64 {
	return uint64(lazyHeaderSize) + uint64(valueSize)
}

// NewLazy allocates and initializes a new Lazy cell holding values of
// valueSize bytes.
func NewLazy(mem *memory.Memory, name string, valueSize uint32) (*Lazy, error) {
	total := uint64(lazyHeaderSize) + uint64(valueSize) + errorSlotSize
	offset, err := mem.Allocate(name, total)
	if err != nil {
		return nil, err
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	atomic.StoreUint32(buf, lazOffState, StatePending)
	return &Lazy{buf: buf, valueSize: valueSize}, nil
}

// OpenLazy attaches to an existing Lazy cell by name.
func OpenLazy(mem *memory.Memory, name string, valueSize uint32) (*Lazy, error) {
	offset, _, ok := mem.Find(name)
	if !ok {
		return nil, memory.ErrNotFound.WithContext("name", name)
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	return &Lazy{buf: buf, valueSize: valueSize}, nil
}

// SetComputation registers this process's thunk. It is never persisted
// to shared memory; peers that did not call SetComputation must simply
// wait for whichever peer wins Force's CAS to publish the result.
func (l *Lazy) SetComputation(thunk func() ([]byte, error)) {
	l.thunk = thunk
}

func (l *Lazy) valueSlot() []byte {
	return l.buf[lazyHeaderSize : uint64(lazyHeaderSize)+uint64(l.valueSize)]
}

func (l *Lazy) errorSlot() []byte {
	start := lazyErrorOffset(l.valueSize)
	return l.buf[start : start+errorSlotSize]
}

func (l *Lazy) errMessage() string {
	slot := l.errorSlot()
	n := 0
	for n < len(slot) && slot[n] != 0 {
		n++
	}
	return string(slot[:n])
}

// State returns the current state word.
func (l *Lazy) State() uint32 {
	return atomic.LoadUint32(l.buf, lazOffState)
}

// IsReady, IsError report the current state.
func (l *Lazy) IsReady() bool { return l.State() == StateReady }
func (l *Lazy) IsError() bool { return l.State() == StateError }

// Force evaluates the thunk if this peer wins the PENDING->COMPUTING
// CAS, publishing READY/ERROR; otherwise it spins under the §5 backoff
// schedule until whoever won publishes a terminal state.
func (l *Lazy) Force() ([]byte, error) {
	if atomic.CASUint32(l.buf, lazOffState, StatePending, StateComputing) {
		if l.thunk == nil {
			atomic.StoreUint32(l.buf, lazOffState, StateError)
			return nil, zerr.New(zerr.CodeComputationFailed, "lazy has no registered computation")
		}
		v, err := l.thunk()
		if err != nil {
			slot := l.errorSlot()
			for i := range slot {
				slot[i] = 0
			}
			copy(slot[:errorSlotSize-1], err.Error())
			atomic.StoreUint32(l.buf, lazOffState, StateError)
			return nil, zerr.Wrap(err, zerr.CodeComputationFailed, "lazy computation failed")
		}
		copy(l.valueSlot(), v)
		atomic.StoreUint32(l.buf, lazOffState, StateReady)
		return v, nil
	}

	w := backoff.Waiter{}
	for {
		switch l.State() {
		case StateReady:
			out := make([]byte, l.valueSize)
			copy(out, l.valueSlot())
			return out, nil
		case StateError:
			return nil, zerr.New(zerr.CodeComputationFailed, l.errMessage())
		}
		w.Spin()
	}
}
