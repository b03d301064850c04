// Package hashmap implements the Map component of spec §4.4: a
// fixed-capacity open-addressed hash map with linear probing and
// per-slot state words (EMPTY/OCCUPIED/DELETED). The hash function is a
// per-deployment choice (spec §9 Open Questions); this implementation
// fixes xxhash64 (github.com/cespare/xxhash/v2), the same library the
// rest of the corpus reaches for when a fast non-cryptographic digest
// is needed over an arbitrary byte key.
// Author: momentics <momentics@gmail.com>
package hashmap

import (
	"github.com/cespare/xxhash/v2"

	"github.com/queelius/zeroipc/internal/atomic"
	"github.com/queelius/zeroipc/memory"
	"github.com/queelius/zeroipc/zerr"
)

const (
	headerSize = 16 // size u32, capacity u32, key_size u32, value_size u32

	offSize     = 0
	offCapacity = 4
	offKeySize  = 8
	offValSize  = 12
)

// Slot states, stored as the first 4 bytes of every slot.
const (
	stateEmpty   uint32 = 0
	stateOccup   uint32 = 1
	stateDeleted uint32 = 2
)

const slotStateSize = 4

// Map is a non-owning view over a fixed-capacity open-addressed hash
// map in shared memory.
type Map struct {
	buf      []byte
	capacity uint32
	keySize  uint32
	valSize  uint32
	slotLen  uint32 // state + key + value, padded to 8 bytes
}

func slotLen(keySize, valSize uint32) uint32 {
	raw := slotStateSize + keySize + valSize
	return (raw + 7) &^ 7
}

// New allocates and initializes a new Map with the given fixed
// capacity and key/value byte widths.
func New(mem *memory.Memory, name string, capacity, keySize, valSize uint32) (*Map, error) {
	if capacity == 0 {
		return nil, zerr.New(zerr.CodeCapacityRequired, "map capacity must be > 0")
	}
	if keySize == 0 {
		return nil, zerr.New(zerr.CodeDtypeRequired, "map key_size must be > 0")
	}
	sl := slotLen(keySize, valSize)
	total := uint64(headerSize) + uint64(capacity)*uint64(sl)
	offset, err := mem.Allocate(name, total)
	if err != nil {
		return nil, err
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	atomic.StoreUint32(buf, offSize, 0)
	atomic.StoreUint32(buf, offCapacity, capacity)
	atomic.StoreUint32(buf, offKeySize, keySize)
	atomic.StoreUint32(buf, offValSize, valSize)
	// Slots start zeroed by segment.Create; state 0 == EMPTY already.
	return &Map{buf: buf, capacity: capacity, keySize: keySize, valSize: valSize, slotLen: sl}, nil
}

// Open attaches to an existing Map by name.
func Open(mem *memory.Memory, name string) (*Map, error) {
	offset, _, ok := mem.Find(name)
	if !ok {
		return nil, memory.ErrNotFound.WithContext("name", name)
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	capacity := atomic.LoadUint32(buf, offCapacity)
	keySize := atomic.LoadUint32(buf, offKeySize)
	valSize := atomic.LoadUint32(buf, offValSize)
	return &Map{
		buf: buf, capacity: capacity, keySize: keySize, valSize: valSize,
		slotLen: slotLen(keySize, valSize),
	}, nil
}

// Capacity returns the fixed slot count.
func (m *Map) Capacity() uint32 { return m.capacity }

// KeySize returns the configured key byte width.
func (m *Map) KeySize() uint32 { return m.keySize }

// ValueSize returns the configured value byte width.
func (m *Map) ValueSize() uint32 { return m.valSize }

// Size returns a snapshot live-entry count.
func (m *Map) Size() uint32 {
	return atomic.LoadUint32(m.buf, offSize)
}

func (m *Map) slotAt(i uint32) []byte {
	start := uint64(headerSize) + uint64(i)*uint64(m.slotLen)
	return m.buf[start : start+uint64(m.slotLen)]
}

func (m *Map) slotStateOffset(i uint32) uint64 {
	return uint64(headerSize) + uint64(i)*uint64(m.slotLen)
}

func slotKey(slot []byte, keySize uint32) []byte {
	return slot[slotStateSize : slotStateSize+keySize]
}

func slotValue(slot []byte, keySize, valSize uint32) []byte {
	start := slotStateSize + keySize
	return slot[start : start+valSize]
}

func (m *Map) hash(key []byte) uint32 {
	return uint32(xxhash.Sum64(key) % uint64(m.capacity))
}

func keyEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Insert writes (key, value) into the map, overwriting any existing
// value for key. Returns false only when the map is full and key is
// not already present (spec §4.4).
func (m *Map) Insert(key, value []byte) bool {
	if uint32(len(key)) != m.keySize || uint32(len(value)) != m.valSize {
		return false
	}
	start := m.hash(key)
	for probe := uint32(0); probe < m.capacity; {
		idx := (start + probe) % m.capacity
		stateOff := m.slotStateOffset(idx)
		slot := m.slotAt(idx)

		state := atomic.LoadUint32(m.buf, stateOff)
		switch state {
		case stateEmpty:
			// Key and value become visible before the state word's
			// release store, so a concurrent find's acquire-load of
			// state never observes OCCUPIED without the payload.
			copy(slotKey(slot, m.keySize), key)
			copy(slotValue(slot, m.keySize, m.valSize), value)
			if atomic.CASUint32(m.buf, stateOff, stateEmpty, stateOccup) {
				atomic.FetchAddUint32(m.buf, offSize, 1)
				return true
			}
			// Lost the race; another writer claimed this slot. Re-read
			// it on the next spin without advancing probe.
		case stateOccup:
			if keyEqual(slotKey(slot, m.keySize), key) {
				copy(slotValue(slot, m.keySize, m.valSize), value)
				return true
			}
			probe++
		case stateDeleted:
			copy(slotKey(slot, m.keySize), key)
			copy(slotValue(slot, m.keySize, m.valSize), value)
			if atomic.CASUint32(m.buf, stateOff, stateDeleted, stateOccup) {
				atomic.FetchAddUint32(m.buf, offSize, 1)
				return true
			}
		default:
			probe++
		}
	}
	return false
}

// Find looks up key, returning its value and true, or false on a miss.
// The returned slice aliases the map's backing storage.
func (m *Map) Find(key []byte) ([]byte, bool) {
	if uint32(len(key)) != m.keySize {
		return nil, false
	}
	start := m.hash(key)
	for probe := uint32(0); probe < m.capacity; probe++ {
		idx := (start + probe) % m.capacity
		stateOff := m.slotStateOffset(idx)
		slot := m.slotAt(idx)

		state := atomic.LoadUint32(m.buf, stateOff)
		switch state {
		case stateEmpty:
			return nil, false
		case stateOccup:
			if keyEqual(slotKey(slot, m.keySize), key) {
				return slotValue(slot, m.keySize, m.valSize), true
			}
		case stateDeleted:
			// Must not short-circuit: a later probe may still hold key.
		}
	}
	return nil, false
}

// Contains reports whether key is present.
func (m *Map) Contains(key []byte) bool {
	_, ok := m.Find(key)
	return ok
}

// Erase removes key if present, returning whether it was found.
func (m *Map) Erase(key []byte) bool {
	if uint32(len(key)) != m.keySize {
		return false
	}
	start := m.hash(key)
	for probe := uint32(0); probe < m.capacity; probe++ {
		idx := (start + probe) % m.capacity
		stateOff := m.slotStateOffset(idx)
		slot := m.slotAt(idx)

		state := atomic.LoadUint32(m.buf, stateOff)
		switch state {
		case stateEmpty:
			return false
		case stateOccup:
			if keyEqual(slotKey(slot, m.keySize), key) {
				if atomic.CASUint32(m.buf, stateOff, stateOccup, stateDeleted) {
					m.decrementSize()
					return true
				}
				return false
			}
		}
	}
	return false
}

func (m *Map) decrementSize() {
	for {
		cur := atomic.LoadUint32(m.buf, offSize)
		if cur == 0 {
			return
		}
		if atomic.CASUint32(m.buf, offSize, cur, cur-1) {
			return
		}
	}
}

// Clear resets every slot to EMPTY and zeroes size. Single-writer,
// non-atomic: callers must ensure no concurrent readers/writers during
// the call, per spec §6's clear() contract.
func (m *Map) Clear() {
	for i := uint32(0); i < m.capacity; i++ {
		stateOff := m.slotStateOffset(i)
		atomic.StoreUint32(m.buf, stateOff, stateEmpty)
	}
	atomic.StoreUint32(m.buf, offSize, 0)
}
