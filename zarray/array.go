// Package zarray implements the Array component of spec §3/§4: a
// fixed-capacity typed vector — header of a single u64 capacity field
// followed by capacity×element_size payload bytes. Array carries no
// concurrency contract beyond element-sized reads/writes (spec §2 row
// 5); callers needing cross-process synchronization layer a
// structure with one on top, or rely on external coordination.
// Grounded on the teacher's pool/ring.go plain `data []T` backing-store
// shape — no atomics here, just bounds-checked byte-slot access.
// Author: momentics <momentics@gmail.com>
package zarray

import (
	"encoding/binary"

	"github.com/queelius/zeroipc/memory"
	"github.com/queelius/zeroipc/zerr"
)

const headerSize = 8 // capacity: u64

// Array is a non-owning view over a fixed-capacity typed vector in
// shared memory.
type Array struct {
	buf         []byte // header + payload region
	capacity    uint64
	elementSize uint64
}

// New allocates and initializes a new Array of capacity elements, each
// elementSize bytes.
func New(mem *memory.Memory, name string, capacity, elementSize uint64) (*Array, error) {
	if capacity == 0 {
		return nil, zerr.New(zerr.CodeCapacityRequired, "array capacity must be > 0")
	}
	if elementSize == 0 {
		return nil, zerr.New(zerr.CodeDtypeRequired, "array element_size must be > 0")
	}
	total := headerSize + capacity*elementSize
	offset, err := mem.Allocate(name, total)
	if err != nil {
		return nil, err
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint64(buf[0:8], capacity)
	return &Array{buf: buf, capacity: capacity, elementSize: elementSize}, nil
}

// Open attaches to an existing Array by name. elementSize must match
// what the creator used; it is not recoverable from the header alone.
func Open(mem *memory.Memory, name string, elementSize uint64) (*Array, error) {
	offset, _, ok := mem.Find(name)
	if !ok {
		return nil, memory.ErrNotFound.WithContext("name", name)
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	capacity := binary.LittleEndian.Uint64(buf[0:8])
	return &Array{buf: buf, capacity: capacity, elementSize: elementSize}, nil
}

// Capacity returns the fixed element count.
func (a *Array) Capacity() uint64 { return a.capacity }

// ElementSize returns the configured per-element byte width.
func (a *Array) ElementSize() uint64 { return a.elementSize }

func (a *Array) slotOffset(index uint64) uint64 {
	return headerSize + index*a.elementSize
}

// Get returns a view of element index's bytes; mutating the returned
// slice mutates the array in place.
func (a *Array) Get(index uint64) ([]byte, error) {
	if index >= a.capacity {
		return nil, zerr.New(zerr.CodeSizeMismatch, "array index out of range").
			WithContext("index", index).WithContext("capacity", a.capacity)
	}
	start := a.slotOffset(index)
	return a.buf[start : start+a.elementSize], nil
}

// Set copies value into element index. len(value) must equal ElementSize.
func (a *Array) Set(index uint64, value []byte) error {
	if uint64(len(value)) != a.elementSize {
		return zerr.New(zerr.CodeSizeMismatch, "value length does not match element_size").
			WithContext("got", len(value)).WithContext("want", a.elementSize)
	}
	slot, err := a.Get(index)
	if err != nil {
		return err
	}
	copy(slot, value)
	return nil
}
