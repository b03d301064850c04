// Package set implements the Set component of spec §4/§6: a thin
// wrapper over hashmap.Map with a fixed 1-byte value, since Set's wire
// layout and algorithm are identical to Map's (spec: "Set: as Map with
// value_size=1").
// Author: momentics <momentics@gmail.com>
package set

import (
	"github.com/queelius/zeroipc/hashmap"
	"github.com/queelius/zeroipc/memory"
)

// presence is the fixed 1-byte value stored for every member; its
// content is irrelevant, only slot state (OCCUPIED vs not) matters.
var presence = []byte{1}

// Set is a non-owning view over a fixed-capacity set of fixed-width
// keys in shared memory.
type Set struct {
	m *hashmap.Map
}

// New allocates and initializes a new Set with the given fixed
// capacity and key byte width.
func New(mem *memory.Memory, name string, capacity, keySize uint32) (*Set, error) {
	m, err := hashmap.New(mem, name, capacity, keySize, 1)
	if err != nil {
		return nil, err
	}
	return &Set{m: m}, nil
}

// Open attaches to an existing Set by name.
func Open(mem *memory.Memory, name string) (*Set, error) {
	m, err := hashmap.Open(mem, name)
	if err != nil {
		return nil, err
	}
	return &Set{m: m}, nil
}

// Capacity returns the fixed slot count.
func (s *Set) Capacity() uint32 { return s.m.Capacity() }

// KeySize returns the configured key byte width.
func (s *Set) KeySize() uint32 { return s.m.KeySize() }

// Size returns a snapshot live-member count.
func (s *Set) Size() uint32 { return s.m.Size() }

// Insert adds key to the set; returns false only if the set is full
// and key is not already a member.
func (s *Set) Insert(key []byte) bool {
	return s.m.Insert(key, presence)
}

// Contains reports whether key is a member.
func (s *Set) Contains(key []byte) bool {
	return s.m.Contains(key)
}

// Erase removes key if present, returning whether it was a member.
func (s *Set) Erase(key []byte) bool {
	return s.m.Erase(key)
}

// Clear resets the set to empty. Single-writer, non-atomic.
func (s *Set) Clear() {
	s.m.Clear()
}
