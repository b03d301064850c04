// Package memory implements the Memory façade of spec §4.1: it binds a
// segment.Segment to a table.Table and exposes the allocate/find/at
// operations every structure constructor builds on. Grounded on the
// teacher's pool/bufferpool.go — a thin manager dispatching to a
// lower-level platform implementation — generalized from buffer
// pooling to named-structure bookkeeping.
// Author: momentics <momentics@gmail.com>
package memory

import (
	"github.com/queelius/zeroipc/segment"
	"github.com/queelius/zeroipc/table"
	"github.com/queelius/zeroipc/zerr"
)

// DefaultMaxEntries matches spec §6's Memory.new default.
const DefaultMaxEntries = 64

// Memory binds one Segment to its Table and is the handle every
// structure constructor (Array.New, Queue.New, ...) takes.
type Memory struct {
	seg *segment.Segment
	tbl *table.Table
}

// Create creates a brand-new named segment sized to hold the table
// (sized for maxEntries, 64 if <= 0) plus extra bytes for whatever
// structures the caller intends to allocate afterward, and initializes
// the table at offset 0.
func Create(name string, extraBytes uint64, maxEntries int) (*Memory, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	tableSize := table.Size(uint32(maxEntries))
	total := tableSize + extraBytes

	seg, err := segment.Create(name, total)
	if err != nil {
		return nil, err
	}
	tbl, err := table.Init(seg.Bytes(), uint32(maxEntries), total)
	if err != nil {
		_ = seg.Close()
		return nil, err
	}
	return &Memory{seg: seg, tbl: tbl}, nil
}

// Open attaches to an existing named segment as a peer and validates
// its table header.
func Open(name string, maxEntries int) (*Memory, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	seg, err := segment.Open(name)
	if err != nil {
		return nil, err
	}
	tbl, err := table.Open(seg.Bytes(), uint32(maxEntries))
	if err != nil {
		_ = seg.Close()
		return nil, err
	}
	return &Memory{seg: seg, tbl: tbl}, nil
}

// Unlink removes the named segment from the OS namespace. Only the
// owner/creator should ever call this.
func Unlink(name string) error {
	return segment.Unlink(name)
}

// Close releases this process's mapping without unlinking the segment.
func (m *Memory) Close() error {
	return m.seg.Close()
}

// Segment exposes the underlying Segment, for callers that need raw
// byte access beyond the Memory façade (e.g. structure constructors).
func (m *Memory) Segment() *segment.Segment { return m.seg }

// Table exposes the underlying Table for diagnostics and tests.
func (m *Memory) Table() *table.Table { return m.tbl }

// Allocate reserves bytes bytes 8-byte aligned for a new named
// structure and registers the (name, offset, size) entry. Single-writer
// by contract (spec §4.1): intended to run only during the creator's
// own setup, before the segment is shared with peers.
func (m *Memory) Allocate(name string, bytes uint64) (uint64, error) {
	offset, err := m.tbl.Allocate(bytes, 8)
	if err != nil {
		return 0, err
	}
	if err := m.tbl.Add(name, offset, bytes); err != nil {
		return 0, err
	}
	return offset, nil
}

// Find resolves a structure's (offset, size) by name.
func (m *Memory) Find(name string) (offset, size uint64, ok bool) {
	e, found := m.tbl.Find(name)
	if !found {
		return 0, 0, false
	}
	return e.Offset, e.Size, true
}

// At returns the byte view starting at offset within the segment.
func (m *Memory) At(offset uint64) ([]byte, error) {
	return m.seg.At(offset)
}

// Bytes returns the full raw segment buffer.
func (m *Memory) Bytes() []byte { return m.seg.Bytes() }

// ErrNotFound is returned by structure Open helpers when a name isn't
// registered in the table; kept exported for errors.Is convenience.
var ErrNotFound = zerr.New(zerr.CodeNameNotFound, "structure not found in table")
