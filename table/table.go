// Package table implements the Metadata Table of spec §3/§4.1: a
// fixed-capacity, append-only directory at offset 0 of a Segment,
// mapping names to (offset, size), plus the bump allocator cursor used
// to place every subsequent structure.
//
// The byte layout is a public, cross-language wire contract (spec §6)
// and is reproduced here exactly: a 32-byte header followed by
// max_entries fixed 48-byte entries. Every multi-byte field is
// little-endian.
// Author: momentics <momentics@gmail.com>
package table

import (
	"encoding/binary"

	"github.com/queelius/zeroipc/internal/zlog"
	"github.com/queelius/zeroipc/zerr"
	"go.uber.org/zap"
)

const (
	// Magic is the literal 4-byte table signature "ZIPM".
	Magic uint32 = 0x5A49504D
	// Version is the only wire version this implementation understands.
	Version uint32 = 1

	headerSize = 32
	entrySize  = 48

	offMagic      = 0
	offVersion    = 4
	offEntryCount = 8
	offReserved   = 12
	offMemorySize = 16
	offNextOffset = 24

	entryOffName   = 0
	entryNameLen   = 32
	entryOffOffset = 32
	entryOffSize   = 40

	// MaxNameBytes is the largest UTF-8 byte length a name may have
	// (the 32-byte field is null-padded, leaving 31 usable bytes).
	MaxNameBytes = 31
)

// Entry is one resolved (name, offset, size) directory record.
type Entry struct {
	Name   string
	Offset uint64
	Size   uint64
}

// Table is a thin, non-owning view over a Segment's directory region.
// It never copies the backing bytes; every method reads/writes buf
// directly.
type Table struct {
	buf         []byte // full segment bytes, table view starts at offset 0
	maxEntries  uint32
}

// Size returns the total byte size of a table header sized for
// maxEntries, i.e. spec's Table.calculate_size, used by callers (e.g.
// segment.Create via memory.Create) to size the backing segment.
func Size(maxEntries uint32) uint64 {
	return uint64(headerSize) + uint64(maxEntries)*uint64(entrySize)
}

// Init initializes a brand-new table at the start of buf: zeroes the
// entry area and writes the header with entry_count=0 and next_offset
// set to the end of the table region. memorySize is the total segment
// size, captured for later validation on Open.
func Init(buf []byte, maxEntries uint32, memorySize uint64) (*Table, error) {
	need := Size(maxEntries)
	if uint64(len(buf)) < need {
		return nil, zerr.New(zerr.CodeTooLarge, "segment too small for table").
			WithContext("need", need).WithContext("have", len(buf))
	}

	entryAreaStart := headerSize
	entryAreaSize := int(maxEntries) * entrySize
	for i := 0; i < entryAreaSize; i++ {
		buf[entryAreaStart+i] = 0
	}

	binary.LittleEndian.PutUint32(buf[offMagic:], Magic)
	binary.LittleEndian.PutUint32(buf[offVersion:], Version)
	binary.LittleEndian.PutUint32(buf[offEntryCount:], 0)
	binary.LittleEndian.PutUint32(buf[offReserved:], 0)
	binary.LittleEndian.PutUint64(buf[offMemorySize:], memorySize)
	binary.LittleEndian.PutUint64(buf[offNextOffset:], need)

	t := &Table{buf: buf, maxEntries: maxEntries}
	zlog.L().Debug("table initialized",
		zap.Uint32("max_entries", maxEntries),
		zap.Uint64("next_offset", need))
	return t, nil
}

// Open validates and attaches to an existing table at the start of buf.
func Open(buf []byte, maxEntries uint32) (*Table, error) {
	if uint64(len(buf)) < headerSize {
		return nil, zerr.New(zerr.CodeBadMagic, "segment too small to contain a table header")
	}
	magic := binary.LittleEndian.Uint32(buf[offMagic:])
	if magic != Magic {
		return nil, zerr.New(zerr.CodeBadMagic, "table magic mismatch").
			WithContext("want", Magic).WithContext("got", magic)
	}
	version := binary.LittleEndian.Uint32(buf[offVersion:])
	if version != Version {
		return nil, zerr.New(zerr.CodeBadVersion, "table version mismatch").
			WithContext("want", Version).WithContext("got", version)
	}
	count := binary.LittleEndian.Uint32(buf[offEntryCount:])
	if count > maxEntries {
		return nil, zerr.New(zerr.CodeBadMagic, "table entry_count exceeds max_entries").
			WithContext("entry_count", count).WithContext("max_entries", maxEntries)
	}
	return &Table{buf: buf, maxEntries: maxEntries}, nil
}

// MaxEntries returns the fixed capacity this table was created/opened with.
func (t *Table) MaxEntries() uint32 { return t.maxEntries }

// EntryCount returns the number of live entries.
func (t *Table) EntryCount() uint32 {
	return binary.LittleEndian.Uint32(t.buf[offEntryCount:])
}

func (t *Table) setEntryCount(n uint32) {
	binary.LittleEndian.PutUint32(t.buf[offEntryCount:], n)
}

// MemorySize returns the total segment size captured at table creation.
func (t *Table) MemorySize() uint64 {
	return binary.LittleEndian.Uint64(t.buf[offMemorySize:])
}

// NextOffset returns the bump-allocator cursor.
func (t *Table) NextOffset() uint64 {
	return binary.LittleEndian.Uint64(t.buf[offNextOffset:])
}

func (t *Table) setNextOffset(v uint64) {
	binary.LittleEndian.PutUint64(t.buf[offNextOffset:], v)
}

func entryAt(buf []byte, i uint32) []byte {
	start := headerSize + int(i)*entrySize
	return buf[start : start+entrySize]
}

func decodeEntry(e []byte) Entry {
	nameBytes := e[entryOffName : entryOffName+entryNameLen]
	n := 0
	for n < entryNameLen && nameBytes[n] != 0 {
		n++
	}
	return Entry{
		Name:   string(nameBytes[:n]),
		Offset: binary.LittleEndian.Uint64(e[entryOffOffset:]),
		Size:   binary.LittleEndian.Uint64(e[entryOffSize:]),
	}
}

// Find looks up name among the live entries, in append order — this is
// a linear scan, consistent with the table being a small, rarely
// queried directory rather than a hot-path structure.
func (t *Table) Find(name string) (Entry, bool) {
	count := t.EntryCount()
	for i := uint32(0); i < count; i++ {
		e := decodeEntry(entryAt(t.buf, i))
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

func validateEntryName(name string) error {
	if len(name) == 0 || len(name) > MaxNameBytes {
		return zerr.New(zerr.CodeNameTooLong, "structure name must be 1-31 bytes").
			WithContext("name", name)
	}
	return nil
}

// Add appends a new (name, offset, size) entry. Callers must have
// already reserved [offset, offset+size) via Allocate; Add itself does
// not move next_offset. Returns zerr.CodeNameExists if the name is
// taken and zerr.CodeTableFull if entry_count has reached max_entries.
//
// Add is single-writer by contract (spec §4.1): the creator performs
// every allocation before the segment is shared with peers.
func (t *Table) Add(name string, offset, size uint64) error {
	if err := validateEntryName(name); err != nil {
		return err
	}
	if _, exists := t.Find(name); exists {
		return zerr.New(zerr.CodeNameExists, "structure name already registered").
			WithContext("name", name)
	}
	count := t.EntryCount()
	if count >= t.maxEntries {
		return zerr.New(zerr.CodeTableFull, "table has reached max_entries").
			WithContext("max_entries", t.maxEntries)
	}

	e := entryAt(t.buf, count)
	var nameField [entryNameLen]byte
	copy(nameField[:], name)
	copy(e[entryOffName:entryOffName+entryNameLen], nameField[:])
	binary.LittleEndian.PutUint64(e[entryOffOffset:], offset)
	binary.LittleEndian.PutUint64(e[entryOffSize:], size)

	t.setEntryCount(count + 1)
	zlog.L().Debug("table entry added",
		zap.String("name", name), zap.Uint64("offset", offset), zap.Uint64("size", size))
	return nil
}

// Allocate reserves size bytes aligned up to align (default semantics
// live in memory.Memory.Allocate, which calls this with align=8),
// advancing next_offset, and returns the aligned offset. It does not
// add a table entry; callers pair it with Add.
func (t *Table) Allocate(size, align uint64) (uint64, error) {
	if align == 0 {
		align = 8
	}
	cur := t.NextOffset()
	aligned := (cur + align - 1) &^ (align - 1)
	if aligned+size < aligned {
		return 0, zerr.New(zerr.CodeTooLarge, "allocation size overflow")
	}
	memSize := t.MemorySize()
	if aligned+size > memSize {
		return 0, zerr.New(zerr.CodeTooLarge, "allocation exceeds segment bounds").
			WithContext("aligned_offset", aligned).
			WithContext("size", size).
			WithContext("memory_size", memSize)
	}
	t.setNextOffset(aligned + size)
	return aligned, nil
}

// Entries returns a snapshot slice of every live entry, for
// diagnostics and the Table-integrity property test (spec §8.1).
func (t *Table) Entries() []Entry {
	count := t.EntryCount()
	out := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		out = append(out, decodeEntry(entryAt(t.buf, i)))
	}
	return out
}
