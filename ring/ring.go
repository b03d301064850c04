// Package ring implements the Ring component of spec §4.6: an SPSC
// byte-stream ring buffer with monotone 64-bit write/read positions,
// wait-free for a single producer and single consumer. Grounded on the
// teacher's core/concurrency/ring.go wraparound-copy shape, adapted
// from its fixed-slot sequence-number cells to the spec's raw
// byte-position fetch-add protocol.
// Author: momentics <momentics@gmail.com>
package ring

import (
	"github.com/queelius/zeroipc/internal/atomic"
	"github.com/queelius/zeroipc/memory"
	"github.com/queelius/zeroipc/zerr"
)

const (
	headerSize = 24 // write_pos u64, read_pos u64, byte_capacity u32, elem_size u32

	offWritePos  = 0
	offReadPos   = 8
	offByteCap   = 16
	offElemSize  = 20
)

// Ring is a non-owning view over an SPSC byte-stream ring buffer in
// shared memory.
type Ring struct {
	buf        []byte
	byteCap    uint32
	elemSize   uint32
}

// New allocates and initializes a new Ring with the given byte
// capacity and per-element byte width (used only to round read/write
// sizes to element multiples; the wire data itself is untyped bytes).
func New(mem *memory.Memory, name string, byteCapacity, elemSize uint32) (*Ring, error) {
	if byteCapacity == 0 {
		return nil, zerr.New(zerr.CodeCapacityRequired, "ring byte_capacity must be > 0")
	}
	if elemSize == 0 {
		return nil, zerr.New(zerr.CodeDtypeRequired, "ring elem_size must be > 0")
	}
	total := uint64(headerSize) + uint64(byteCapacity)
	offset, err := mem.Allocate(name, total)
	if err != nil {
		return nil, err
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	atomic.StoreUint64(buf, offWritePos, 0)
	atomic.StoreUint64(buf, offReadPos, 0)
	atomic.StoreUint32(buf, offByteCap, byteCapacity)
	atomic.StoreUint32(buf, offElemSize, elemSize)
	return &Ring{buf: buf, byteCap: byteCapacity, elemSize: elemSize}, nil
}

// Open attaches to an existing Ring by name.
func Open(mem *memory.Memory, name string) (*Ring, error) {
	offset, _, ok := mem.Find(name)
	if !ok {
		return nil, memory.ErrNotFound.WithContext("name", name)
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	byteCap := atomic.LoadUint32(buf, offByteCap)
	elemSize := atomic.LoadUint32(buf, offElemSize)
	return &Ring{buf: buf, byteCap: byteCap, elemSize: elemSize}, nil
}

// ByteCapacity returns the fixed slab size in bytes.
func (r *Ring) ByteCapacity() uint32 { return r.byteCap }

// ElemSize returns the configured element byte width.
func (r *Ring) ElemSize() uint32 { return r.elemSize }

func (r *Ring) slab() []byte {
	return r.buf[headerSize : uint64(headerSize)+uint64(r.byteCap)]
}

func (r *Ring) copyIn(pos uint64, data []byte) {
	slab := r.slab()
	cap64 := uint64(r.byteCap)
	start := pos % cap64
	n := uint64(len(data))
	if start+n <= cap64 {
		copy(slab[start:start+n], data)
		return
	}
	first := cap64 - start
	copy(slab[start:], data[:first])
	copy(slab[:n-first], data[first:])
}

func (r *Ring) copyOut(pos uint64, n uint64) []byte {
	slab := r.slab()
	cap64 := uint64(r.byteCap)
	start := pos % cap64
	out := make([]byte, n)
	if start+n <= cap64 {
		copy(out, slab[start:start+n])
		return out
	}
	first := cap64 - start
	copy(out[:first], slab[start:])
	copy(out[first:], slab[:n-first])
	return out
}

// AvailableWrite returns a snapshot of free bytes.
func (r *Ring) AvailableWrite() uint64 {
	w := atomic.LoadUint64(r.buf, offWritePos)
	rp := atomic.LoadUint64(r.buf, offReadPos)
	return uint64(r.byteCap) - (w - rp)
}

// AvailableRead returns a snapshot of unread bytes.
func (r *Ring) AvailableRead() uint64 {
	w := atomic.LoadUint64(r.buf, offWritePos)
	rp := atomic.LoadUint64(r.buf, offReadPos)
	return w - rp
}

// Write reserves room for len(data) bytes via a fetch-add on write_pos
// and copies data into the slab, splitting at wraparound. Returns false
// if there is insufficient room. Single-producer: concurrent Write
// callers are not supported (spec §4.6 SPSC default).
func (r *Ring) Write(data []byte) bool {
	n := uint64(len(data))
	if n == 0 {
		return true
	}
	w := atomic.LoadUint64(r.buf, offWritePos)
	rp := atomic.LoadUint64(r.buf, offReadPos)
	if n > uint64(r.byteCap)-(w-rp) {
		return false
	}
	atomic.FetchAddUint64(r.buf, offWritePos, n)
	r.copyIn(w, data)
	return true
}

// Read drains up to max bytes, rounded down to an ElemSize multiple,
// returning the bytes actually read. Single-consumer: concurrent Read
// callers are not supported (spec §4.6 SPSC default).
func (r *Ring) Read(max uint64) []byte {
	w := atomic.LoadUint64(r.buf, offWritePos)
	rp := atomic.LoadUint64(r.buf, offReadPos)
	avail := w - rp
	if max < avail {
		avail = max
	}
	if r.elemSize > 1 {
		avail -= avail % uint64(r.elemSize)
	}
	if avail == 0 {
		return nil
	}
	out := r.copyOut(rp, avail)
	atomic.FetchAddUint64(r.buf, offReadPos, avail)
	return out
}

// Peek reads up to max bytes without advancing read_pos. Non-destructive
// and best-effort under concurrent writers, per SPEC_FULL.md.
func (r *Ring) Peek(max uint64) []byte {
	w := atomic.LoadUint64(r.buf, offWritePos)
	rp := atomic.LoadUint64(r.buf, offReadPos)
	avail := w - rp
	if max < avail {
		avail = max
	}
	if r.elemSize > 1 {
		avail -= avail % uint64(r.elemSize)
	}
	if avail == 0 {
		return nil
	}
	return r.copyOut(rp, avail)
}
