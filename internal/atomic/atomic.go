// Package atomic provides typed atomic load/store/CAS/fetch-add
// primitives over a byte offset inside an arbitrary []byte — the memory
// ordering contract spec §5 demands, applied to bytes that may be
// mapped from a POSIX shared memory segment rather than ordinary Go
// heap memory. Every operation lowers directly to sync/atomic over an
// unsafe.Pointer computed from the buffer's base address plus offset;
// callers are responsible for offset alignment (spec mandates 8-byte
// alignment for every header and slot stride).
// Author: momentics <momentics@gmail.com>
package atomic

import (
	"sync/atomic"
	"unsafe"
)

func ptrAt(buf []byte, offset uint64) unsafe.Pointer {
	return unsafe.Pointer(&buf[offset])
}

// LoadUint32 atomically loads a little-endian uint32 at offset (acquire).
func LoadUint32(buf []byte, offset uint64) uint32 {
	return (*atomic.Uint32)(ptrAt(buf, offset)).Load()
}

// StoreUint32 atomically stores v at offset (release).
func StoreUint32(buf []byte, offset uint64, v uint32) {
	(*atomic.Uint32)(ptrAt(buf, offset)).Store(v)
}

// CASUint32 atomically compares-and-swaps the uint32 at offset.
func CASUint32(buf []byte, offset uint64, old, new uint32) bool {
	return (*atomic.Uint32)(ptrAt(buf, offset)).CompareAndSwap(old, new)
}

// FetchAddUint32 atomically adds delta and returns the new value.
func FetchAddUint32(buf []byte, offset uint64, delta uint32) uint32 {
	return (*atomic.Uint32)(ptrAt(buf, offset)).Add(delta)
}

// LoadInt32 atomically loads a little-endian int32 at offset (acquire).
func LoadInt32(buf []byte, offset uint64) int32 {
	return (*atomic.Int32)(ptrAt(buf, offset)).Load()
}

// StoreInt32 atomically stores v at offset (release).
func StoreInt32(buf []byte, offset uint64, v int32) {
	(*atomic.Int32)(ptrAt(buf, offset)).Store(v)
}

// CASInt32 atomically compares-and-swaps the int32 at offset.
func CASInt32(buf []byte, offset uint64, old, new int32) bool {
	return (*atomic.Int32)(ptrAt(buf, offset)).CompareAndSwap(old, new)
}

// FetchAddInt32 atomically adds delta and returns the new value.
func FetchAddInt32(buf []byte, offset uint64, delta int32) int32 {
	return (*atomic.Int32)(ptrAt(buf, offset)).Add(delta)
}

// LoadUint64 atomically loads a little-endian uint64 at offset (acquire).
func LoadUint64(buf []byte, offset uint64) uint64 {
	return (*atomic.Uint64)(ptrAt(buf, offset)).Load()
}

// StoreUint64 atomically stores v at offset (release).
func StoreUint64(buf []byte, offset uint64, v uint64) {
	(*atomic.Uint64)(ptrAt(buf, offset)).Store(v)
}

// CASUint64 atomically compares-and-swaps the uint64 at offset.
func CASUint64(buf []byte, offset uint64, old, new uint64) bool {
	return (*atomic.Uint64)(ptrAt(buf, offset)).CompareAndSwap(old, new)
}

// FetchAddUint64 atomically adds delta and returns the new value.
func FetchAddUint64(buf []byte, offset uint64, delta uint64) uint64 {
	return (*atomic.Uint64)(ptrAt(buf, offset)).Add(delta)
}

// LoadInt64 atomically loads a little-endian int64 at offset (acquire).
func LoadInt64(buf []byte, offset uint64) int64 {
	return (*atomic.Int64)(ptrAt(buf, offset)).Load()
}

// StoreInt64 atomically stores v at offset (release).
func StoreInt64(buf []byte, offset uint64, v int64) {
	(*atomic.Int64)(ptrAt(buf, offset)).Store(v)
}

// CASInt64 atomically compares-and-swaps the int64 at offset.
func CASInt64(buf []byte, offset uint64, old, new int64) bool {
	return (*atomic.Int64)(ptrAt(buf, offset)).CompareAndSwap(old, new)
}
