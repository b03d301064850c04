//go:build windows
// +build windows

// File: segment/segment_windows.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation: the wire format and algorithms are portable, but
// this module's POSIX shared-memory backing (spec §1, §6) is not wired
// to Windows' CreateFileMapping/MapViewOfFile here. Mirrors the
// teacher's own cross-platform stub shape (affinity/affinity_stub.go).

package segment

import "github.com/queelius/zeroipc/zerr"

func createPlatform(name string, size uint64) ([]byte, platformHandle, error) {
	return nil, nil, zerr.New(zerr.CodeTooLarge, "POSIX shared memory segment not supported on windows")
}

func openPlatform(name string) ([]byte, platformHandle, uint64, error) {
	return nil, nil, 0, zerr.New(zerr.CodeNameNotFound, "POSIX shared memory segment not supported on windows")
}

func unlinkPlatform(name string) error {
	return zerr.New(zerr.CodeNameNotFound, "POSIX shared memory segment not supported on windows")
}
