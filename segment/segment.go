// Package segment implements the Segment component of spec §4.1: a
// named, fixed-size POSIX shared memory region with a raw byte view and
// base pointer. Creation, sizing, and unlinking are delegated to the
// platform-specific files in this package (segment_unix.go,
// segment_windows.go), mirroring the teacher's own per-platform split
// (pool/bufferpool_linux.go / _windows.go).
// Author: momentics <momentics@gmail.com>
package segment

import (
	"github.com/dustin/go-humanize"

	"github.com/queelius/zeroipc/internal/zlog"
	"github.com/queelius/zeroipc/zerr"
	"go.uber.org/zap"
)

// Segment is a contiguous mapped byte region identified by a
// leading-slash name. Size is immutable after creation. The creator is
// the owner and is responsible for Unlink at teardown; every other
// attacher is a borrower that only calls Close.
type Segment struct {
	name  string
	size  uint64
	owner bool
	buf   []byte
	impl  platformHandle
}

// platformHandle abstracts the OS-specific open file descriptor /
// mapping handle so Close/Unlink can release it.
type platformHandle interface {
	close() error
}

// Create makes a new named segment of the given size, failing with
// zerr.CodeNameExists if the name is already taken. Create itself only
// rejects a zero size; memory.Create sizes the segment as table.Size
// plus the caller's extra bytes, and table.Init rejects a buffer too
// small for the table.
func Create(name string, size uint64) (*Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, zerr.New(zerr.CodeTooLarge, "segment size must be non-zero").
			WithContext("name", name)
	}
	buf, impl, err := createPlatform(name, size)
	if err != nil {
		return nil, err
	}
	zlog.L().Info("segment created",
		zap.String("name", name),
		zap.String("size", humanize.Bytes(size)))
	return &Segment{name: name, size: size, owner: true, buf: buf, impl: impl}, nil
}

// Open attaches to an existing named segment as a peer (borrower).
func Open(name string) (*Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	buf, impl, size, err := openPlatform(name)
	if err != nil {
		return nil, err
	}
	zlog.L().Info("segment opened",
		zap.String("name", name),
		zap.String("size", humanize.Bytes(size)))
	return &Segment{name: name, size: size, owner: false, buf: buf, impl: impl}, nil
}

// Unlink removes the named segment from the OS shared-memory namespace.
// Only the owner should call this; peers must call Close instead.
func Unlink(name string) error {
	if err := unlinkPlatform(name); err != nil {
		return err
	}
	zlog.L().Info("segment unlinked", zap.String("name", name))
	return nil
}

// Close releases this process's mapping without removing the segment
// from the OS namespace. Owners that also want to remove the segment
// should call Unlink(name) separately (typically after Close).
func (s *Segment) Close() error {
	if s.impl == nil {
		return nil
	}
	err := s.impl.close()
	s.impl = nil
	return err
}

// Name returns the segment's leading-slash name.
func (s *Segment) Name() string { return s.name }

// Size returns the immutable total segment size in bytes.
func (s *Segment) Size() uint64 { return s.size }

// Owner reports whether this process created (vs. attached to) the segment.
func (s *Segment) Owner() bool { return s.owner }

// Bytes returns the raw mapped byte slice backing the entire segment.
// Every structure view is a sub-slice or offset computation over this.
func (s *Segment) Bytes() []byte { return s.buf }

// At returns the byte view starting at offset, bounds-checked against
// the segment size.
func (s *Segment) At(offset uint64) ([]byte, error) {
	if offset > s.size {
		return nil, zerr.New(zerr.CodeTooLarge, "offset out of bounds").
			WithContext("offset", offset).WithContext("size", s.size)
	}
	return s.buf[offset:], nil
}

// maxSegmentNameBytes is the POSIX shared-memory name bound (spec §6):
// a leading '/' followed by up to NAME_MAX characters, the platform's
// filename limit for the backing /dev/shm entry. This is a much larger
// and entirely separate bound from the Table entry name[32] wire field
// (31 usable bytes), which table.validateEntryName enforces on its own.
const maxSegmentNameBytes = 255

func validateName(name string) error {
	if len(name) == 0 || name[0] != '/' {
		return zerr.New(zerr.CodeNameTooLong, "segment name must start with '/'").
			WithContext("name", name)
	}
	if len(name)-1 > maxSegmentNameBytes {
		return zerr.New(zerr.CodeNameTooLong, "segment name exceeds the platform NAME_MAX").
			WithContext("name", name)
	}
	return nil
}
