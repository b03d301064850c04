//go:build linux || darwin
// +build linux darwin

// File: segment/segment_unix.go
// Author: momentics <momentics@gmail.com>
//
// POSIX shared memory backing for Segment, via golang.org/x/sys/unix —
// the same raw-syscall style the teacher uses for its non-blocking TCP
// sockets in internal/transport/transport_linux.go. The shared-memory
// namespace is the kernel's /dev/shm tmpfs, matching shm_open(3)'s
// standard convention and the original C++ implementation's own path
// construction (original_source/python/zeroipc/memory.py: "/dev/shm"+name).

package segment

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/queelius/zeroipc/zerr"
)

const shmRoot = "/dev/shm"

type unixHandle struct {
	fd  int
	buf []byte
}

func (h *unixHandle) close() error {
	var err error
	if h.buf != nil {
		err = unix.Munmap(h.buf)
		h.buf = nil
	}
	if h.fd >= 0 {
		if cerr := unix.Close(h.fd); cerr != nil && err == nil {
			err = cerr
		}
		h.fd = -1
	}
	return err
}

func shmPath(name string) string {
	return shmRoot + name
}

func createPlatform(name string, size uint64) ([]byte, platformHandle, error) {
	path := shmPath(name)

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0o666)
	if err != nil {
		if err == unix.EEXIST {
			return nil, nil, zerr.Wrap(err, zerr.CodeNameExists, "segment already exists").
				WithContext("name", name)
		}
		return nil, nil, zerr.Wrap(err, zerr.CodeTooLarge, "open shared memory failed").
			WithContext("name", name)
	}

	cleanup := func() {
		_ = unix.Close(fd)
		_ = os.Remove(path)
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		cleanup()
		return nil, nil, zerr.Wrap(err, zerr.CodeTooLarge, "ftruncate failed").
			WithContext("name", name).WithContext("size", size)
	}

	buf, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, nil, zerr.Wrap(err, zerr.CodeTooLarge, "mmap failed").
			WithContext("name", name)
	}
	for i := range buf {
		buf[i] = 0
	}

	return buf, &unixHandle{fd: fd, buf: buf}, nil
}

func openPlatform(name string) ([]byte, platformHandle, uint64, error) {
	path := shmPath(name)

	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, nil, 0, zerr.Wrap(err, zerr.CodeNameNotFound, "segment not found").
				WithContext("name", name)
		}
		return nil, nil, 0, zerr.Wrap(err, zerr.CodeNameNotFound, "open shared memory failed").
			WithContext("name", name)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, nil, 0, zerr.Wrap(err, zerr.CodeNameNotFound, "fstat failed").
			WithContext("name", name)
	}
	size := uint64(st.Size)

	buf, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, nil, 0, zerr.Wrap(err, zerr.CodeTooLarge, "mmap failed").
			WithContext("name", name)
	}

	return buf, &unixHandle{fd: fd, buf: buf}, size, nil
}

func unlinkPlatform(name string) error {
	path := shmPath(name)
	if err := unix.Unlink(path); err != nil {
		if err == unix.ENOENT {
			return nil
		}
		return zerr.Wrap(err, zerr.CodeNameNotFound, "unlink failed").
			WithContext("name", name)
	}
	return nil
}
