//go:build unix

package shm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MapAnonymous returns a zeroed, private, read/write anonymous mapping.
func MapAnonymous(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, &MapError{Op: "mmap anonymous", Err: err}
	}
	return data, nil
}

// Unmap releases a mapping returned by MapAnonymous.
func Unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return &MapError{Op: "munmap", Err: err}
	}
	return nil
}

// MapFile maps the file at path read-only.
func MapFile(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // the mapping keeps the pages alive

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, ErrEmptyFile
	}
	if size > int64(^uint(0)>>1) {
		return nil, fmt.Errorf("shm: file too large to map (%d bytes)", size)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, &MapError{Op: "mmap file", Err: err}
	}
	return &MappedFile{data: data, path: path}, nil
}

// Close unmaps the file. Closing twice is a no-op.
func (m *MappedFile) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	if err != nil {
		return &MapError{Op: "munmap file", Err: err}
	}
	return nil
}

// DevShmRegion creates a new file at path (which must not exist), sizes it,
// maps it shared and unlinks it so the returned fd is the only handle left.
func DevShmRegion(ctx context.Context, path string, size int) (*MappedRegion, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = unix.Unlink(path) }()
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	addr, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, &MapError{Op: "mmap shared", Err: err}
	}
	return &MappedRegion{Addr: addr, Fd: fd, Path: path}, nil
}

// MapFd maps an existing shareable fd, typically one received from another
// process. The region takes ownership of fd.
func MapFd(fd int) (*MappedRegion, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("fstat: %w", err)
	}
	if st.Size <= 0 {
		return nil, ErrInvalidSize
	}
	addr, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, &MapError{Op: "mmap fd", Err: err}
	}
	return &MappedRegion{Addr: addr, Fd: fd}, nil
}

// UnmapRegion unmaps the region and closes its fd.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	var errs []error
	if err := unix.Munmap(region.Addr); err != nil {
		errs = append(errs, &MapError{Op: "munmap shared", Err: err})
	}
	region.Addr = nil
	if region.Fd >= 0 {
		if err := unix.Close(region.Fd); err != nil {
			errs = append(errs, fmt.Errorf("close fd %d: %w", region.Fd, err))
		}
		region.Fd = -1
	}
	return errors.Join(errs...)
}
