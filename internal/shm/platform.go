// Package shm contains platform-specific helpers for the memory that backs bitmaps:
// anonymous mappings, read-only file mappings and shareable (memfd or /dev/shm) regions.
package shm

import (
	"errors"
	"os"
)

// MappedRegion represents a memory-mapped shareable region.
type MappedRegion struct {
	Addr []byte
	// Fd stays open for the lifetime of the region so it can be handed to
	// another process.
	Fd   int
	Name string
	// Path is set for /dev/shm regions and empty for memfd regions.
	Path string
}

// MappedFile is a read-only mapping of a file's full contents.
type MappedFile struct {
	data []byte
	path string
}

// Data returns the mapped bytes. Writing to them faults.
func (m *MappedFile) Data() []byte {
	return m.data
}

// Path returns the mapped file's path.
func (m *MappedFile) Path() string {
	return m.path
}

// Size returns the mapped length.
func (m *MappedFile) Size() int {
	return len(m.data)
}

// MapError represents a failed mapping system call.
type MapError struct {
	Op  string
	Err error
}

func (e *MapError) Error() string {
	if e.Err != nil {
		return "shm: " + e.Op + ": " + e.Err.Error()
	}
	return "shm: " + e.Op
}

func (e *MapError) Unwrap() error {
	return e.Err
}

var (
	ErrInvalidSize = errors.New("shm: invalid mapping size")
	ErrEmptyFile   = errors.New("shm: empty file")
	ErrUnsupported = errors.New("shm: not supported on this platform")
)

// Advisor carries the volatility state of one purgeable mapping.
type Advisor interface {
	// SetVolatile tells the OS the content of data may be discarded.
	SetVolatile(data []byte) error
	// SetNonVolatile revokes SetVolatile and reports whether the content
	// survived.
	SetNonVolatile(data []byte) (intact bool, err error)
}

// PageSize is the system page size.
var PageSize = os.Getpagesize()

func pageCount(n int) int {
	return (n + PageSize - 1) / PageSize
}

// nopAdvisor never discards, so content always survives.
type nopAdvisor struct{}

func (nopAdvisor) SetVolatile([]byte) error { return nil }

func (nopAdvisor) SetNonVolatile([]byte) (bool, error) { return true, nil }
