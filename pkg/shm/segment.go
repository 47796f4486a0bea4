package shm

import (
	"context"
	"errors"
	"sync/atomic"

	internalshm "github.com/srediag/plugin-bitmap/internal/shm"
)

var (
	ErrInvalidSize = errors.New("shm: invalid segment size")
	// ErrReleased is returned when a reference is dropped from a segment that
	// has none left.
	ErrReleased = errors.New("shm: segment already released")
	// ErrShareMemoryHadNotLeftSpace is returned when /dev/shm cannot hold a new segment.
	ErrShareMemoryHadNotLeftSpace = errors.New("shm: share memory had not left space")
)

// Segment is a reference-counted shared memory mapping. Other processes may
// map the same memory through Fd.
type Segment struct {
	id       string
	region   *internalshm.MappedRegion
	refs     atomic.Int32
	manager  *Manager
	imported bool
}

// ID identifies the segment within its Manager.
func (s *Segment) ID() string {
	return s.id
}

// Name is the memfd or file name the segment was created with. Imported
// segments have no name.
func (s *Segment) Name() string {
	return s.region.Name
}

// Size returns the mapped length in bytes.
func (s *Segment) Size() int {
	return len(s.region.Addr)
}

// Data returns the shared memory. It must not be used after the last Release.
func (s *Segment) Data() []byte {
	return s.region.Addr
}

// Fd returns the descriptor that backs the mapping. It stays owned by the
// segment; dup it before handing it to code that closes it.
func (s *Segment) Fd() int {
	return s.region.Fd
}

// Imported reports whether the segment was mapped from a foreign fd.
func (s *Segment) Imported() bool {
	return s.imported
}

// RefCount returns the current number of references.
func (s *Segment) RefCount() int32 {
	return s.refs.Load()
}

// Ref takes another reference and returns s.
func (s *Segment) Ref() *Segment {
	s.refs.Add(1)
	return s
}

// tryRef takes a reference unless the segment is already being released.
func (s *Segment) tryRef() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops one reference. The last one unmaps the memory and closes the fd.
func (s *Segment) Release() error {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if s.refs.CompareAndSwap(n, n-1) {
			if n > 1 {
				return nil
			}
			break
		}
	}
	size := s.Size()
	if s.manager != nil {
		s.manager.forget(s, size)
	}
	logger.Debugf("release segment %s (%d bytes)", s.id, size)
	return internalshm.UnmapRegion(context.Background(), s.region)
}
