// Package health provides liveness and readiness checks for processes that
// map bitmaps and shared segments.
package health

import (
	"fmt"

	"github.com/heptiolabs/healthcheck"

	internalshm "github.com/srediag/plugin-bitmap/internal/shm"
)

// MappedBytesReporter reports how much memory is currently mapped.
// *bitmap.Allocator implements it.
type MappedBytesReporter interface {
	MappedBytes() int64
}

// Options sets the thresholds of the checks. A zero threshold disables the
// matching check.
type Options struct {
	// ShmDir is the tmpfs whose free space is checked.
	ShmDir string
	// MinShmFree is the free space ShmDir must keep for the process to be live.
	MinShmFree uint64
	// MaxMappedBytes is the mapped memory above which the process is not ready.
	MaxMappedBytes int64
	// MaxGoroutines fails liveness when exceeded.
	MaxGoroutines int
}

// DefaultOptions returns options that check /dev/shm for 1 MiB of free
// space and leave the other checks disabled.
func DefaultOptions() Options {
	return Options{
		ShmDir:     internalshm.DevShmDir,
		MinShmFree: 1 << 20,
	}
}

// ShmFreeCheck fails when the filesystem holding dir has less than minFree bytes.
func ShmFreeCheck(dir string, minFree uint64) healthcheck.Check {
	return func() error {
		free, err := internalshm.FreeBytes(dir)
		if err != nil {
			return fmt.Errorf("stat %s: %w", dir, err)
		}
		if free < minFree {
			return fmt.Errorf("%s has %d bytes free, want at least %d", dir, free, minFree)
		}
		return nil
	}
}

// MappedBytesCheck fails when r maps more than limit bytes.
func MappedBytesCheck(r MappedBytesReporter, limit int64) healthcheck.Check {
	return func() error {
		if n := r.MappedBytes(); n > limit {
			return fmt.Errorf("%d bytes mapped, limit is %d", n, limit)
		}
		return nil
	}
}

// NewHandler returns a handler serving /live and /ready with the checks
// opts enables.
func NewHandler(r MappedBytesReporter, opts Options) healthcheck.Handler {
	h := healthcheck.NewHandler()
	if opts.ShmDir != "" && opts.MinShmFree > 0 {
		h.AddLivenessCheck("shm-free", ShmFreeCheck(opts.ShmDir, opts.MinShmFree))
	}
	if opts.MaxGoroutines > 0 {
		h.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(opts.MaxGoroutines))
	}
	if r != nil && opts.MaxMappedBytes > 0 {
		h.AddReadinessCheck("mapped-bytes", MappedBytesCheck(r, opts.MaxMappedBytes))
	}
	return h
}
