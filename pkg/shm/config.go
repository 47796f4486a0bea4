package shm

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	internalshm "github.com/srediag/plugin-bitmap/internal/shm"
)

// MemMapType selects how segments are created.
type MemMapType uint8

const (
	// MemMapTypeDevShmFile creates an (immediately unlinked) file under Config.Dir.
	MemMapTypeDevShmFile MemMapType = iota
	// MemMapTypeMemFd uses memfd_create (Linux only).
	MemMapTypeMemFd
)

func (t MemMapType) String() string {
	switch t {
	case MemMapTypeDevShmFile:
		return "devshm"
	case MemMapTypeMemFd:
		return "memfd"
	default:
		return fmt.Sprintf("MemMapType(%d)", uint8(t))
	}
}

// ParseMemMapType parses "memfd" or "devshm".
func ParseMemMapType(s string) (MemMapType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memfd":
		return MemMapTypeMemFd, nil
	case "devshm", "file":
		return MemMapTypeDevShmFile, nil
	}
	return 0, fmt.Errorf("unknown memory map type %q", s)
}

// Config holds segment creation parameters.
type Config struct {
	MemMapType MemMapType
	// Dir is the directory for MemMapTypeDevShmFile segments.
	Dir string
	// Prefix is prepended to every segment name.
	Prefix string
	// MaxRetries bounds retries of a name collision under Dir.
	MaxRetries uint64
	// RetryInterval is the initial backoff between retries.
	RetryInterval time.Duration
}

const (
	defaultPrefix        = "bitmap-shm-"
	defaultMaxRetries    = 5
	defaultRetryInterval = 2 * time.Millisecond
)

// DefaultConfig returns the default configuration. `BITMAP_SHM_DIR` and
// `BITMAP_MEMMAP_TYPE` override Dir and MemMapType.
func DefaultConfig() *Config {
	c := &Config{
		MemMapType:    MemMapTypeDevShmFile,
		Dir:           internalshm.DevShmDir,
		Prefix:        defaultPrefix,
		MaxRetries:    defaultMaxRetries,
		RetryInterval: defaultRetryInterval,
	}
	if runtime.GOOS == "linux" {
		c.MemMapType = MemMapTypeMemFd
	} else if _, err := os.Stat(c.Dir); err != nil {
		c.Dir = os.TempDir()
	}
	if dir := os.Getenv("BITMAP_SHM_DIR"); dir != "" {
		c.Dir = dir
	}
	if v := os.Getenv("BITMAP_MEMMAP_TYPE"); v != "" {
		if t, err := ParseMemMapType(v); err == nil {
			c.MemMapType = t
		}
	}
	return c
}

// VerifyConfig checks c for values NewManager cannot work with.
func VerifyConfig(c *Config) error {
	if c == nil {
		return errors.New("shm: nil config")
	}
	switch c.MemMapType {
	case MemMapTypeMemFd:
		if runtime.GOOS != "linux" {
			return fmt.Errorf("shm: %s is only supported on linux", c.MemMapType)
		}
	case MemMapTypeDevShmFile:
		if c.Dir == "" {
			return errors.New("shm: Dir is required for devshm segments")
		}
		info, err := os.Stat(c.Dir)
		if err != nil {
			return fmt.Errorf("shm: segment dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("shm: segment dir %s is not a directory", c.Dir)
		}
	default:
		return fmt.Errorf("shm: invalid memory map type %d", c.MemMapType)
	}
	if strings.ContainsRune(c.Prefix, os.PathSeparator) {
		return fmt.Errorf("shm: prefix %q must not contain a path separator", c.Prefix)
	}
	return nil
}
