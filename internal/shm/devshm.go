package shm

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// DevShmDir is where shareable regions are created when memfd is unavailable.
const DevShmDir = "/dev/shm"

// CanCreateOnDevShm reports whether a region of size bytes fits on the
// tmpfs behind path. Paths outside /dev/shm (and non-Linux hosts) are not
// checked.
func CanCreateOnDevShm(size uint64, path string) bool {
	if runtime.GOOS != "linux" || !strings.HasPrefix(path, DevShmDir) {
		return true
	}
	stat, err := disk.Usage(DevShmDir)
	if err != nil {
		return false
	}
	return stat.Free >= size
}

// FreeBytes returns the free space of the filesystem holding dir.
func FreeBytes(dir string) (uint64, error) {
	stat, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return stat.Free, nil
}
