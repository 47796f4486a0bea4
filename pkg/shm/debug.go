package shm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	internalshm "github.com/srediag/plugin-bitmap/internal/shm"
)

// DebugSegmentDetail prints the size of the segment behind path and the free
// space left on its filesystem. For memfd segments pass /proc/<pid>/fd/<fd>.
func DebugSegmentDetail(w io.Writer, path string) {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	free, err := internalshm.FreeBytes(filepath.Dir(path))
	if err != nil {
		fmt.Fprintf(w, "path:%s size:%d mode:%s free:unknown (%v)\n", path, info.Size(), info.Mode(), err)
		return
	}
	fmt.Fprintf(w, "path:%s size:%d mode:%s free:%d\n", path, info.Size(), info.Mode(), free)
}
