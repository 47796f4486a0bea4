package bitmap

import (
	"fmt"

	internalshm "github.com/srediag/plugin-bitmap/internal/shm"
	"github.com/srediag/plugin-bitmap/pkg/shm"
)

// BackingKind identifies where a bitmap's pixels live.
type BackingKind uint8

const (
	// BackingAnonymous is a private anonymous mapping owned by the bitmap.
	BackingAnonymous BackingKind = iota
	// BackingForeign is caller-owned memory the bitmap only borrows.
	BackingForeign
	// BackingFile is a read-only mapping of a file.
	BackingFile
	// BackingShared is a reference to a shared memory segment.
	BackingShared
)

func (k BackingKind) String() string {
	switch k {
	case BackingAnonymous:
		return "anonymous"
	case BackingForeign:
		return "foreign"
	case BackingFile:
		return "file"
	case BackingShared:
		return "shared"
	default:
		return fmt.Sprintf("BackingKind(%d)", uint8(k))
	}
}

// backing owns (or borrows) the memory a bitmap points into. release is
// called exactly once, when the bitmap's last reference is closed.
type backing interface {
	kind() BackingKind
	release() error
	// owned is the number of bytes of memory the backing keeps mapped.
	owned() int64
}

type anonymousBacking struct {
	data []byte
}

func (b *anonymousBacking) kind() BackingKind { return BackingAnonymous }

func (b *anonymousBacking) owned() int64 { return int64(len(b.data)) }

func (b *anonymousBacking) release() error {
	err := internalshm.Unmap(b.data)
	b.data = nil
	return err
}

type foreignBacking struct{}

func (foreignBacking) kind() BackingKind { return BackingForeign }

func (foreignBacking) owned() int64 { return 0 }

func (foreignBacking) release() error { return nil }

type fileBacking struct {
	file *internalshm.MappedFile
}

func (b *fileBacking) kind() BackingKind { return BackingFile }

func (b *fileBacking) owned() int64 { return int64(b.file.Size()) }

func (b *fileBacking) release() error {
	return b.file.Close()
}

type sharedBacking struct {
	segment *shm.Segment
}

func (b *sharedBacking) kind() BackingKind { return BackingShared }

// owned is zero because the segment's bytes are accounted by its manager.
func (b *sharedBacking) owned() int64 { return 0 }

func (b *sharedBacking) release() error {
	return b.segment.Release()
}
