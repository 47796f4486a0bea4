//go:build !unix

package shm

import "context"

func MapAnonymous(size int) ([]byte, error) {
	return nil, ErrUnsupported
}

func Unmap(data []byte) error {
	return nil
}

func MapFile(path string) (*MappedFile, error) {
	return nil, ErrUnsupported
}

func (m *MappedFile) Close() error {
	m.data = nil
	return nil
}

func DevShmRegion(ctx context.Context, path string, size int) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

func MapFd(fd int) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return nil
}

func MemfdRegion(name string, size int) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

func NameRegion(data []byte, name string) error {
	return ErrUnsupported
}

func NewAdvisor() Advisor {
	return nopAdvisor{}
}
