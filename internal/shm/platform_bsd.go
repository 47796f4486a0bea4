//go:build unix && !linux

package shm

// MemfdRegion is only available on Linux; callers fall back to DevShmRegion.
func MemfdRegion(name string, size int) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// NameRegion is a no-op outside Linux.
func NameRegion(data []byte, name string) error {
	return ErrUnsupported
}

// NewAdvisor returns an advisor that never discards.
func NewAdvisor() Advisor {
	return nopAdvisor{}
}
