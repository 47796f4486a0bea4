//go:build linux

package shm

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/Workiva/go-datastructures/bitarray"
	"golang.org/x/sys/unix"
)

// From <linux/prctl.h>; naming anonymous VMAs needs Linux 5.17+.
const (
	prSetVMA         = 0x53564d41
	prSetVMAAnonName = 0
	maxVMANameLen    = 80
)

// MemfdRegion creates an anonymous shareable region backed by memfd_create.
// The size is sealed so a peer cannot shrink it under our mapping.
func MemfdRegion(name string, size int) (*MappedRegion, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	// sealing is best effort, older kernels may refuse it
	_, _ = unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_GROW)

	addr, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, &MapError{Op: "mmap memfd", Err: err}
	}
	return &MappedRegion{Addr: addr, Fd: fd, Name: name}, nil
}

// NameRegion tags an anonymous mapping so it shows up as [anon:name] in
// /proc/self/maps.
func NameRegion(data []byte, name string) error {
	if len(data) == 0 {
		return ErrInvalidSize
	}
	p, err := unix.BytePtrFromString(sanitizeVMAName(name))
	if err != nil {
		return err
	}
	err = unix.Prctl(prSetVMA, prSetVMAAnonName,
		uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)), uintptr(unsafe.Pointer(p)))
	runtime.KeepAlive(p)
	if err != nil {
		return &MapError{Op: "prctl PR_SET_VMA", Err: err}
	}
	return nil
}

// sanitizeVMAName replaces the characters the kernel rejects in VMA names.
func sanitizeVMAName(name string) string {
	b := []byte(name)
	if len(b) > maxVMANameLen-1 {
		b = b[:maxVMANameLen-1]
	}
	for i, c := range b {
		switch {
		case c < 0x20 || c > 0x7e:
			b[i] = '_'
		case c == '\\' || c == '`' || c == '$' || c == '[' || c == ']':
			b[i] = '_'
		}
	}
	return string(b)
}

// NewAdvisor returns an advisor backed by MADV_FREE. Kernels without
// MADV_FREE get an advisor that never discards.
func NewAdvisor() Advisor {
	return &madviseAdvisor{}
}

// madviseAdvisor faults every page in before handing the mapping to
// MADV_FREE, so each page is either kept or dropped by the kernel while
// volatile. A page that is not resident when the mapping becomes
// non-volatile again was reclaimed.
type madviseAdvisor struct {
	pages       uint64
	volatile    bool
	unsupported bool
}

func (a *madviseAdvisor) SetVolatile(data []byte) error {
	if a.unsupported || len(data) == 0 {
		return nil
	}
	// swapped out pages would lose their swap entry without being checked
	TouchPages(data)
	if err := unix.Madvise(data, unix.MADV_FREE); err != nil {
		if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOSYS) {
			a.unsupported = true
			return nil
		}
		return &MapError{Op: "madvise MADV_FREE", Err: err}
	}
	a.pages = uint64(pageCount(len(data)))
	a.volatile = true
	return nil
}

func (a *madviseAdvisor) SetNonVolatile(data []byte) (bool, error) {
	if a.unsupported || !a.volatile {
		return true, nil
	}
	now, err := residency(data)
	if err != nil {
		return false, err
	}
	intact := allResident(now, a.pages)
	// cancel the lazy free on every page that survived
	TouchPages(data)
	a.volatile = false
	return intact, nil
}

// allResident reports whether the first pages bits of resident are set.
func allResident(resident bitarray.BitArray, pages uint64) bool {
	if resident == nil {
		return pages == 0
	}
	for i := uint64(0); i < pages; i++ {
		if ok, err := resident.GetBit(i); err != nil || !ok {
			return false
		}
	}
	return true
}

func residency(data []byte) (bitarray.BitArray, error) {
	pages := pageCount(len(data))
	vec := make([]byte, pages)
	if err := unix.Mincore(data, vec); err != nil {
		return nil, &MapError{Op: "mincore", Err: err}
	}
	ba := bitarray.NewBitArray(uint64(pages))
	for i, v := range vec {
		if v&1 != 0 {
			if err := ba.SetBit(uint64(i)); err != nil {
				return nil, err
			}
		}
	}
	return ba, nil
}
