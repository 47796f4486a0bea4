//go:build unix

package shm

import "golang.org/x/sys/unix"

func dupFd(fd int) (int, error) {
	return unix.Dup(fd)
}
