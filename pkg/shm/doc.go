// Package shm provides reference-counted shared memory segments that can be
// handed to other processes as file descriptors.
//
// A Segment starts with one reference. Every holder that keeps it beyond the
// creator's scope takes its own reference with Ref and gives it back with
// Release; the mapping and its fd are released when the count reaches zero.
//
// Example usage:
//
//	m, err := shm.NewManager(shm.DefaultConfig(), nil)
//	// ...
//	seg, err := m.Create(ctx, 4096)
//	// ...
//	defer seg.Release()
//	copy(seg.Data(), pixels)
//	sendFd(conn, seg.Fd())
//
// Platform-specific helpers are in internal/shm.
package shm
