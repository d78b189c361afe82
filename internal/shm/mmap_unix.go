// SPDX-License-Identifier: MIT
//go:build unix

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenShared maps size bytes of the file at path as a MAP_SHARED region,
// creating the file and growing it to size if needed. Producer and consumer
// processes that open the same path share the region.
func OpenShared(path string, size int) (*Memory, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o660)
	if err != nil {
		return nil, fmt.Errorf("failed to open shared region: %w", err)
	}
	// The mapping outlives the descriptor.
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if fi.Mode().IsRegular() && fi.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("%s: failed to size region: %w", path, err)
		}
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Memory{buf: buf, path: path, unmap: unix.Munmap}, nil
}
