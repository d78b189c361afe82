// SPDX-License-Identifier: MIT
/*
Package shm models the memory region shared by the producer and consumer
execution contexts.

A Memory is the backing store: a heap buffer when both contexts live in one
process, or a MAP_SHARED mapping of a file (tmpfs, a UIO map, /dev/mem) when
they do not. Every backing access is an aligned 32-bit atomic load or store,
so each word is always observed whole.

Each context reaches the Memory through its own View, which simulates that
context's private write-back data cache. Data written through a View is not
visible to the other side until it is flushed, and data read through a View
stays stale until it is invalidated. The flag word is accessed with the
volatile methods, which bypass the cache.
*/
package shm

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// WordSize is the width of every access to the region.
const WordSize = 4

var (
	// ErrLayout is returned when the RX, TX and flag regions overlap, are
	// misaligned or do not fit the backing memory.
	ErrLayout = errors.New("shm: invalid layout")

	// ErrSize is returned for a region or cache line size that cannot be used.
	ErrSize = errors.New("shm: invalid size")
)

// Memory is the shared backing store. It is safe for concurrent use: every
// access is a single atomic word operation.
type Memory struct {
	buf   []byte
	path  string
	unmap func([]byte) error
}

// NewMemory allocates a zeroed in-process region of size bytes. size must be
// a positive multiple of WordSize.
func NewMemory(size int) (*Memory, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	// Backed by words so every offset that is a multiple of 4 is aligned.
	words := make([]uint32, size/WordSize)
	return &Memory{
		buf: unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size),
	}, nil
}

func checkSize(size int) error {
	if size <= 0 || size%WordSize != 0 {
		return fmt.Errorf("%w: region of %d bytes is not a positive multiple of %d", ErrSize, size, WordSize)
	}
	return nil
}

// Size returns the region size in bytes.
func (m *Memory) Size() int {
	return len(m.buf)
}

// Path returns the backing file of a mapped region, or "" for a heap region.
func (m *Memory) Path() string {
	return m.path
}

// Load32 reads one word of the backing store.
func (m *Memory) Load32(off uint32) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&m.buf[off])))
}

// Store32 writes one word of the backing store.
func (m *Memory) Store32(off, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&m.buf[off])), v)
}

// Close releases a mapped region. The Memory must not be used afterwards.
// Closing a heap region is a no-op.
func (m *Memory) Close() error {
	if m.unmap == nil {
		return nil
	}
	err := m.unmap(m.buf)
	m.unmap = nil
	m.buf = nil
	return err
}
