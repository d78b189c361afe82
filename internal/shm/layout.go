// SPDX-License-Identifier: MIT
package shm

import (
	"fmt"

	"accelfft/pkg/bitint"
)

// Default offsets of the three regions, relative to the shared base.
const (
	DefaultRXOffset   = 0x0000
	DefaultTXOffset   = 0x1000
	DefaultFlagOffset = 0x2000
)

// Layout places the RX block, the TX block and the handshake flag word in
// the shared region. RX and TX each hold N words.
type Layout struct {
	RX   uint32
	TX   uint32
	Flag uint32
	N    int
}

// DefaultLayout returns the reference placement for blocks of n points.
func DefaultLayout(n int) Layout {
	return Layout{
		RX:   DefaultRXOffset,
		TX:   DefaultTXOffset,
		Flag: DefaultFlagOffset,
		N:    n,
	}
}

// BlockBytes is the size in bytes of the RX and TX regions.
func (l Layout) BlockBytes() uint32 {
	return uint32(l.N) * WordSize
}

// Size is the smallest region size that holds the whole layout.
func (l Layout) Size() int {
	end := max(l.RX+l.BlockBytes(), l.TX+l.BlockBytes(), l.Flag+WordSize)
	return int(end)
}

// Validate checks that the three regions are aligned, pairwise disjoint and
// fit in a region of memSize bytes. A memSize of 0 skips the fit check.
func (l Layout) Validate(memSize int) error {
	if !bitint.IsPowerOfTwo(l.N) {
		return fmt.Errorf("%w: block size %d is not a power of two", ErrLayout, l.N)
	}
	type span struct {
		name       string
		start, end uint32
	}
	spans := []span{
		{"rx", l.RX, l.RX + l.BlockBytes()},
		{"tx", l.TX, l.TX + l.BlockBytes()},
		{"flag", l.Flag, l.Flag + WordSize},
	}
	for _, s := range spans {
		if s.start%WordSize != 0 {
			return fmt.Errorf("%w: %s offset 0x%04x is not word aligned", ErrLayout, s.name, s.start)
		}
	}
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			if a.start < b.end && b.start < a.end {
				return fmt.Errorf("%w: %s [0x%04x, 0x%04x) overlaps %s [0x%04x, 0x%04x)",
					ErrLayout, a.name, a.start, a.end, b.name, b.start, b.end)
			}
		}
	}

	if memSize > 0 && l.Size() > memSize {
		return fmt.Errorf("%w: layout needs %d bytes, region has %d", ErrLayout, l.Size(), memSize)
	}
	return nil
}
