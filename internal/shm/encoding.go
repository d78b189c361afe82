// SPDX-License-Identifier: MIT
package shm

import (
	"math"

	"accelfft/internal/spectral"
)

// PackSample encodes one RX word: the real part in the low 16 bits and the
// imaginary part in the high 16 bits, both two's complement.
func PackSample(re, im int16) uint32 {
	return uint32(uint16(im))<<16 | uint32(uint16(re))
}

// UnpackSample decodes an RX word produced by PackSample.
func UnpackSample(w uint32) (re, im int16) {
	return int16(uint16(w)), int16(uint16(w >> 16))
}

// saturate rounds v to the nearest int16, clamping out-of-range values.
func saturate(v float32) int16 {
	switch {
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(float64(v)))
}

// WriteSamples encodes b as packed RX words at off, through the cache.
func (v *View) WriteSamples(off uint32, b spectral.Block) {
	for i, c := range b {
		v.Write32(off+uint32(i)*WordSize, PackSample(saturate(real(c)), saturate(imag(c))))
	}
}

// ReadSamples decodes len(dst) packed RX words at off, through the cache.
func (v *View) ReadSamples(off uint32, dst spectral.Block) {
	for i := range dst {
		re, im := UnpackSample(v.Read32(off + uint32(i)*WordSize))
		dst[i] = complex(float32(re), float32(im))
	}
}

// WritePowers stores one IEEE-754 float32 power word per bin at off,
// through the cache.
func (v *View) WritePowers(off uint32, powers []float32) {
	for i, p := range powers {
		v.Write32(off+uint32(i)*WordSize, math.Float32bits(p))
	}
}

// ReadPowers loads len(dst) power words at off, through the cache.
func (v *View) ReadPowers(off uint32, dst []float32) {
	for i := range dst {
		dst[i] = math.Float32frombits(v.Read32(off + uint32(i)*WordSize))
	}
}
