// SPDX-License-Identifier: MIT
/*
Package spectral implements the numerical engine of the pipeline: a
forward, unnormalized, single-precision radix-2 decimation-in-time
transform over fixed-size blocks of complex samples.

The recursion follows the textbook split: the even-indexed and odd-indexed
halves are transformed independently and recombined with the twiddle
factors W = e^(-2πik/N):

	X[k]       = E[k] + W·O[k]
	X[k + N/2] = E[k] - W·O[k]

Real-Time Safety:
- Twiddle factors and the scratch arena are allocated once per Transformer
- Transform performs zero allocations and recursion depth is log2(N)
- No package-level mutable state
*/
package spectral

import (
	"errors"
	"fmt"
	"math"

	"accelfft/pkg/bitint"
)

// ErrInvalidSize is returned when a block length is not a power of two, or
// does not match the Transformer it is handed to.
var ErrInvalidSize = errors.New("spectral: invalid block size")

// Block is an ordered sequence of exactly N complex samples. It is sized at
// construction and reused for every cycle.
type Block []complex64

// NewBlock allocates a zeroed block of n samples. n must be a power of two.
func NewBlock(n int) (Block, error) {
	if !bitint.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("%w: %d is not a power of two", ErrInvalidSize, n)
	}
	return make(Block, n), nil
}

// Reset zeroes every sample in place.
func (b Block) Reset() {
	clear(b)
}

// Transformer holds the pre-computed state for transforms of one size.
// A Transformer owns its scratch arena, so a single instance must not be
// used from two goroutines at once; separate instances are independent.
type Transformer struct {
	n       int
	twiddle []complex64 // W_N^k for k in [0, N/2)
	arena   []complex64 // scratch for the even/odd halves of every level
}

// NewTransformer prepares a transformer for blocks of n points.
func NewTransformer(n int) (*Transformer, error) {
	if !bitint.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("%w: %d is not a power of two", ErrInvalidSize, n)
	}

	twiddle := make([]complex64, n/2)
	for k := range twiddle {
		angle := -2 * math.Pi * float64(k) / float64(n)
		twiddle[k] = complex(float32(math.Cos(angle)), float32(math.Sin(angle)))
	}

	// Level m uses m scratch slots and hands the rest to its children, so
	// the arena needs N + N/2 + ... + 1 < 2N slots.
	return &Transformer{
		n:       n,
		twiddle: twiddle,
		arena:   make([]complex64, 2*n),
	}, nil
}

// Size returns the number of points the transformer was built for.
func (t *Transformer) Size() int {
	return t.n
}

// Transform writes the DFT of src into dst. dst may be src for an in-place
// transform. Both blocks must hold exactly Size() samples; this is checked
// before any computation.
func (t *Transformer) Transform(dst, src Block) error {
	if len(src) != t.n || len(dst) != t.n {
		return fmt.Errorf("%w: got %d input and %d output points for a %d-point transform",
			ErrInvalidSize, len(src), len(dst), t.n)
	}
	if &dst[0] != &src[0] {
		copy(dst, src)
	}
	t.fft(dst, t.arena, 1)
	return nil
}

// fft transforms x in place. step is the stride into the N-point twiddle
// table for this level: W_m^k = W_N^(k·N/m).
func (t *Transformer) fft(x Block, scratch []complex64, step int) {
	m := len(x)
	if m <= 1 {
		return
	}
	h := m / 2
	even, odd := scratch[:h], scratch[h:m]
	for i := 0; i < h; i++ {
		even[i] = x[2*i]
		odd[i] = x[2*i+1]
	}

	// even is complete before odd starts, so both reuse the same deeper scratch.
	rest := scratch[m:]
	t.fft(even, rest, step*2)
	t.fft(odd, rest, step*2)

	for k := 0; k < h; k++ {
		w := t.twiddle[k*step] * odd[k]
		x[k] = even[k] + w
		x[k+h] = even[k] - w
	}
}

// Transform is a one-shot in-place transform of x. It allocates a
// Transformer per call; hot paths should keep a Transformer instead.
func Transform(x Block) error {
	t, err := NewTransformer(len(x))
	if err != nil {
		return err
	}
	return t.Transform(x, x)
}

// Power writes |X[k]|² for every bin of src into dst. Only the first
// min(len(dst), len(src)) bins are written.
func Power(dst []float32, src Block) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		re, im := real(src[i]), imag(src[i])
		dst[i] = re*re + im*im
	}
}

// BinFrequency returns the centre frequency in Hz of bin for an n-point
// transform of a signal sampled at sampleRate.
func BinFrequency(bin, n int, sampleRate float64) float64 {
	if n <= 0 {
		return 0
	}
	return float64(bin) * sampleRate / float64(n)
}
