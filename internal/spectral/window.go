// SPDX-License-Identifier: MIT
package spectral

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the taper applied to a time-domain block before the
// transform. Rectangular leaves the block untouched.
type WindowFunc int

const (
	Rectangular WindowFunc = iota
	Hann
	Hamming
	Blackman
)

func (w WindowFunc) String() string {
	switch w {
	case Rectangular:
		return "rectangular"
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Blackman:
		return "blackman"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// ParseWindowFunc converts a case-insensitive name to a WindowFunc. Unknown
// names return Rectangular and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "rectangular":
		return Rectangular, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	default:
		return Rectangular, fmt.Errorf("unknown window function name: '%s'", name)
	}
}

// Coefficients returns the n window coefficients. The slice is meant to be
// computed once and reused with Apply.
func (w WindowFunc) Coefficients(n int) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	}
	return coeffs
}

// Apply multiplies every sample of b by its coefficient. A nil coeffs slice
// is the rectangular window and leaves b untouched.
func Apply(b Block, coeffs []float64) {
	if coeffs == nil {
		return
	}
	n := min(len(b), len(coeffs))
	for i := 0; i < n; i++ {
		c := float32(coeffs[i])
		b[i] = complex(real(b[i])*c, imag(b[i])*c)
	}
}
