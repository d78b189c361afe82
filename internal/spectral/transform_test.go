// SPDX-License-Identifier: MIT
package spectral

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/dsp/fourier"
)

const testBlockSize = 1024

func sineBlock(n int, components map[int]float64) Block {
	b := make(Block, n)
	for i := range b {
		var v float64
		for bin, amp := range components {
			v += amp * math.Sin(2*math.Pi*float64(bin)*float64(i)/float64(n))
		}
		b[i] = complex(float32(v), 0)
	}
	return b
}

func magnitude(c complex64) float64 {
	return cmplx.Abs(complex128(c))
}

func TestNewTransformerRejectsInvalidSizes(t *testing.T) {
	for _, n := range []int{0, -8, 3, 100, 1000} {
		if _, err := NewTransformer(n); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("NewTransformer(%d) error = %v, want ErrInvalidSize", n, err)
		}
		if _, err := NewBlock(n); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("NewBlock(%d) error = %v, want ErrInvalidSize", n, err)
		}
	}
}

func TestTransformRejectsMismatchedBlocks(t *testing.T) {
	tr, err := NewTransformer(128)
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}
	src := make(Block, 128)
	src[0] = 1
	dst := make(Block, 64)

	if err := tr.Transform(dst, src); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("Transform with short dst error = %v, want ErrInvalidSize", err)
	}
	if err := tr.Transform(src, make(Block, 256)); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("Transform with long src error = %v, want ErrInvalidSize", err)
	}
	if src[0] != 1 {
		t.Errorf("input modified by a rejected transform: src[0] = %v", src[0])
	}
	if err := Transform(make(Block, 100)); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Transform(100 points) error = %v, want ErrInvalidSize", err)
	}
}

func TestTransformZeroInput(t *testing.T) {
	for _, n := range []int{1, 2, 8, 128, testBlockSize} {
		b := make(Block, n)
		if err := Transform(b); err != nil {
			t.Fatalf("Transform(%d zeros): %v", n, err)
		}
		for k, v := range b {
			if v != 0 {
				t.Fatalf("N=%d: bin %d = %v, want 0", n, k, v)
			}
		}
	}
}

func TestTransformSingleSampleIsIdentity(t *testing.T) {
	b := Block{complex(3.5, -1.25)}
	if err := Transform(b); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if b[0] != complex(3.5, -1.25) {
		t.Errorf("N=1 transform = %v, want input unchanged", b[0])
	}
}

func TestTransformSinusoidPeak(t *testing.T) {
	tests := []struct {
		name string
		n    int
		bin  int
		amp  float64
	}{
		{"N8 bin1", 8, 1, 1.0},
		{"N128 bin10", 128, 10, 2.0},
		{"N1024 bin100", testBlockSize, 100, 1000.0},
		{"N1024 bin511", testBlockSize, 511, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sineBlock(tt.n, map[int]float64{tt.bin: tt.amp})
			if err := Transform(b); err != nil {
				t.Fatalf("Transform: %v", err)
			}

			want := tt.amp * float64(tt.n) / 2
			for _, k := range []int{tt.bin, tt.n - tt.bin} {
				if got := magnitude(b[k]); math.Abs(got-want) > want*1e-3 {
					t.Errorf("|X[%d]| = %.4f, want %.4f", k, got, want)
				}
			}
			for k, v := range b {
				if k == tt.bin || k == tt.n-tt.bin {
					continue
				}
				if got := magnitude(v); got > want*1e-3 {
					t.Errorf("leakage at bin %d: %.6f (peak %.4f)", k, got, want)
				}
			}
		})
	}
}

func TestTransformTwoToneScenario(t *testing.T) {
	const n = 128
	b := sineBlock(n, map[int]float64{10: 1.0, 30: 0.5})
	if err := Transform(b); err != nil {
		t.Fatalf("Transform: %v", err)
	}

	m10, m30 := magnitude(b[10]), magnitude(b[30])
	if ratio := m10 / m30; math.Abs(ratio-2) > 1e-3 {
		t.Errorf("|X[10]|/|X[30]| = %.5f, want 2", ratio)
	}

	powers := make([]float32, n)
	Power(powers, b)
	best := 0
	for k := 1; k < n/2; k++ {
		if powers[k] > powers[best] {
			best = k
		}
	}
	if best != 10 {
		t.Errorf("highest power bin = %d, want 10", best)
	}
}

func TestTransformMatchesReference(t *testing.T) {
	const n = 256
	src := make(Block, n)
	ref := make([]complex128, n)
	for i := range src {
		re := math.Sin(2*math.Pi*7*float64(i)/n) + 0.25*math.Cos(2*math.Pi*41*float64(i)/n) + float64(i%5)/10
		im := 0.1 * math.Sin(2*math.Pi*3*float64(i)/n)
		src[i] = complex(float32(re), float32(im))
		ref[i] = complex128(src[i])
	}

	tr, err := NewTransformer(n)
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}
	dst := make(Block, n)
	if err := tr.Transform(dst, src); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	want := fourier.NewCmplxFFT(n).Coefficients(nil, ref)

	for k := range dst {
		if d := cmplx.Abs(complex128(dst[k]) - want[k]); d > 1e-3 {
			t.Errorf("bin %d: got %v, reference %v (|diff| %.2e)", k, dst[k], want[k], d)
		}
	}
}

func TestTransformInPlaceMatchesOutOfPlace(t *testing.T) {
	src := sineBlock(64, map[int]float64{5: 1, 12: 0.3})
	tr, _ := NewTransformer(64)

	out := make(Block, 64)
	if err := tr.Transform(out, src); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if err := tr.Transform(src, src); err != nil {
		t.Fatalf("in-place Transform: %v", err)
	}
	for k := range out {
		if out[k] != src[k] {
			t.Fatalf("bin %d: in-place %v, out-of-place %v", k, src[k], out[k])
		}
	}
}

func TestTransformHotPath(t *testing.T) {
	tr, err := NewTransformer(testBlockSize)
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}
	src := sineBlock(testBlockSize, map[int]float64{64: 1})
	dst := make(Block, testBlockSize)
	powers := make([]float32, testBlockSize)

	// Warm-up call so lazy runtime work does not count.
	_ = tr.Transform(dst, src)
	allocs := testing.AllocsPerRun(100, func() {
		_ = tr.Transform(dst, src)
		Power(powers, dst)
	})

	if allocs > 0 {
		t.Errorf("Expected zero allocations in Transform hot path, got %.1f", allocs)
	}
}

func TestBinFrequency(t *testing.T) {
	if got := BinFrequency(10, 128, 128); got != 10 {
		t.Errorf("BinFrequency(10, 128, 128) = %v, want 10", got)
	}
	if got := BinFrequency(256, 1024, 100); got != 25 {
		t.Errorf("BinFrequency(256, 1024, 100) = %v, want 25", got)
	}
	if got := BinFrequency(3, 0, 100); got != 0 {
		t.Errorf("BinFrequency with n=0 = %v, want 0", got)
	}
}

func BenchmarkTransform(b *testing.B) {
	tr, _ := NewTransformer(testBlockSize)
	src := sineBlock(testBlockSize, map[int]float64{64: 0.5, 128: 0.3, 192: 0.2})
	dst := make(Block, testBlockSize)

	b.ReportAllocs()

	b.ResetTimer()
	for loop := 0; loop < b.N; loop++ {
		_ = tr.Transform(dst, src)
	}
}
