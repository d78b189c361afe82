// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"accelfft/internal/spectral"
	"accelfft/pkg/utils"
)

func twoTonePowers(t *testing.T) []float32 {
	t.Helper()
	const n = 128
	wave := utils.GenerateComplexWave(n, n, utils.Tone{Frequency: 10, Amplitude: 1}, utils.Tone{Frequency: 30, Amplitude: 0.5})
	b := make(spectral.Block, n)
	for i, v := range wave {
		b[i] = complex(float32(v), 0)
	}
	if err := spectral.Transform(b); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	powers := make([]float32, n)
	spectral.Power(powers, b)
	return powers
}

func newTestAnalyzer(t *testing.T, cfg Config) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(cfg)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return a
}

func TestAnalyzeTwoTone(t *testing.T) {
	a := newTestAnalyzer(t, Config{BlockSize: 128, SampleRate: 128})
	r := a.Analyze(1, twoTonePowers(t))

	if r.Bin != 10 {
		t.Fatalf("peak bin = %d, want 10", r.Bin)
	}
	if r.FrequencyHz != 10 {
		t.Errorf("peak frequency = %v Hz, want 10", r.FrequencyHz)
	}
	if want := 64.0; math.Abs(r.Magnitude-want) > 0.01 {
		t.Errorf("peak magnitude = %v, want %v", r.Magnitude, want)
	}
	if r.Frame != 1 || r.Type != ReportType {
		t.Errorf("unexpected report header: %+v", r)
	}
}

func TestAnalyzeScansFirstHalfOnly(t *testing.T) {
	powers := make([]float32, 16)
	powers[3] = 5
	powers[8] = 50 // Nyquist and above are mirror bins
	powers[13] = 50

	r := newTestAnalyzer(t, Config{BlockSize: 16}).Analyze(0, powers)
	if r.Bin != 3 || r.Power != 5 {
		t.Errorf("peak = bin %d power %v, want bin 3 power 5", r.Bin, r.Power)
	}
}

func TestAnalyzeTiesKeepLowestBin(t *testing.T) {
	powers := []float32{0, 7, 2, 7, 7, 0, 0, 0}
	r := newTestAnalyzer(t, Config{BlockSize: 8}).Analyze(0, powers)
	if r.Bin != 1 {
		t.Errorf("tie resolved to bin %d, want 1", r.Bin)
	}
}

func TestAnalyzeSkipDC(t *testing.T) {
	powers := []float32{1000, 3, 9, 1, 0, 0, 0, 0}

	if r := newTestAnalyzer(t, Config{BlockSize: 8}).Analyze(0, powers); r.Bin != 0 {
		t.Errorf("without SkipDC peak bin = %d, want 0", r.Bin)
	}
	if r := newTestAnalyzer(t, Config{BlockSize: 8, SkipDC: true}).Analyze(0, powers); r.Bin != 2 {
		t.Errorf("with SkipDC peak bin = %d, want 2", r.Bin)
	}
}

func TestAnalyzeDegenerateBlocks(t *testing.T) {
	a := newTestAnalyzer(t, Config{BlockSize: 1})
	if r := a.Analyze(0, []float32{4}); r.Bin != 0 || r.Power != 4 {
		t.Errorf("single bin report = %+v", r)
	}
	if r := a.Analyze(0, nil); r.Bin != 0 || r.Power != 0 {
		t.Errorf("empty report = %+v", r)
	}
}

func TestNewAnalyzerRejectsBadConfig(t *testing.T) {
	if _, err := NewAnalyzer(Config{BlockSize: 0}); err == nil {
		t.Error("accepted block size 0")
	}
	if _, err := NewAnalyzer(Config{BlockSize: 8, SampleRate: -1}); err == nil {
		t.Error("accepted a negative sample rate")
	}
	if _, err := NewAnalyzer(Config{BlockSize: 8, Bands: []Band{{Name: "x", LowHz: 1, HighHz: 2}}}); err == nil {
		t.Error("accepted bands without a sample rate")
	}
}

func TestTopPeaks(t *testing.T) {
	peaks := TopPeaks(twoTonePowers(t), 3)
	if len(peaks) < 2 {
		t.Fatalf("got %d peaks, want at least 2", len(peaks))
	}
	if peaks[0].Bin != 10 || peaks[1].Bin != 30 {
		t.Errorf("strongest peaks = %d, %d; want 10, 30", peaks[0].Bin, peaks[1].Bin)
	}
	if ratio := math.Sqrt(float64(peaks[0].Power / peaks[1].Power)); math.Abs(ratio-2) > 1e-3 {
		t.Errorf("magnitude ratio = %v, want 2", ratio)
	}

	if TopPeaks([]float32{1, 2, 3}, 0) != nil {
		t.Error("k=0 should return nil")
	}
}

func TestAnalyzeIncludesPeaksAndBands(t *testing.T) {
	a := newTestAnalyzer(t, Config{
		BlockSize:  128,
		SampleRate: 128,
		TopK:       2,
		Bands:      []Band{{Name: "a", LowHz: 0, HighHz: 20}, {Name: "b", LowHz: 20, HighHz: 64}},
	})
	r := a.Analyze(2, twoTonePowers(t))

	if len(r.Peaks) != 2 || r.Peaks[1].FrequencyHz != 30 {
		t.Errorf("peaks = %+v", r.Peaks)
	}
	if len(r.Bands) != 2 || r.Bands[0].Name != "a" {
		t.Fatalf("bands = %+v", r.Bands)
	}
	// 20 bins in band a hold the 10 Hz tone, 44 bins in band b the 30 Hz one.
	wantA := math.Sqrt(64 * 64 / 20.0)
	wantB := math.Sqrt(32 * 32 / 44.0)
	if math.Abs(r.Bands[0].Level-wantA) > 0.01 || math.Abs(r.Bands[1].Level-wantB) > 0.01 {
		t.Errorf("band levels = %v, %v; want %v, %v", r.Bands[0].Level, r.Bands[1].Level, wantA, wantB)
	}
}

func TestDefaultBandsFollowNyquist(t *testing.T) {
	bands := DefaultBands(100)
	if bands[len(bands)-1].HighHz != 50 {
		t.Errorf("last band ends at %v Hz, want 50", bands[len(bands)-1].HighHz)
	}
}

func TestShockDetector(t *testing.T) {
	d := NewShockDetector(ShockConfig{Threshold: 10, Ratio: 2})
	steps := []struct {
		energy float64
		want   bool
	}{
		{5, false},  // below threshold
		{11, true},  // above threshold, more than doubled
		{15, false}, // not doubled
		{40, true},
		{40, false},
	}
	for i, s := range steps {
		if got := d.Detect(s.energy); got != s.want {
			t.Errorf("step %d: Detect(%v) = %v, want %v", i, s.energy, got, s.want)
		}
	}
}

func BenchmarkAnalyze(b *testing.B) {
	powers := make([]float32, 1024)
	for i := range powers {
		powers[i] = float32(i % 97)
	}
	a, _ := NewAnalyzer(Config{BlockSize: 1024, SampleRate: 100})

	b.ReportAllocs()

	b.ResetTimer()
	for loop := 0; loop < b.N; loop++ {
		_ = a.Analyze(0, powers)
	}
}
