// SPDX-License-Identifier: MIT
package utils

import (
	"errors"
	"math"
	"os"
	"testing"
)

const (
	testSize       = 1024
	testSampleRate = 1024
	testFrequency  = 50.0
)

var testMagnitudes []float64

func TestMain(m *testing.M) {
	testMagnitudes = make([]float64, testSize)

	// Creates a "hill" with peak at position testSize/4.
	for i := range testMagnitudes {
		testMagnitudes[i] = math.Exp(-0.01 * math.Pow(float64(i-testSize/4), 2))
	}

	os.Exit(m.Run())
}

func TestMockTransport(t *testing.T) {
	mt := &MockTransport{}
	if err := mt.Send("a"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	mt.Err = errors.New("down")
	if err := mt.Send(2); err == nil {
		t.Fatal("Send() should return the configured error")
	}

	sent := mt.Sent()
	if len(sent) != 2 || sent[0] != "a" || sent[1] != 2 {
		t.Errorf("Sent() = %v", sent)
	}
}

func TestGenerateSineWave(t *testing.T) {
	wave := GenerateSineWave(testSize, testSampleRate, testFrequency, 2)
	if len(wave) != testSize {
		t.Fatalf("len = %d, want %d", len(wave), testSize)
	}
	if wave[0] != 0 {
		t.Errorf("wave[0] = %v, want 0", wave[0])
	}

	var peak float64
	for _, v := range wave {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak > 2 || peak < 1.99 {
		t.Errorf("peak amplitude = %v, want ~2", peak)
	}
}

func TestGenerateComplexWave(t *testing.T) {
	tones := []Tone{{10, 1}, {30, 0.5}}
	wave := GenerateComplexWave(128, 128, tones...)
	for i, got := range wave {
		want := math.Sin(2*math.Pi*10*float64(i)/128) + 0.5*math.Sin(2*math.Pi*30*float64(i)/128)
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("sample %d = %v, want %v", i, got, want)
		}
	}
}

func TestSawtooth(t *testing.T) {
	if Sawtooth(255, 256) != 255 || Sawtooth(256, 256) != 0 || Sawtooth(5, 0) != 0 {
		t.Error("unexpected sawtooth values")
	}
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name     string
		startBin int
		endBin   int
		want     int
	}{
		{"Full range", 0, testSize - 1, testSize / 4},
		{"Clamped range", -5, testSize * 2, testSize / 4},
		{"Upper half", testSize / 2, testSize - 1, testSize / 2},
		{"Empty range", 10, 5, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindPeakBin(testMagnitudes, tt.startBin, tt.endBin); got != tt.want {
				t.Errorf("FindPeakBin() = %d, want %d", got, tt.want)
			}
		})
	}

	if got := FindPeakBin([]float32{1, 3, 3, 2}, 0, 3); got != 1 {
		t.Errorf("tie resolved to bin %d, want 1", got)
	}
	if got := FindPeakBin([]float64{}, 0, 3); got != 0 {
		t.Errorf("empty input = %d, want 0", got)
	}
}

func BenchmarkFindPeakBin(b *testing.B) {
	b.ReportAllocs()

	b.ResetTimer()
	for loop := 0; loop < b.N; loop++ {
		_ = FindPeakBin(testMagnitudes, 0, testSize-1)
	}
}
