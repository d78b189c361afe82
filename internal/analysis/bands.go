// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
)

// Band is a named frequency range [LowHz, HighHz).
type Band struct {
	Name   string  `yaml:"name"`
	LowHz  float64 `yaml:"low_hz"`
	HighHz float64 `yaml:"high_hz"`
}

// BandLevel is the RMS magnitude of one band in a frame.
type BandLevel struct {
	Name  string  `json:"name"`
	Level float64 `json:"level"`
}

// DefaultBands splits the spectrum of a sampleRate signal into the ranges
// of interest for machine vibration.
func DefaultBands(sampleRate float64) []Band {
	nyquist := sampleRate / 2
	return []Band{
		{Name: "low", LowHz: 0, HighHz: math.Min(5, nyquist)},
		{Name: "mid", LowHz: math.Min(5, nyquist), HighHz: math.Min(20, nyquist)},
		{Name: "high", LowHz: math.Min(20, nyquist), HighHz: nyquist},
	}
}

// BandMeter sums power per band. The bin to band mapping is computed once.
type BandMeter struct {
	bands  []Band
	binMap []int // band index per bin, -1 for none
	counts []int
}

// NewBandMeter prepares a meter for n-point spectra of a sampleRate signal.
func NewBandMeter(bands []Band, n int, sampleRate float64) (*BandMeter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("band levels need a positive sample rate, got %f", sampleRate)
	}
	for _, b := range bands {
		if b.HighHz <= b.LowHz {
			return nil, fmt.Errorf("band %q: high %.2f Hz is not above low %.2f Hz", b.Name, b.HighHz, b.LowHz)
		}
	}

	half := max(n/2, 1)
	m := &BandMeter{
		bands:  bands,
		binMap: make([]int, half),
		counts: make([]int, len(bands)),
	}
	for bin := range m.binMap {
		m.binMap[bin] = -1
		freq := float64(bin) * sampleRate / float64(n)
		for i, b := range bands {
			if freq >= b.LowHz && freq < b.HighHz {
				m.binMap[bin] = i
				m.counts[i]++
				break
			}
		}
	}
	return m, nil
}

// Measure returns the RMS magnitude of every band.
func (m *BandMeter) Measure(powers []float32) []BandLevel {
	sums := make([]float64, len(m.bands))
	for bin, idx := range m.binMap {
		if idx < 0 || bin >= len(powers) {
			continue
		}
		sums[idx] += float64(powers[bin])
	}

	levels := make([]BandLevel, len(m.bands))
	for i, b := range m.bands {
		levels[i].Name = b.Name
		if m.counts[i] > 0 {
			levels[i].Level = math.Sqrt(sums[i] / float64(m.counts[i]))
		}
	}
	return levels
}
