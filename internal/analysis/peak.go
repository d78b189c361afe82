// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"slices"

	applog "accelfft/internal/log"
)

// Peak is one spectral bin.
type Peak struct {
	Bin         int     `json:"bin"`
	Power       float32 `json:"power"`
	FrequencyHz float64 `json:"frequency_hz"`
}

// Report is what the consumer derives from one delivered block.
type Report struct {
	Type        string      `json:"type"`
	Frame       uint64      `json:"frame"`
	Bin         int         `json:"bin"`
	Power       float32     `json:"power"`
	Magnitude   float64     `json:"magnitude"`
	FrequencyHz float64     `json:"frequency_hz"`
	Energy      float64     `json:"energy"`
	Peaks       []Peak      `json:"peaks,omitempty"`
	Bands       []BandLevel `json:"bands,omitempty"`
	Shock       bool        `json:"shock,omitempty"`
}

// ReportType tags reports on the wire.
const ReportType = "spectrum_peak"

// Config controls the analysis of each block.
type Config struct {
	BlockSize  int
	SampleRate float64 // Hz; 0 leaves FrequencyHz at 0
	SkipDC     bool    // start the peak search at bin 1
	TopK       int     // strongest local peaks to include, 0 for none
	Bands      []Band
	Shock      ShockConfig
}

// Analyzer finds the dominant frequency component of a power spectrum.
// It is owned by the consumer goroutine.
type Analyzer struct {
	cfg   Config
	bands *BandMeter
	shock *ShockDetector
	log   *applog.Logger
}

// NewAnalyzer validates cfg and returns an Analyzer.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", cfg.BlockSize)
	}
	if cfg.SampleRate < 0 {
		return nil, fmt.Errorf("sample rate must not be negative, got %f", cfg.SampleRate)
	}
	a := &Analyzer{cfg: cfg, log: applog.New("analysis")}
	if len(cfg.Bands) > 0 {
		bm, err := NewBandMeter(cfg.Bands, cfg.BlockSize, cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		a.bands = bm
	}
	if cfg.Shock.Threshold > 0 {
		a.shock = NewShockDetector(cfg.Shock)
	}
	a.log.Debugf("analyzer ready (N=%d, %.1f Hz, skip DC %v, %d bands)", cfg.BlockSize, cfg.SampleRate, cfg.SkipDC, len(cfg.Bands))
	return a, nil
}

// FrequencyForBin returns the centre frequency of bin in Hz.
func (a *Analyzer) FrequencyForBin(bin int) float64 {
	return float64(bin) * a.cfg.SampleRate / float64(a.cfg.BlockSize)
}

// searchRange returns the bins [start, end) holding distinct frequencies of
// a real input: the first half of the spectrum.
func searchRange(n int, skipDC bool) (int, int) {
	end := max(n/2, 1)
	start := 0
	if skipDC && end > 1 {
		start = 1
	}
	return start, min(end, n)
}

// Analyze reports the highest-power bin of the first half of powers in a
// single pass. Ties keep the lowest bin.
func (a *Analyzer) Analyze(frame uint64, powers []float32) Report {
	r := Report{Type: ReportType, Frame: frame}
	start, end := searchRange(len(powers), a.cfg.SkipDC)
	if start >= end {
		return r
	}

	r.Bin, r.Power = start, powers[start]
	for k := start; k < end; k++ {
		p := powers[k]
		r.Energy += float64(p)
		if p > r.Power {
			r.Bin, r.Power = k, p
		}
	}
	r.Magnitude = math.Sqrt(float64(r.Power))
	r.FrequencyHz = a.FrequencyForBin(r.Bin)

	if a.cfg.TopK > 0 {
		r.Peaks = TopPeaks(powers, a.cfg.TopK)
		for i := range r.Peaks {
			r.Peaks[i].FrequencyHz = a.FrequencyForBin(r.Peaks[i].Bin)
		}
	}
	if a.bands != nil {
		r.Bands = a.bands.Measure(powers)
	}
	if a.shock != nil {
		r.Shock = a.shock.Detect(r.Energy)
	}
	return r
}

// TopPeaks returns up to k local maxima of the first half of powers,
// strongest first. Equal powers are ordered by bin.
func TopPeaks(powers []float32, k int) []Peak {
	if k <= 0 {
		return nil
	}
	_, end := searchRange(len(powers), false)
	var peaks []Peak
	for i := 0; i < end; i++ {
		p := powers[i]
		if i > 0 && p <= powers[i-1] {
			continue
		}
		if i+1 < end && p < powers[i+1] {
			continue
		}
		peaks = append(peaks, Peak{Bin: i, Power: p})
	}
	slices.SortStableFunc(peaks, func(a, b Peak) int {
		switch {
		case a.Power > b.Power:
			return -1
		case a.Power < b.Power:
			return 1
		default:
			return a.Bin - b.Bin
		}
	})
	if len(peaks) > k {
		peaks = peaks[:k]
	}
	return peaks
}
