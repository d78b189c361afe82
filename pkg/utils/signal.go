// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"sync"
)

// Tone is one sinusoidal component of a generated signal.
type Tone struct {
	Frequency float64 // Hz
	Amplitude float64
}

// ToneAt returns the value of the sum of tones at sample i.
func ToneAt(i int, sampleRate float64, tones ...Tone) float64 {
	t := float64(i) / sampleRate
	var v float64
	for _, tone := range tones {
		v += tone.Amplitude * math.Sin(2*math.Pi*tone.Frequency*t)
	}
	return v
}

// GenerateComplexWave returns size samples of the sum of tones.
func GenerateComplexWave(size int, sampleRate float64, tones ...Tone) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		buffer[i] = ToneAt(i, sampleRate, tones...)
	}
	return buffer
}

// GenerateSineWave returns size samples of a single sinusoid.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float64 {
	return GenerateComplexWave(size, sampleRate, Tone{Frequency: frequency, Amplitude: amplitude})
}

// Sawtooth returns the dummy ramp used when no sensor is fitted: i modulo
// period.
func Sawtooth(i, period int) int16 {
	if period <= 0 {
		return 0
	}
	return int16(i % period)
}

// FindPeakBin returns the index of the largest value in [startBin, endBin].
// Ties keep the lowest index.
func FindPeakBin[T ~float32 | ~float64](values []T, startBin, endBin int) int {
	if len(values) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(values) {
		endBin = len(values) - 1
	}

	if startBin > endBin {
		return startBin
	}

	peakBin := startBin
	peakValue := values[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if values[bin] > peakValue {
			peakValue = values[bin]
			peakBin = bin
		}
	}

	return peakBin
}

// MockTransport records every value it is sent instead of transmitting.
// It is safe for concurrent use.
type MockTransport struct {
	mu   sync.Mutex
	sent []any
	Err  error
}

// Send stores data for later inspection and returns Err.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return m.Err
}

// Sent returns a copy of everything sent so far.
func (m *MockTransport) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.sent...)
}
