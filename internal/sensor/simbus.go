// SPDX-License-Identifier: MIT
package sensor

import (
	"math"
	"sync"

	"accelfft/pkg/utils"
)

// ADXL345 registers.
const (
	RegDevID      = 0x00
	RegBWRate     = 0x2C
	RegPowerCtl   = 0x2D
	RegDataFormat = 0x31
	RegDataX0     = 0x32

	DeviceID     = 0xE5
	powerMeasure = 0x08
	numRegisters = 0x40
)

// Waveform returns the sample the simulated sensor outputs for its i-th
// conversion.
type Waveform func(i int) Sample

// ToneWaveform puts the sum of tones, scaled to LSB, on axis and a constant
// offset (gravity) on the other axes.
func ToneWaveform(axis Axis, sampleRate float64, offset int16, tones ...utils.Tone) Waveform {
	return func(i int) Sample {
		v := utils.ToneAt(i, sampleRate, tones...)
		s := Sample{X: offset, Y: offset, Z: offset}
		s.set(axis, clampInt16(math.Round(v)))
		return s
	}
}

// SawtoothWaveform ramps axis through [0, period).
func SawtoothWaveform(axis Axis, period int) Waveform {
	return func(i int) Sample {
		var s Sample
		s.set(axis, utils.Sawtooth(i, period))
		return s
	}
}

func clampInt16(v float64) int16 {
	return int16(max(math.MinInt16, min(math.MaxInt16, v)))
}

// SimBus is an in-memory bus with a simulated ADXL345 attached. Data
// registers latch the next waveform sample when a read starts at DATAX0
// in measurement mode. It is safe for concurrent use.
type SimBus struct {
	mu      sync.Mutex
	addr    uint16
	regs    [numRegisters]byte
	ptr     byte
	wave    Waveform
	n       int
	failErr error
}

// NewSimBus returns a bus with an ADXL345 at addr fed by wave.
func NewSimBus(addr uint16, wave Waveform) *SimBus {
	s := &SimBus{addr: addr, wave: wave}
	s.regs[RegDevID] = DeviceID
	s.regs[RegBWRate] = 0x0A
	return s
}

// FailWith makes every following transfer fail with err; nil restores the bus.
func (s *SimBus) FailWith(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// Register returns the current value of reg.
func (s *SimBus) Register(reg byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[reg%numRegisters]
}

// Measuring reports whether POWER_CTL has the measure bit set.
func (s *SimBus) Measuring() bool {
	return s.Register(RegPowerCtl)&powerMeasure != 0
}

// Conversions returns how many samples have been latched.
func (s *SimBus) Conversions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func (s *SimBus) check(addr uint16) error {
	if s.failErr != nil {
		return s.failErr
	}
	if addr != s.addr {
		return ErrNoDevice
	}
	return nil
}

// Write implements Bus. The first byte sets the register pointer; the rest
// are written to consecutive registers.
func (s *SimBus) Write(addr uint16, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(addr); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	s.ptr = buf[0] % numRegisters
	for _, b := range buf[1:] {
		if s.ptr != RegDevID {
			s.regs[s.ptr] = b
		}
		s.ptr = (s.ptr + 1) % numRegisters
	}
	return len(buf), nil
}

// Read implements Bus. Reads auto-increment the register pointer.
func (s *SimBus) Read(addr uint16, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(addr); err != nil {
		return 0, err
	}
	if s.ptr == RegDataX0 && s.regs[RegPowerCtl]&powerMeasure != 0 {
		s.latch()
	}
	for i := range buf {
		buf[i] = s.regs[s.ptr]
		s.ptr = (s.ptr + 1) % numRegisters
	}
	return len(buf), nil
}

func (s *SimBus) latch() {
	var smp Sample
	if s.wave != nil {
		smp = s.wave(s.n)
	}
	s.n++
	for i, v := range []int16{smp.X, smp.Y, smp.Z} {
		s.regs[RegDataX0+2*i] = byte(uint16(v))
		s.regs[RegDataX0+2*i+1] = byte(uint16(v) >> 8)
	}
}
