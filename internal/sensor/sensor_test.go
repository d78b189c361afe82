// SPDX-License-Identifier: MIT
package sensor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"accelfft/internal/clock"
	"accelfft/internal/spectral"
	"accelfft/pkg/utils"
)

func rampWaveform(i int) Sample {
	return Sample{X: int16(i), Y: int16(-i), Z: 256}
}

func newTestAcquirer(t *testing.T, bus Bus, cfg Config) *Acquirer {
	t.Helper()
	a, err := NewAcquirer(bus, cfg)
	if err != nil {
		t.Fatalf("NewAcquirer: %v", err)
	}
	return a
}

func TestSimBusRegisterAccess(t *testing.T) {
	bus := NewSimBus(DefaultAddress, nil)

	id, err := readRegister(bus, DefaultAddress, RegDevID)
	if err != nil || id != DeviceID {
		t.Fatalf("DEVID = 0x%02x, %v; want 0xE5", id, err)
	}

	if _, err := bus.Write(DefaultAddress, []byte{RegDataFormat, 0x0B}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := bus.Register(RegDataFormat); got != 0x0B {
		t.Errorf("DATA_FORMAT = 0x%02x, want 0x0B", got)
	}

	if _, err := bus.Write(0x1D, []byte{RegDevID}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("write to empty address error = %v, want ErrNoDevice", err)
	}
}

func TestNewAcquirerRejectsWrongDevice(t *testing.T) {
	bus := NewSimBus(DefaultAddress, nil)
	bus.regs[RegDevID] = 0x33

	if _, err := NewAcquirer(bus, Config{}); !errors.Is(err, ErrWrongDevice) {
		t.Fatalf("NewAcquirer error = %v, want ErrWrongDevice", err)
	}
}

func TestNewAcquirerRejectsBadSettings(t *testing.T) {
	bus := NewSimBus(DefaultAddress, nil)
	if _, err := NewAcquirer(bus, Config{RangeG: 3}); err == nil {
		t.Error("accepted a ±3g range")
	}
	if _, err := NewAcquirer(bus, Config{RateHz: 123}); err == nil {
		t.Error("accepted a 123 Hz rate")
	}
}

func TestAcquirerEnablesMeasurement(t *testing.T) {
	bus := NewSimBus(DefaultAddress, rampWaveform)
	newTestAcquirer(t, bus, Config{})
	if !bus.Measuring() {
		t.Error("sensor left in standby after NewAcquirer")
	}
}

func TestAcquirerRead(t *testing.T) {
	bus := NewSimBus(DefaultAddress, rampWaveform)
	a := newTestAcquirer(t, bus, Config{})

	for i := 0; i < 3; i++ {
		s, err := a.Read()
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		want := rampWaveform(i)
		if s != want {
			t.Errorf("Read %d = %+v, want %+v", i, s, want)
		}
	}
	if a.Readings() != 3 {
		t.Errorf("Readings() = %d, want 3", a.Readings())
	}
}

func TestAcquirerFillPacesAndSelectsAxis(t *testing.T) {
	bus := NewSimBus(DefaultAddress, rampWaveform)
	fake := clock.NewFake()
	a := newTestAcquirer(t, bus, Config{Axis: AxisY, SampleDelay: time.Millisecond, Clock: fake})

	b := make(spectral.Block, 16)
	if err := a.Fill(context.Background(), b); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	for i, v := range b {
		if v != complex(float32(-i), 0) {
			t.Fatalf("b[%d] = %v, want %d", i, v, -i)
		}
	}
	if fake.Sleeps() != 16 {
		t.Errorf("slept %d times, want 16", fake.Sleeps())
	}
	if got := fake.Now().Sub(time.Unix(0, 0)); got != 16*time.Millisecond {
		t.Errorf("block took %v of fake time, want 16ms", got)
	}
}

func TestAcquirerFillBusError(t *testing.T) {
	bus := NewSimBus(DefaultAddress, rampWaveform)
	a := newTestAcquirer(t, bus, Config{})

	boom := errors.New("arbitration lost")
	bus.FailWith(boom)
	err := a.Fill(context.Background(), make(spectral.Block, 8))
	if !errors.Is(err, boom) {
		t.Fatalf("Fill error = %v, want %v", err, boom)
	}

	bus.FailWith(nil)
	if _, err := a.Read(); err != nil {
		t.Errorf("Read after recovery: %v", err)
	}
}

func TestAcquirerFillHonoursContext(t *testing.T) {
	a := newTestAcquirer(t, NewSimBus(DefaultAddress, rampWaveform), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Fill(ctx, make(spectral.Block, 8)); !errors.Is(err, context.Canceled) {
		t.Errorf("Fill error = %v, want context.Canceled", err)
	}
}

func TestToneWaveform(t *testing.T) {
	wave := ToneWaveform(AxisZ, 128, 250, utils.Tone{Frequency: 32, Amplitude: 1000})
	s := wave(1)
	if s.X != 250 || s.Y != 250 {
		t.Errorf("offset axes = %d, %d; want 250", s.X, s.Y)
	}
	if s.Z != 1000 {
		t.Errorf("Z at quarter period = %d, want 1000", s.Z)
	}
}

func TestSampleScaled(t *testing.T) {
	x, y, z := Sample{X: 250, Y: -250, Z: 0}.Scaled()
	if math.Abs(x-1) > 1e-12 || math.Abs(y+1) > 1e-12 || z != 0 {
		t.Errorf("Scaled() = %v, %v, %v; want 1, -1, 0", x, y, z)
	}
}

func TestParseAxis(t *testing.T) {
	for in, want := range map[string]Axis{"x": AxisX, "Y": AxisY, " z ": AxisZ} {
		if got, err := ParseAxis(in); err != nil || got != want {
			t.Errorf("ParseAxis(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseAxis("w"); err == nil {
		t.Error("ParseAxis(w) should fail")
	}
}

func TestSawtoothSource(t *testing.T) {
	b := make(spectral.Block, 300)
	if err := (SawtoothSource{Period: 256}).Fill(context.Background(), b); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if b[255] != 255 || b[256] != 0 || b[299] != 43 {
		t.Errorf("unexpected ramp: %v %v %v", b[255], b[256], b[299])
	}
}
