// SPDX-License-Identifier: MIT
package sensor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/drivers/adxl345"

	"accelfft/internal/clock"
	applog "accelfft/internal/log"
	"accelfft/internal/spectral"
	"accelfft/pkg/utils"
)

// ScaleFactor is the full-resolution sensitivity in g per LSB.
const ScaleFactor = 0.004

// ErrWrongDevice is returned when the DEVID register does not identify an
// ADXL345.
var ErrWrongDevice = errors.New("sensor: unexpected device id")

// Axis selects which accelerometer axis feeds the transform.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// ParseAxis converts "x", "y" or "z" (any case) to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	default:
		return AxisX, fmt.Errorf("unknown axis: '%s'", s)
	}
}

// Sample is one raw 3-axis reading.
type Sample struct {
	X, Y, Z int16
}

// Axis returns the reading of one axis.
func (s Sample) Axis(a Axis) int16 {
	switch a {
	case AxisY:
		return s.Y
	case AxisZ:
		return s.Z
	default:
		return s.X
	}
}

func (s *Sample) set(a Axis, v int16) {
	switch a {
	case AxisY:
		s.Y = v
	case AxisZ:
		s.Z = v
	default:
		s.X = v
	}
}

// Scaled returns the reading in g.
func (s Sample) Scaled() (x, y, z float64) {
	return float64(s.X) * ScaleFactor, float64(s.Y) * ScaleFactor, float64(s.Z) * ScaleFactor
}

// Source fills a block with time-domain samples.
type Source interface {
	Fill(ctx context.Context, b spectral.Block) error
}

var rates = map[int]adxl345.Rate{
	3200: adxl345.RATE_3200HZ,
	1600: adxl345.RATE_1600HZ,
	800:  adxl345.RATE_800HZ,
	400:  adxl345.RATE_400HZ,
	200:  adxl345.RATE_200HZ,
	100:  adxl345.RATE_100HZ,
	50:   adxl345.RATE_50HZ,
	25:   adxl345.RATE_25HZ,
}

var ranges = map[int]adxl345.Range{
	2:  adxl345.RANGE_2G,
	4:  adxl345.RANGE_4G,
	8:  adxl345.RANGE_8G,
	16: adxl345.RANGE_16G,
}

// RateFor maps an output data rate in Hz to the driver setting.
func RateFor(hz int) (adxl345.Rate, error) {
	r, ok := rates[hz]
	if !ok {
		return 0, fmt.Errorf("unsupported data rate %d Hz", hz)
	}
	return r, nil
}

// RangeFor maps a measurement range in g to the driver setting.
func RangeFor(g int) (adxl345.Range, error) {
	r, ok := ranges[g]
	if !ok {
		return 0, fmt.Errorf("unsupported range ±%dg", g)
	}
	return r, nil
}

// Config describes the sensor and the acquisition pacing.
type Config struct {
	Address     uint16
	Axis        Axis
	SampleDelay time.Duration // pause after each reading
	RangeG      int
	RateHz      int
	Clock       clock.Clock
}

// Acquirer reads blocks from an ADXL345.
type Acquirer struct {
	bus  *i2cAdapter
	dev  adxl345.Device
	cfg  Config
	clk  clock.Clock
	log  *applog.Logger
	read int
}

// NewAcquirer checks the device id, configures the sensor and enables
// measurement mode.
func NewAcquirer(bus Bus, cfg Config) (*Acquirer, error) {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.RangeG == 0 {
		cfg.RangeG = 2
	}
	if cfg.RateHz == 0 {
		cfg.RateHz = 100
	}
	rng, err := RangeFor(cfg.RangeG)
	if err != nil {
		return nil, err
	}
	rate, err := RateFor(cfg.RateHz)
	if err != nil {
		return nil, err
	}

	id, err := readRegister(bus, cfg.Address, RegDevID)
	if err != nil {
		return nil, fmt.Errorf("failed to read device id: %w", err)
	}
	if id != DeviceID {
		return nil, fmt.Errorf("%w: 0x%02x at 0x%02x, want 0x%02x", ErrWrongDevice, id, cfg.Address, DeviceID)
	}

	a := &Acquirer{
		bus: &i2cAdapter{bus: bus},
		cfg: cfg,
		clk: cfg.Clock,
		log: applog.New("sensor"),
	}
	if a.clk == nil {
		a.clk = clock.Real{}
	}

	a.dev = adxl345.New(a.bus)
	a.dev.Address = cfg.Address
	a.dev.Configure()
	a.dev.SetRate(rate)
	a.dev.SetRange(rng)
	if err := a.bus.takeErr(); err != nil {
		return nil, fmt.Errorf("failed to configure sensor: %w", err)
	}

	power, err := readRegister(bus, cfg.Address, RegPowerCtl)
	if err != nil {
		return nil, fmt.Errorf("failed to read power control: %w", err)
	}
	if power&powerMeasure == 0 {
		if err := a.bus.WriteRegister(uint8(cfg.Address), RegPowerCtl, []byte{power | powerMeasure}); err != nil {
			return nil, fmt.Errorf("failed to enable measurement: %w", err)
		}
	}

	a.log.Infof("ADXL345 at 0x%02x: ±%dg, %d Hz, axis %s", cfg.Address, cfg.RangeG, cfg.RateHz, cfg.Axis)
	return a, nil
}

// Read returns one raw 3-axis reading.
func (a *Acquirer) Read() (Sample, error) {
	x, y, z := a.dev.ReadRawAcceleration()
	if err := a.bus.takeErr(); err != nil {
		return Sample{}, err
	}
	a.read++
	return Sample{X: int16(x), Y: int16(y), Z: int16(z)}, nil
}

// Fill reads len(b) samples of the configured axis into the real parts of
// b, pausing SampleDelay after each reading.
func (a *Acquirer) Fill(ctx context.Context, b spectral.Block) error {
	for i := range b {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := a.Read()
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		b[i] = complex(float32(s.Axis(a.cfg.Axis)), 0)
		if a.cfg.SampleDelay > 0 {
			a.clk.Sleep(a.cfg.SampleDelay)
		}
	}
	return nil
}

// Readings returns the number of successful readings so far.
func (a *Acquirer) Readings() int {
	return a.read
}

// Close puts the sensor in standby.
func (a *Acquirer) Close() error {
	a.dev.Halt()
	return a.bus.takeErr()
}

// SawtoothSource fills blocks with the dummy ramp used when no sensor is
// fitted.
type SawtoothSource struct {
	Period int
}

// Fill implements Source.
func (s SawtoothSource) Fill(ctx context.Context, b spectral.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range b {
		b[i] = complex(float32(utils.Sawtooth(i, s.Period)), 0)
	}
	return nil
}
