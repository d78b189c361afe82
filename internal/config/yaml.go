// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"accelfft/internal/analysis"
	applog "accelfft/internal/log"
	"accelfft/internal/sensor"
	"accelfft/internal/shm"
	"accelfft/internal/spectral"
	"accelfft/pkg/bitint"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (verbose logging).
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Role      string          `yaml:"role"`      // Which side to run: "both", "producer" or "consumer".
	Pipeline  PipelineConfig  `yaml:"pipeline"`  // Block size, transform path and pacing.
	Sensor    SensorConfig    `yaml:"sensor"`    // Accelerometer bus and settings.
	SHM       SHMConfig       `yaml:"shm"`       // Shared region layout.
	Handshake HandshakeConfig `yaml:"handshake"` // Flag polling.
	DMA       DMAConfig       `yaml:"dma"`       // Accelerator transfers.
	Retry     RetryConfig     `yaml:"retry"`     // Per-cycle transfer failure handling.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Consumer-side spectrum analysis.
	Capture   CaptureConfig   `yaml:"capture"`   // Time-domain block recording.
	Transport TransportConfig `yaml:"transport"` // Report delivery.
}

// PipelineConfig holds settings shared by both execution contexts.
type PipelineConfig struct {
	Mode       string        `yaml:"mode"`        // "software" or "hardware".
	BlockSize  int           `yaml:"block_size"`  // Samples per block, a power of two.
	SampleRate float64       `yaml:"sample_rate"` // Effective sample rate in Hz, used for bin frequencies.
	Window     string        `yaml:"window"`      // Pre-transform window name.
	CycleDelay time.Duration `yaml:"cycle_delay"` // Pause after each acknowledged frame.
}

// SensorConfig holds settings for the ADXL345 accelerometer.
type SensorConfig struct {
	Bus         string        `yaml:"bus"`          // "sim", "sawtooth" or an i2c-dev path such as /dev/i2c-1.
	Address     uint16        `yaml:"address"`      // 7-bit I2C address.
	Axis        string        `yaml:"axis"`         // Tracked axis: x, y or z.
	SampleDelay time.Duration `yaml:"sample_delay"` // Pause after each reading.
	RangeG      int           `yaml:"range"`        // Measurement range in g.
	DataRateHz  int           `yaml:"data_rate"`    // Output data rate in Hz.
	ToneHz      float64       `yaml:"tone_hz"`      // Frequency of the simulated signal.
}

// SHMConfig describes the shared region.
type SHMConfig struct {
	Path       string `yaml:"path"`        // File to mmap; empty keeps the region on the heap (both roles only).
	RXOffset   uint32 `yaml:"rx_offset"`   // Byte offset of the sample block.
	TXOffset   uint32 `yaml:"tx_offset"`   // Byte offset of the result block.
	FlagOffset uint32 `yaml:"flag_offset"` // Byte offset of the handshake word.
	CacheLine  int    `yaml:"cache_line"`  // Simulated data cache line in bytes, 0 for uncached.
}

// HandshakeConfig holds flag polling settings.
type HandshakeConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // Pause between two reads of the flag.
	Timeout      time.Duration `yaml:"timeout"`       // 0 waits forever.
	DrainTimeout time.Duration `yaml:"drain_timeout"` // How long shutdown waits for an in-flight block.
}

// DMAConfig holds accelerator settings for the hardware mode.
type DMAConfig struct {
	AcceleratorID int           `yaml:"accelerator_id"` // Device id passed to the engine lookup.
	PollInterval  time.Duration `yaml:"poll_interval"`  // Pause between two busy checks.
	Timeout       time.Duration `yaml:"timeout"`        // Per-transfer completion timeout.
	Latency       time.Duration `yaml:"latency"`        // Simulated accelerator latency.
}

// RetryConfig bounds the retries of a cycle that failed to start a transfer.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"` // Attempts per frame, including the first.
	Backoff     time.Duration `yaml:"backoff"`      // Initial pause, doubled after each failure.
	MaxBackoff  time.Duration `yaml:"max_backoff"`  // Upper bound of the pause.
}

// AnalysisConfig holds consumer-side analysis settings.
type AnalysisConfig struct {
	SkipDC bool                 `yaml:"skip_dc"` // Ignore bin 0 (gravity offset).
	TopK   int                  `yaml:"top_k"`   // Strongest local peaks to report.
	Bands  []analysis.Band      `yaml:"bands"`   // Band energy meters; empty disables them.
	Shock  analysis.ShockConfig `yaml:"shock"`   // Energy jump detection; zero threshold disables it.
}

// CaptureConfig holds settings for recording acquired blocks to WAV.
type CaptureConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record every acquired block.
	OutputDir string `yaml:"output_dir"` // Directory to save captures in.
	BitDepth  int    `yaml:"bit_depth"`  // 16 or 24.
	MaxFrames int    `yaml:"max_frames"` // Blocks per file before the recorder stops, 0 for unlimited.
}

// TransportConfig holds settings related to sending reports.
type TransportConfig struct {
	LogReports       bool          `yaml:"log_reports"`        // Log one line per frame.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send report datagrams over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between datagrams.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Broadcast reports to WebSocket clients.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address for /ws.
	Monitor          bool          `yaml:"monitor"`            // Show the terminal monitor.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Role:     RoleBoth,
		Pipeline: PipelineConfig{
			Mode:       DefaultMode,
			BlockSize:  DefaultBlockSize,
			SampleRate: DefaultSampleRate,
			Window:     DefaultWindow,
			CycleDelay: DefaultCycleDelay,
		},
		Sensor: SensorConfig{
			Bus:         DefaultSensorBus,
			Address:     DefaultAddress,
			Axis:        DefaultAxis,
			SampleDelay: DefaultSampleDelay,
			RangeG:      DefaultRangeG,
			DataRateHz:  DefaultDataRateHz,
			ToneHz:      10,
		},
		SHM: SHMConfig{
			RXOffset:   DefaultRXOffset,
			TXOffset:   DefaultTXOffset,
			FlagOffset: DefaultFlagOffset,
			CacheLine:  DefaultCacheLine,
		},
		Handshake: HandshakeConfig{
			PollInterval: DefaultPollInterval,
			Timeout:      DefaultHandshakeWait,
			DrainTimeout: DefaultDrainTimeout,
		},
		DMA: DMAConfig{
			AcceleratorID: DefaultAcceleratorID,
			PollInterval:  DefaultDMAPoll,
			Timeout:       DefaultDMATimeout,
			Latency:       DefaultDMALatency,
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultRetryAttempts,
			Backoff:     DefaultRetryBackoff,
			MaxBackoff:  DefaultRetryMaxBackoff,
		},
		Analysis: AnalysisConfig{
			TopK: 3,
		},
		Capture: CaptureConfig{
			OutputDir: DefaultCaptureDir,
			BitDepth:  DefaultCaptureBitDepth,
		},
		Transport: TransportConfig{
			LogReports:       true,
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPInterval,
			WebSocketAddress: DefaultWebSocketAddr,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches the default locations ("accelfft.yaml", then "config.yaml"). If no file
// is found, it uses built-in defaults. After loading defaults or from file, it applies
// environment variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{DefaultConfigFileName, FallbackConfigFileName} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, fmt.Errorf("invalid default configuration: %w", err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Layout returns the shared region layout the configuration describes.
func (c *Config) Layout() shm.Layout {
	return shm.Layout{
		RX:   c.SHM.RXOffset,
		TX:   c.SHM.TXOffset,
		Flag: c.SHM.FlagOffset,
		N:    c.Pipeline.BlockSize,
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, v ...any) {
		errs = append(errs, fmt.Errorf(format, v...))
	}

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		bad("log_level %q is not a known level", c.LogLevel)
	}
	switch c.Role {
	case RoleBoth, RoleProducer, RoleConsumer:
	default:
		bad("role %q must be %q, %q or %q", c.Role, RoleBoth, RoleProducer, RoleConsumer)
	}
	if c.Role != RoleBoth && c.SHM.Path == "" {
		bad("shm.path must be set when only the %s runs", c.Role)
	}

	// Pipeline Validation
	switch c.Pipeline.Mode {
	case ModeSoftware, ModeHardware:
	default:
		bad("pipeline.mode %q must be %q or %q", c.Pipeline.Mode, ModeSoftware, ModeHardware)
	}
	n := c.Pipeline.BlockSize
	switch {
	case n < MinBlockSize || n > MaxBlockSize:
		bad("pipeline.block_size %d must be a power of two in [%d, %d]", n, MinBlockSize, MaxBlockSize)
	case !bitint.IsPowerOfTwo(n):
		bad("pipeline.block_size %d must be a power of two (next is %d)", n, bitint.NextPowerOfTwo(n))
	}
	if c.Pipeline.SampleRate <= 0 {
		bad("pipeline.sample_rate must be positive")
	}
	if _, err := spectral.ParseWindowFunc(c.Pipeline.Window); err != nil {
		bad("pipeline.window: %v", err)
	}
	if c.Pipeline.CycleDelay < 0 {
		bad("pipeline.cycle_delay must not be negative")
	}

	// Sensor Validation
	if c.Sensor.Bus == "" {
		bad("sensor.bus must be set")
	}
	if _, err := sensor.ParseAxis(c.Sensor.Axis); err != nil {
		bad("sensor.axis: %v", err)
	}
	if c.Sensor.Address == 0 || c.Sensor.Address > 0x7f {
		bad("sensor.address 0x%x is not a 7-bit address", c.Sensor.Address)
	}
	if _, err := sensor.RangeFor(c.Sensor.RangeG); err != nil {
		bad("sensor.range: %v", err)
	}
	if _, err := sensor.RateFor(c.Sensor.DataRateHz); err != nil {
		bad("sensor.data_rate: %v", err)
	}
	if c.Sensor.SampleDelay < 0 {
		bad("sensor.sample_delay must not be negative")
	}

	// Shared region Validation
	if n >= MinBlockSize && bitint.IsPowerOfTwo(n) {
		l := c.Layout()
		if err := l.Validate(l.Size()); err != nil {
			bad("shm: %v", err)
		}
	}
	if c.SHM.CacheLine != 0 && (c.SHM.CacheLine < 4 || !bitint.IsPowerOfTwo(c.SHM.CacheLine)) {
		bad("shm.cache_line %d must be 0 or a power of two of at least 4", c.SHM.CacheLine)
	}

	if c.Handshake.PollInterval <= 0 || c.Handshake.Timeout < 0 || c.Handshake.DrainTimeout < 0 {
		bad("handshake intervals must be positive and timeouts must not be negative")
	}
	if c.DMA.PollInterval <= 0 || c.DMA.Timeout < 0 || c.DMA.Latency < 0 {
		bad("dma.poll_interval must be positive and dma timeouts must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		bad("retry.max_attempts must be at least 1")
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < c.Retry.Backoff {
		bad("retry.backoff must be in [0, retry.max_backoff]")
	}

	if c.Analysis.TopK < 0 {
		bad("analysis.top_k must not be negative")
	}
	if c.Capture.Enabled && c.Capture.BitDepth != 16 && c.Capture.BitDepth != 24 {
		bad("capture.bit_depth %d must be 16 or 24", c.Capture.BitDepth)
	}

	// Transport Validation
	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			bad("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			bad("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddress == "" {
		bad("transport.websocket_address must be set when the WebSocket transport is enabled")
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies the ENV_* variables on top of the loaded values.
// Unparsable values are ignored.
func (cfg *Config) applyEnvOverrides() {
	l := applog.New("configuration")

	// ENV_{...}
	// These are general overrides.
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			l.Infof("overriding debug from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		l.Infof("overriding log_level from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_MODE"); ok {
		cfg.Pipeline.Mode = strings.ToLower(val)
		l.Infof("overriding pipeline.mode from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_BLOCK_SIZE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Pipeline.BlockSize = iVal
			l.Infof("overriding pipeline.block_size from env: %d", iVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_SHM_PATH"); ok {
		cfg.SHM.Path = val
		l.Infof("overriding shm.path from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_SENSOR_BUS"); ok {
		cfg.Sensor.Bus = val
		l.Infof("overriding sensor.bus from env: %s", val)
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			l.Infof("overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		l.Infof("overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			l.Infof("overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}
