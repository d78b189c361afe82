// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the spectral pipeline.
const (
	// Pipeline defaults
	DefaultMode       = ModeSoftware
	DefaultBlockSize  = 128                    // Fits the 0x1000 byte RX/TX windows of the default layout
	DefaultSampleRate = 100                    // Hz, matches the sensor data rate
	DefaultWindow     = "rectangular"          // No pre-transform window
	DefaultCycleDelay = 100 * time.Millisecond // Pause after each acknowledged frame

	// Sensor defaults
	DefaultSensorBus   = "sim" // Simulated ADXL345; a path such as /dev/i2c-1 selects hardware
	DefaultAddress     = 0x53  // ADXL345 with ALT ADDRESS low
	DefaultAxis        = "x"
	DefaultSampleDelay = 10 * time.Millisecond // 1 / DefaultSampleRate
	DefaultRangeG      = 2
	DefaultDataRateHz  = 100

	// Shared region defaults, see shm.DefaultLayout
	DefaultRXOffset   = 0x0000
	DefaultTXOffset   = 0x1000
	DefaultFlagOffset = 0x2000
	DefaultCacheLine  = 32 // Bytes; 0 models uncached memory

	// Handshake defaults
	DefaultPollInterval  = time.Millisecond
	DefaultHandshakeWait = 0 // Wait for the counterpart forever
	DefaultDrainTimeout  = 2 * time.Second

	// DMA defaults
	DefaultAcceleratorID   = 0
	DefaultDMAPoll         = 10 * time.Microsecond
	DefaultDMATimeout      = time.Second
	DefaultDMALatency      = 0
	DefaultRetryAttempts   = 3
	DefaultRetryBackoff    = 10 * time.Millisecond
	DefaultRetryMaxBackoff = time.Second

	// Capture defaults
	DefaultCaptureDir      = "./captures"
	DefaultCaptureBitDepth = 16

	// Transport defaults
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultUDPInterval     = 100 * time.Millisecond
	DefaultWebSocketAddr   = "127.0.0.1:8080"
	DefaultLogLevel        = "info"
	DefaultConfigFileName  = "accelfft.yaml"
	FallbackConfigFileName = "config.yaml"

	// Limits
	MinBlockSize = 2
	MaxBlockSize = 1 << 16
)

// Pipeline modes.
const (
	ModeSoftware = "software" // Transform on the producer goroutine
	ModeHardware = "hardware" // Transform on the DMA-fed accelerator
)

// Roles an engine can run.
const (
	RoleBoth     = "both"
	RoleProducer = "producer"
	RoleConsumer = "consumer"
)
