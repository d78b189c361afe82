// SPDX-License-Identifier: MIT

// Package capture records the time-domain blocks the producer acquires as
// mono WAV files, one sample per sensor reading, so a run can be replayed
// or inspected in an audio editor.
package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "accelfft/internal/log"
	"accelfft/internal/spectral"
)

// Config describes the files a Recorder writes.
type Config struct {
	SampleRate int // Hz written to the WAV header
	BitDepth   int // 16 or 24
	BlockSize  int // samples per recorded block
	MaxFrames  int // blocks per file, 0 for unlimited
}

// Recorder writes acquired blocks to a WAV file. It is safe to call Stop
// from another goroutine than Record.
type Recorder struct {
	cfg Config
	log *applog.Logger

	mu         sync.Mutex
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // reusable buffer for format conversion
	frames     int
	filename   string
}

// NewRecorder validates cfg and returns a stopped Recorder.
func NewRecorder(cfg Config) (*Recorder, error) {
	if cfg.BitDepth != 16 && cfg.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth %d", cfg.BitDepth)
	}
	if cfg.SampleRate <= 0 || cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("sample rate and block size must be positive, got %d and %d", cfg.SampleRate, cfg.BlockSize)
	}
	return &Recorder{cfg: cfg, log: applog.New("capture")}, nil
}

// Filename returns a timestamped file name in dir.
func Filename(dir string, t time.Time) string {
	return filepath.Join(dir, "capture-"+t.Format("20060102-150405")+".wav")
}

// Start opens filename and begins recording.
func (r *Recorder) Start(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder != nil {
		return fmt.Errorf("already recording")
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create capture directory: %w", err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.outputFile = file
	r.wavEncoder = wav.NewEncoder(file, r.cfg.SampleRate, r.cfg.BitDepth, 1, 1)
	if r.sampleBuf == nil {
		r.sampleBuf = &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: 1,
				SampleRate:  r.cfg.SampleRate,
			},
			Data:           make([]int, r.cfg.BlockSize),
			SourceBitDepth: r.cfg.BitDepth,
		}
	}
	r.frames = 0
	r.filename = filename
	r.log.Infof("recording %d-bit blocks to %s", r.cfg.BitDepth, filename)
	return nil
}

// Recording reports whether a file is open.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wavEncoder != nil
}

// Frames returns the number of blocks written to the current file.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Record appends the real part of b, the tracked axis, to the file. It is
// a no-op while stopped. Once MaxFrames blocks are written the file is
// closed.
func (r *Recorder) Record(b spectral.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return nil
	}

	shift := r.cfg.BitDepth - 16
	data := r.sampleBuf.Data[:0]
	for _, s := range b {
		data = append(data, int(real(s))<<shift)
	}
	r.sampleBuf.Data = data
	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("failed to write capture: %w", err)
	}
	r.frames++

	if r.cfg.MaxFrames > 0 && r.frames >= r.cfg.MaxFrames {
		r.log.Infof("captured %d blocks, closing %s", r.frames, r.filename)
		return r.stopLocked()
	}
	return nil
}

// Stop finalizes the WAV header and closes the file.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

func (r *Recorder) stopLocked() error {
	if r.wavEncoder == nil {
		return nil
	}
	// The encoder does not own the file; both are released even when the
	// header cannot be written.
	encErr := r.wavEncoder.Close()
	r.wavEncoder = nil
	var fileErr error
	if r.outputFile != nil {
		fileErr = r.outputFile.Close()
		r.outputFile = nil
	}
	if err := errors.Join(encErr, fileErr); err != nil {
		return fmt.Errorf("failed to finalize capture %s: %w", r.filename, err)
	}
	return nil
}

// Close stops any recording in progress.
func (r *Recorder) Close() error {
	return r.Stop()
}
