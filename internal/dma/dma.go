// SPDX-License-Identifier: MIT
/*
Package dma drives the hardware path of the producer: a DMA engine streams
the RX block into a transform core and streams the power spectrum back into
TX, while the producer only starts the two transfers and polls for their
completion.

The engine reads and writes the shared region directly and bypasses the
producer's data cache. The producer therefore flushes RX before Run, and
Run invalidates TX before starting so no stale line shadows the result.
*/
package dma

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accelfft/internal/clock"
	applog "accelfft/internal/log"
	"accelfft/internal/shm"
)

var (
	// ErrTransferInit is returned when no engine can be found or
	// initialized. It is fatal for the producer.
	ErrTransferInit = errors.New("dma: engine initialization failed")

	// ErrTransferFailure is returned when a transfer cannot be started.
	// It is scoped to one cycle.
	ErrTransferFailure = errors.New("dma: transfer failed")

	// ErrTransferTimeout is returned when a started transfer does not
	// complete within the configured timeout.
	ErrTransferTimeout = errors.New("dma: transfer timed out")
)

// Direction selects one of the two DMA channels.
type Direction int

const (
	// ToDevice streams memory to the core (MM2S).
	ToDevice Direction = iota
	// FromDevice streams the core's output to memory (S2MM).
	FromDevice
)

func (d Direction) String() string {
	switch d {
	case ToDevice:
		return "MM2S"
	case FromDevice:
		return "S2MM"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Engine is a two-channel DMA engine. Transfer starts a transfer of length
// bytes at addr, an offset into the shared region, and returns at once.
// Busy reports whether the channel still has a transfer in flight.
type Engine interface {
	Transfer(dir Direction, addr, length uint32) error
	Busy(dir Direction) bool
}

// Default polling parameters.
const (
	DefaultPollInterval = 10 * time.Microsecond
	DefaultTimeout      = time.Second
)

// Config controls completion polling. A zero Timeout polls forever.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Clock        clock.Clock
}

// Orchestrator runs one RX -> core -> TX pass per call to Run.
type Orchestrator struct {
	engine Engine
	view   *shm.View
	layout shm.Layout
	cfg    Config
	log    *applog.Logger
}

// NewOrchestrator binds engine to the producer's view of the region.
func NewOrchestrator(engine Engine, v *shm.View, l shm.Layout, cfg Config) (*Orchestrator, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: no engine", ErrTransferInit)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: no view of the shared region", ErrTransferInit)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Orchestrator{
		engine: engine,
		view:   v,
		layout: l,
		cfg:    cfg,
		log:    applog.New("dma"),
	}, nil
}

// Run moves the RX block through the core into TX and returns once both
// channels are idle. It never touches the handshake flag, so a failed Run
// leaves no block published.
func (o *Orchestrator) Run(ctx context.Context) error {
	length := o.layout.BlockBytes()
	o.view.Invalidate(o.layout.TX, length)

	if err := o.engine.Transfer(ToDevice, o.layout.RX, length); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransferFailure, ToDevice, err)
	}
	if err := o.engine.Transfer(FromDevice, o.layout.TX, length); err != nil {
		// Let the started channel drain so the next attempt finds it idle.
		if werr := o.wait(ctx, ToDevice); werr != nil {
			o.log.Warnf("%s did not drain after failed %s start: %v", ToDevice, FromDevice, werr)
		}
		return fmt.Errorf("%w: %s: %v", ErrTransferFailure, FromDevice, err)
	}
	o.log.Debugf("started %s and %s, %d bytes each", ToDevice, FromDevice, length)

	return o.wait(ctx, ToDevice, FromDevice)
}

// wait polls every direction in dirs until none is busy.
func (o *Orchestrator) wait(ctx context.Context, dirs ...Direction) error {
	start := o.cfg.Clock.Now()
	pending := len(dirs)
	done := make([]bool, len(dirs))
	for {
		for i, d := range dirs {
			if !done[i] && !o.engine.Busy(d) {
				done[i] = true
				pending--
			}
		}
		if pending == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.cfg.Timeout > 0 && o.cfg.Clock.Now().Sub(start) >= o.cfg.Timeout {
			for i, d := range dirs {
				if !done[i] {
					return fmt.Errorf("%w: %s still busy after %v", ErrTransferTimeout, d, o.cfg.Timeout)
				}
			}
		}
		o.cfg.Clock.Sleep(o.cfg.PollInterval)
	}
}
