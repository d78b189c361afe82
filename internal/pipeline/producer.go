// SPDX-License-Identifier: MIT

// Package pipeline runs the two execution contexts of the system. The
// producer acquires a block, transforms it in software or through the
// accelerator and publishes it; the consumer receives, analyzes, reports
// and acknowledges it. The handshake flag is the only synchronization
// between them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accelfft/internal/clock"
	"accelfft/internal/dma"
	"accelfft/internal/handshake"
	applog "accelfft/internal/log"
	"accelfft/internal/sensor"
	"accelfft/internal/shm"
	"accelfft/internal/spectral"
)

// ErrDrainTimeout is returned by Producer.Run when the last published block
// was not acknowledged within the drain timeout after cancellation.
var ErrDrainTimeout = errors.New("pipeline: in-flight block not acknowledged before shutdown")

// BlockRecorder receives every acquired block before it is transformed.
type BlockRecorder interface {
	Record(b spectral.Block) error
}

// RetryPolicy bounds the attempts of a frame whose transfer failed to start.
type RetryPolicy struct {
	MaxAttempts int           // including the first, at least 1
	Backoff     time.Duration // pause after the first failure, doubled after each
	MaxBackoff  time.Duration
}

func (r RetryPolicy) next(d time.Duration) time.Duration {
	d *= 2
	if r.MaxBackoff > 0 && d > r.MaxBackoff {
		d = r.MaxBackoff
	}
	return d
}

// ProducerConfig describes one producer context.
type ProducerConfig struct {
	Window       spectral.WindowFunc
	CycleDelay   time.Duration     // pause after each published block
	DrainTimeout time.Duration     // bound on the final ack wait after cancellation
	Retry        RetryPolicy       // hardware path only
	Orchestrator *dma.Orchestrator // nil selects the software transform
	Recorder     BlockRecorder     // optional
	Clock        clock.Clock
}

// Producer owns the sample block, the software transformer and the
// producer side of the handshake.
type Producer struct {
	cfg    ProducerConfig
	source sensor.Source
	view   *shm.View
	layout shm.Layout
	hs     *handshake.Producer
	tr     *spectral.Transformer
	clk    clock.Clock
	log    *applog.Logger

	block  spectral.Block
	powers []float32
	coeffs []float64
	frames uint64
}

// NewProducer binds source to the producer's view of the region.
func NewProducer(source sensor.Source, v *shm.View, l shm.Layout, opts handshake.Options, cfg ProducerConfig) (*Producer, error) {
	if source == nil || v == nil {
		return nil, errors.New("pipeline: producer needs a source and a view")
	}
	if err := l.Validate(v.Memory().Size()); err != nil {
		return nil, err
	}
	tr, err := spectral.NewTransformer(l.N)
	if err != nil {
		return nil, err
	}
	block, err := spectral.NewBlock(l.N)
	if err != nil {
		return nil, err
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	p := &Producer{
		cfg:    cfg,
		source: source,
		view:   v,
		layout: l,
		hs:     handshake.NewProducer(v, l, opts),
		tr:     tr,
		clk:    cfg.Clock,
		log:    applog.New("producer"),
		block:  block,
		powers: make([]float32, l.N),
	}
	if cfg.Window != spectral.Rectangular {
		p.coeffs = cfg.Window.Coefficients(l.N)
	}
	return p, nil
}

// Hardware reports whether blocks go through the accelerator.
func (p *Producer) Hardware() bool {
	return p.cfg.Orchestrator != nil
}

// Frames returns the number of blocks published.
func (p *Producer) Frames() uint64 {
	return p.frames
}

// Cycle delivers one block: it waits for the previous block to be
// acknowledged, acquires, writes RX and publishes the transform. Once a
// block is acquired it is delivered even if ctx ends.
func (p *Producer) Cycle(ctx context.Context) error {
	if err := p.hs.WaitAck(ctx); err != nil {
		return err
	}
	if err := p.source.Fill(ctx, p.block); err != nil {
		return fmt.Errorf("acquiring frame %d: %w", p.frames+1, err)
	}
	if p.cfg.Recorder != nil {
		if err := p.cfg.Recorder.Record(p.block); err != nil {
			p.log.Warnf("frame %d not captured: %v", p.frames+1, err)
		}
	}
	spectral.Apply(p.block, p.coeffs)

	p.view.WriteSamples(p.layout.RX, p.block)
	p.view.Flush(p.layout.RX, p.layout.BlockBytes())

	var err error
	if p.Hardware() {
		err = p.accelerate(context.WithoutCancel(ctx))
	} else {
		err = p.transform()
	}
	if err != nil {
		return fmt.Errorf("frame %d: %w", p.frames+1, err)
	}
	p.frames++
	p.log.Debugf("published frame %d", p.frames)
	return nil
}

func (p *Producer) transform() error {
	if err := p.tr.Transform(p.block, p.block); err != nil {
		return err
	}
	spectral.Power(p.powers, p.block)
	return p.hs.Publish(p.powers)
}

// accelerate runs the RX -> core -> TX pass, retrying transfers that failed
// to start, then raises DATA_READY for the TX block the engine wrote.
func (p *Producer) accelerate(ctx context.Context) error {
	backoff := p.cfg.Retry.Backoff
	for attempt := 1; ; attempt++ {
		err := p.cfg.Orchestrator.Run(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, dma.ErrTransferFailure) || attempt >= p.cfg.Retry.MaxAttempts {
			return err
		}
		p.log.Warnf("attempt %d of %d failed: %v; retrying in %s", attempt, p.cfg.Retry.MaxAttempts, err, backoff)
		if backoff > 0 {
			p.clk.Sleep(backoff)
		}
		backoff = p.cfg.Retry.next(backoff)
	}
	return p.hs.Signal()
}

// Run delivers blocks until ctx ends or a cycle fails. Cancellation is
// honoured only between blocks; if a block is still unacknowledged, Run
// waits up to DrainTimeout for its ack.
func (p *Producer) Run(ctx context.Context) error {
	mode := "software"
	if p.Hardware() {
		mode = "hardware"
	}
	p.log.Infof("starting: %s transform, N=%d", mode, p.layout.N)

	for {
		if err := p.Cycle(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				break
			}
			p.log.Errorf("stopping after %d frames: %v", p.frames, err)
			return err
		}
		if !sleepCtx(ctx, p.cfg.CycleDelay) {
			break
		}
	}
	return p.drain(ctx)
}

func (p *Producer) drain(ctx context.Context) error {
	if p.hs.State() == handshake.Acked {
		p.log.Infof("stopped after %d frames", p.frames)
		return nil
	}
	p.log.Infof("waiting up to %s for the ack of frame %d", p.cfg.DrainTimeout, p.frames)
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.DrainTimeout)
	defer cancel()
	if err := p.hs.WaitAck(dctx); err != nil {
		p.log.Warnf("frame %d left unacknowledged: %v", p.frames, err)
		return fmt.Errorf("%w: frame %d", ErrDrainTimeout, p.frames)
	}
	p.log.Infof("stopped after %d frames", p.frames)
	return nil
}

// sleepCtx pauses for d and reports whether ctx is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
