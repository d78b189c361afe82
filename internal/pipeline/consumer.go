// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"accelfft/internal/analysis"
	"accelfft/internal/handshake"
	applog "accelfft/internal/log"
	"accelfft/internal/shm"
	"accelfft/internal/transport"
)

// Consumer owns the consumer side of the handshake and turns every
// delivered block into a report.
type Consumer struct {
	hs        *handshake.Consumer
	analyzer  *analysis.Analyzer
	transport transport.Transport
	log       *applog.Logger

	powers []float32
	frame  uint64
}

// NewConsumer binds the consumer's view of the region to an analyzer and
// the transport reports are sent to. t may be nil.
func NewConsumer(v *shm.View, l shm.Layout, opts handshake.Options, a *analysis.Analyzer, t transport.Transport) (*Consumer, error) {
	if v == nil || a == nil {
		return nil, errors.New("pipeline: consumer needs a view and an analyzer")
	}
	if err := l.Validate(v.Memory().Size()); err != nil {
		return nil, err
	}
	return &Consumer{
		hs:        handshake.NewConsumer(v, l, opts),
		analyzer:  a,
		transport: t,
		log:       applog.New("consumer"),
		powers:    make([]float32, l.N),
	}, nil
}

// Frames returns the number of blocks consumed.
func (c *Consumer) Frames() uint64 {
	return c.frame
}

// Reset clears a flag left raised by an earlier run.
func (c *Consumer) Reset() {
	if c.hs.Reset() {
		c.log.Warnf("cleared a stale DATA_READY flag")
	}
}

// Step consumes one block: it waits for DATA_READY, reads TX, analyzes,
// reports and acknowledges. ctx is only observed while waiting; a block
// that has been seen is always acknowledged. Transport errors are logged.
func (c *Consumer) Step(ctx context.Context) (analysis.Report, error) {
	if err := c.hs.Receive(ctx, c.powers); err != nil {
		return analysis.Report{}, err
	}
	c.frame++
	report := c.analyzer.Analyze(c.frame, c.powers)
	if c.transport != nil {
		if err := c.transport.Send(report); err != nil {
			c.log.Warnf("frame %d: report not delivered: %v", c.frame, err)
		}
	}
	c.hs.Ack()
	c.log.Debugf("acknowledged frame %d", c.frame)
	return report, nil
}

// Run clears a stale flag and consumes blocks until ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	c.Reset()
	c.log.Infof("waiting for data")
	for {
		if _, err := c.Step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				c.log.Infof("stopped after %d frames", c.frame)
				return nil
			}
			return fmt.Errorf("after %d frames: %w", c.frame, err)
		}
	}
}
