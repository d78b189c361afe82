// SPDX-License-Identifier: MIT
package handshake

import (
	"context"
	"time"

	"accelfft/internal/clock"
)

// DefaultPollInterval is the pause between two reads of the flag.
const DefaultPollInterval = time.Millisecond

// Poller is a bounded spin-wait. A zero Timeout waits until the condition
// holds or the context ends; with an absent counterpart that is forever.
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    clock.Clock
}

// Wait polls cond until it reports true. The condition is checked before
// the context, so a condition that already holds always wins.
func (p Poller) Wait(ctx context.Context, cond func() bool) error {
	clk := p.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	start := clk.Now()
	for {
		if cond() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.Timeout > 0 && clk.Now().Sub(start) >= p.Timeout {
			return ErrHandshakeTimeout
		}
		clk.Sleep(interval)
	}
}
