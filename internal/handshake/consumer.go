// SPDX-License-Identifier: MIT
package handshake

import (
	"context"
	"fmt"

	"accelfft/internal/shm"
)

// Consumer is the side that reads TX and acknowledges it.
type Consumer struct {
	endpoint
}

// NewConsumer returns the consumer side of the channel over v.
func NewConsumer(v *shm.View, l shm.Layout, opts Options) *Consumer {
	return &Consumer{endpoint{
		side:   SideConsumer,
		view:   v,
		layout: l,
		poll:   opts.Poller,
		obs:    opts.Observer,
	}}
}

// Reset clears a flag left over from a previous run, so a stale DATA_READY
// is not taken for a fresh block. It reports whether the flag was changed.
func (c *Consumer) Reset() bool {
	from := c.flag()
	if from == Ack {
		return false
	}
	c.setFlag(from, Ack)
	return true
}

// Ready reports whether a block is waiting, without blocking.
func (c *Consumer) Ready() bool {
	return c.flag() == DataReady
}

// Receive waits for DATA_READY, invalidates the cached TX lines and reads
// the block into dst.
func (c *Consumer) Receive(ctx context.Context, dst []float32) error {
	if len(dst) != c.layout.N {
		return fmt.Errorf("handshake: receiving %d bins from a %d-bin channel", len(dst), c.layout.N)
	}
	if err := c.poll.Wait(ctx, c.Ready); err != nil {
		return fmt.Errorf("waiting for data: %w", err)
	}
	c.view.Invalidate(c.layout.TX, c.layout.BlockBytes())
	c.view.ReadPowers(c.layout.TX, dst)
	return nil
}

// Ack hands TX back to the producer. It is a no-op when the flag is
// already ACK.
func (c *Consumer) Ack() {
	from := c.flag()
	if from != DataReady {
		return
	}
	c.setFlag(from, Ack)
}
