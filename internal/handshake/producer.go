// SPDX-License-Identifier: MIT
package handshake

import (
	"context"
	"fmt"

	"accelfft/internal/shm"
)

// Producer is the side that writes TX and raises DATA_READY.
type Producer struct {
	endpoint
}

// NewProducer returns the producer side of the channel over v.
func NewProducer(v *shm.View, l shm.Layout, opts Options) *Producer {
	return &Producer{endpoint{
		side:   SideProducer,
		view:   v,
		layout: l,
		poll:   opts.Poller,
		obs:    opts.Observer,
	}}
}

// WaitAck blocks until the consumer has acknowledged the previous block.
func (p *Producer) WaitAck(ctx context.Context) error {
	if err := p.poll.Wait(ctx, func() bool { return p.flag() != DataReady }); err != nil {
		return fmt.Errorf("waiting for ack: %w", err)
	}
	return nil
}

// Publish writes powers to TX, flushes TX to the shared region and then
// raises DATA_READY. It fails with ErrNotOwner, touching nothing, while a
// previous block is still unacknowledged.
func (p *Producer) Publish(powers []float32) error {
	if len(powers) != p.layout.N {
		return fmt.Errorf("handshake: publishing %d bins into a %d-bin channel", len(powers), p.layout.N)
	}
	from := p.flag()
	if from == DataReady {
		return fmt.Errorf("publish: %w", ErrNotOwner)
	}
	p.view.WritePowers(p.layout.TX, powers)
	p.view.Flush(p.layout.TX, p.layout.BlockBytes())
	p.setFlag(from, DataReady)
	return nil
}

// Signal raises DATA_READY for a TX block already written to the shared
// region by a DMA engine.
func (p *Producer) Signal() error {
	from := p.flag()
	if from == DataReady {
		return fmt.Errorf("signal: %w", ErrNotOwner)
	}
	p.setFlag(from, DataReady)
	return nil
}
