// SPDX-License-Identifier: MIT
/*
Package handshake implements the single-word flag protocol that hands one
frequency-domain block at a time from the producer to the consumer.

The flag has two values. Each transition has exactly one permitted writer:

	producer: ACK -> DATA_READY   after the TX block is flushed
	consumer: DATA_READY -> ACK   after the TX block is read

The producer never writes TX while the flag is DATA_READY, and the consumer
never reads TX before it observes DATA_READY and invalidates its cache.
*/
package handshake

import (
	"errors"
	"fmt"
	"sync"

	"accelfft/internal/shm"
)

// Flag values.
const (
	DataReady uint32 = 0xCAFEBABE
	Ack       uint32 = 0
)

var (
	// ErrHandshakeTimeout is returned when the counterpart does not move the
	// flag within the poll timeout.
	ErrHandshakeTimeout = errors.New("handshake: timed out waiting for flag")

	// ErrNotOwner is returned when a side tries a transition it does not own.
	ErrNotOwner = errors.New("handshake: flag not owned by this side")
)

// State is the protocol state implied by the flag value.
type State int

const (
	Acked State = iota
	Published
)

func (s State) String() string {
	switch s {
	case Acked:
		return "ACKED"
	case Published:
		return "PUBLISHED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateOf maps a flag word to a State. Any value other than DATA_READY is
// treated as ACK.
func StateOf(flag uint32) State {
	if flag == DataReady {
		return Published
	}
	return Acked
}

// Side identifies the writer of a flag transition.
type Side int

const (
	SideProducer Side = iota
	SideConsumer
)

func (s Side) String() string {
	switch s {
	case SideProducer:
		return "producer"
	case SideConsumer:
		return "consumer"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Observer is told about every write of the flag word, just before it
// lands in the shared region.
type Observer interface {
	FlagWritten(side Side, from, to uint32)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(side Side, from, to uint32)

func (f ObserverFunc) FlagWritten(side Side, from, to uint32) { f(side, from, to) }

// Transition is one recorded flag write.
type Transition struct {
	Side     Side
	From, To uint32
}

// Recorder is an Observer that keeps every transition. It is safe for
// concurrent use by both sides.
type Recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *Recorder) FlagWritten(side Side, from, to uint32) {
	r.mu.Lock()
	r.transitions = append(r.transitions, Transition{Side: side, From: from, To: to})
	r.mu.Unlock()
}

// Transitions returns a copy of the recorded transitions.
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.transitions...)
}

// Options configures one side of the channel.
type Options struct {
	Poller   Poller
	Observer Observer
}

// endpoint holds what both sides share: a view of the region, the layout
// and the flag access.
type endpoint struct {
	side   Side
	view   *shm.View
	layout shm.Layout
	poll   Poller
	obs    Observer
}

func (e *endpoint) flag() uint32 {
	return e.view.ReadVolatile(e.layout.Flag)
}

// setFlag notifies the observer before the store lands, so the recorded
// order matches the order in which the counterpart can see the writes.
func (e *endpoint) setFlag(from, to uint32) {
	if e.obs != nil {
		e.obs.FlagWritten(e.side, from, to)
	}
	e.view.WriteVolatile(e.layout.Flag, to)
}

// State returns the current protocol state.
func (e *endpoint) State() State {
	return StateOf(e.flag())
}
