// SPDX-License-Identifier: MIT
//
// Package clock abstracts the time source behind every spin-wait in the
// pipeline: sensor pacing, DMA completion polling and the handshake flag
// polls. Production code uses Real; tests use Fake to make timeouts
// deterministic.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by polling loops.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time        { return time.Now() }
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a manually advanced clock. Sleep advances the fake time by d and
// returns immediately, so a spin-wait with a timeout ends after a fixed
// number of polls regardless of scheduling. It is safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
	onTick func(now time.Time)
}

// NewFake returns a Fake starting at the Unix epoch.
func NewFake() *Fake {
	return &Fake{now: time.Unix(0, 0)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.sleeps++
	hook, now := f.onTick, f.now
	f.mu.Unlock()
	if hook != nil {
		hook(now)
	}
}

// Advance moves the fake time forward without counting a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Sleeps returns how many times Sleep has been called.
func (f *Fake) Sleeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sleeps
}

// OnSleep installs a hook run after every Sleep, outside the lock. Tests use
// it to let the counterpart act between two polls.
func (f *Fake) OnSleep(hook func(now time.Time)) {
	f.mu.Lock()
	f.onTick = hook
	f.mu.Unlock()
}
