// SPDX-License-Identifier: MIT
package dma

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"accelfft/internal/shm"
)

var errBusy = errors.New("channel busy")

// Accelerator simulates an AXI DMA in front of a streaming FFT core with a
// power stage. MM2S unpacks the RX words into the core's input stream; S2MM
// waits for that stream, transforms it and writes one float32 power word
// per bin. It accesses the Memory directly, as a bus master would.
type Accelerator struct {
	mem     *shm.Memory
	n       int
	latency time.Duration
	fft     *fourier.CmplxFFT

	busy [2]atomic.Bool
	fail [2]atomic.Bool

	in     []complex128 // core input stream, written by MM2S
	out    []complex128
	loaded chan struct{}
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewAccelerator returns a simulated core for n-point blocks over mem.
// latency, if positive, is added to every transfer.
func NewAccelerator(mem *shm.Memory, n int, latency time.Duration) (*Accelerator, error) {
	if mem == nil {
		return nil, fmt.Errorf("%w: no shared region", ErrTransferInit)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: block size %d", ErrTransferInit, n)
	}
	return &Accelerator{
		mem:     mem,
		n:       n,
		latency: latency,
		fft:     fourier.NewCmplxFFT(n),
		in:      make([]complex128, n),
		out:     make([]complex128, n),
		loaded:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}, nil
}

// FailNext makes the next Transfer on dir fail to start.
func (a *Accelerator) FailNext(dir Direction) {
	a.fail[dir].Store(true)
}

// Busy implements Engine.
func (a *Accelerator) Busy(dir Direction) bool {
	return a.busy[dir].Load()
}

// Transfer implements Engine.
func (a *Accelerator) Transfer(dir Direction, addr, length uint32) error {
	if dir != ToDevice && dir != FromDevice {
		return fmt.Errorf("unknown direction %d", int(dir))
	}
	if a.fail[dir].Swap(false) {
		return fmt.Errorf("%s: injected start failure", dir)
	}
	if want := uint32(a.n) * shm.WordSize; length != want {
		return fmt.Errorf("%s: length %d, core expects %d", dir, length, want)
	}
	if int(addr)+int(length) > a.mem.Size() {
		return fmt.Errorf("%s: [0x%04x, +%d) outside the shared region", dir, addr, length)
	}
	// An S2MM left waiting by a timed-out cycle would consume the next
	// block loaded into the core, so MM2S waits until it is gone.
	if dir == ToDevice && a.busy[FromDevice].Load() {
		return fmt.Errorf("%s: %w while %s is pending", dir, errBusy, FromDevice)
	}
	if !a.busy[dir].CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", dir, errBusy)
	}

	if dir == ToDevice {
		// A block loaded by an earlier MM2S whose S2MM never ran is dropped.
		select {
		case <-a.loaded:
		default:
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.busy[dir].Store(false)
		if a.latency > 0 {
			time.Sleep(a.latency)
		}
		if dir == ToDevice {
			a.streamIn(addr)
		} else {
			a.streamOut(addr)
		}
	}()
	return nil
}

func (a *Accelerator) streamIn(addr uint32) {
	for i := range a.in {
		re, im := shm.UnpackSample(a.mem.Load32(addr + uint32(i)*shm.WordSize))
		a.in[i] = complex(float64(re), float64(im))
	}
	select {
	case a.loaded <- struct{}{}:
	default:
	}
}

func (a *Accelerator) streamOut(addr uint32) {
	select {
	case <-a.loaded:
	case <-a.closed:
		return
	}
	a.fft.Coefficients(a.out, a.in)
	for i, c := range a.out {
		p := real(c)*real(c) + imag(c)*imag(c)
		a.mem.Store32(addr+uint32(i)*shm.WordSize, math.Float32bits(float32(p)))
	}
}

// Close stops an S2MM transfer still waiting for input and waits for every
// transfer goroutine to finish.
func (a *Accelerator) Close() error {
	a.once.Do(func() { close(a.closed) })
	a.wg.Wait()
	return nil
}

// Registry maps device IDs to engines, like the vendor driver's
// configuration table.
type Registry struct {
	mu      sync.Mutex
	engines map[int]Engine
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[int]Engine)}
}

// Register binds id to engine, replacing any previous binding.
func (r *Registry) Register(id int, engine Engine) {
	r.mu.Lock()
	r.engines[id] = engine
	r.mu.Unlock()
}

// LookupAccelerator returns the engine registered under id.
func (r *Registry) LookupAccelerator(id int) (Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[id]
	if !ok || e == nil {
		return nil, fmt.Errorf("%w: no config found for device %d", ErrTransferInit, id)
	}
	return e, nil
}
