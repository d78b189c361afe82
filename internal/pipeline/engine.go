// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"accelfft/internal/analysis"
	"accelfft/internal/capture"
	"accelfft/internal/config"
	"accelfft/internal/dma"
	"accelfft/internal/handshake"
	applog "accelfft/internal/log"
	"accelfft/internal/sensor"
	"accelfft/internal/shm"
	"accelfft/internal/spectral"
	"accelfft/internal/transport"
	"accelfft/internal/transport/udp"
	"accelfft/pkg/utils"
)

// acceleratorID is the device id the simulated core is registered under.
const acceleratorID = config.DefaultAcceleratorID

// simAmplitude is the peak of the simulated tone in raw counts, about 0.8 g
// at ±2 g.
const simAmplitude = 200

// Engine wires every component of the configured role.
type Engine struct {
	cfg      *config.Config
	layout   shm.Layout
	mem      *shm.Memory
	producer *Producer
	consumer *Consumer
	closers  []io.Closer // closed in reverse order
	log      *applog.Logger
}

// NewEngine builds the shared region and the components of cfg.Role.
// extra transports, such as a terminal monitor, receive every report next
// to the configured ones.
func NewEngine(cfg *config.Config, extra ...transport.Transport) (e *Engine, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e = &Engine{cfg: cfg, layout: cfg.Layout(), log: applog.New("engine")}
	defer func() {
		if err != nil {
			e.Close()
			e = nil
		}
	}()

	if cfg.SHM.Path == "" {
		e.mem, err = shm.NewMemory(e.layout.Size())
	} else {
		e.mem, err = shm.OpenShared(cfg.SHM.Path, e.layout.Size())
	}
	if err != nil {
		return e, err
	}
	e.closers = append(e.closers, e.mem)

	opts := handshake.Options{
		Poller: handshake.Poller{
			Interval: cfg.Handshake.PollInterval,
			Timeout:  cfg.Handshake.Timeout,
		},
	}
	if cfg.Debug {
		opts.Observer = traceFlags(applog.New("handshake"))
	}

	if cfg.Role != config.RoleConsumer {
		if err := e.buildProducer(opts); err != nil {
			return e, err
		}
	}
	if cfg.Role != config.RoleProducer {
		if err := e.buildConsumer(opts, extra); err != nil {
			return e, err
		}
	}
	where := "heap"
	if p := e.mem.Path(); p != "" {
		where = p
	}
	e.log.Infof("%s role ready: N=%d, %d byte region on %s", cfg.Role, e.layout.N, e.mem.Size(), where)
	return e, nil
}

func traceFlags(l *applog.Logger) handshake.Observer {
	return handshake.ObserverFunc(func(side handshake.Side, from, to uint32) {
		l.Debugf("%s: 0x%08x -> 0x%08x", side, from, to)
	})
}

func (e *Engine) buildProducer(opts handshake.Options) error {
	cfg := e.cfg
	view, err := shm.NewView(e.mem, cfg.SHM.CacheLine)
	if err != nil {
		return err
	}
	source, err := e.openSource()
	if err != nil {
		return err
	}
	window, err := spectral.ParseWindowFunc(cfg.Pipeline.Window)
	if err != nil {
		return err
	}

	pc := ProducerConfig{
		Window:       window,
		CycleDelay:   cfg.Pipeline.CycleDelay,
		DrainTimeout: cfg.Handshake.DrainTimeout,
		Retry: RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     cfg.Retry.Backoff,
			MaxBackoff:  cfg.Retry.MaxBackoff,
		},
	}

	if cfg.Pipeline.Mode == config.ModeHardware {
		acc, err := dma.NewAccelerator(e.mem, e.layout.N, cfg.DMA.Latency)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, acc)
		registry := dma.NewRegistry()
		registry.Register(acceleratorID, acc)
		engine, err := registry.LookupAccelerator(cfg.DMA.AcceleratorID)
		if err != nil {
			return err
		}
		pc.Orchestrator, err = dma.NewOrchestrator(engine, view, e.layout, dma.Config{
			PollInterval: cfg.DMA.PollInterval,
			Timeout:      cfg.DMA.Timeout,
		})
		if err != nil {
			return err
		}
	}

	if cfg.Capture.Enabled {
		rec, err := capture.NewRecorder(capture.Config{
			SampleRate: int(cfg.Pipeline.SampleRate),
			BitDepth:   cfg.Capture.BitDepth,
			BlockSize:  e.layout.N,
			MaxFrames:  cfg.Capture.MaxFrames,
		})
		if err != nil {
			return err
		}
		if err := rec.Start(capture.Filename(cfg.Capture.OutputDir, time.Now())); err != nil {
			return err
		}
		e.closers = append(e.closers, rec)
		pc.Recorder = rec
	}

	e.producer, err = NewProducer(source, view, e.layout, opts, pc)
	return err
}

// openSource returns the sample source named by sensor.bus.
func (e *Engine) openSource() (sensor.Source, error) {
	sc := e.cfg.Sensor
	axis, err := sensor.ParseAxis(sc.Axis)
	if err != nil {
		return nil, err
	}

	var bus sensor.Bus
	switch sc.Bus {
	case "sawtooth":
		return sensor.SawtoothSource{Period: e.layout.N}, nil
	case "sim":
		tone := utils.Tone{Frequency: sc.ToneHz, Amplitude: simAmplitude}
		bus = sensor.NewSimBus(sc.Address, sensor.ToneWaveform(axis, e.cfg.Pipeline.SampleRate, 0, tone))
	default:
		dev, err := sensor.OpenI2C(sc.Bus)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, dev)
		bus = dev
	}

	acq, err := sensor.NewAcquirer(bus, sensor.Config{
		Address:     sc.Address,
		Axis:        axis,
		SampleDelay: sc.SampleDelay,
		RangeG:      sc.RangeG,
		RateHz:      sc.DataRateHz,
	})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, acq)
	return acq, nil
}

func (e *Engine) buildConsumer(opts handshake.Options, extra []transport.Transport) error {
	cfg := e.cfg
	view, err := shm.NewView(e.mem, cfg.SHM.CacheLine)
	if err != nil {
		return err
	}
	analyzer, err := analysis.NewAnalyzer(analysis.Config{
		BlockSize:  e.layout.N,
		SampleRate: cfg.Pipeline.SampleRate,
		SkipDC:     cfg.Analysis.SkipDC,
		TopK:       cfg.Analysis.TopK,
		Bands:      cfg.Analysis.Bands,
		Shock:      cfg.Analysis.Shock,
	})
	if err != nil {
		return err
	}

	var out transport.Multi
	if cfg.Transport.LogReports {
		out = append(out, transport.NewLoggingTransport())
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		pub, err := udp.NewReportPublisher(cfg.Transport.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			return err
		}
		pub.Start()
		e.closers = append(e.closers, pub)
		out = append(out, pub)
	}
	if cfg.Transport.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, ws)
		out = append(out, ws)
	}
	// The caller owns the extra transports.
	out = append(out, extra...)

	e.consumer, err = NewConsumer(view, e.layout, opts, analyzer, out)
	return err
}

// Producer returns the producer, or nil for the consumer role.
func (e *Engine) Producer() *Producer { return e.producer }

// Consumer returns the consumer, or nil for the producer role.
func (e *Engine) Consumer() *Consumer { return e.consumer }

// Memory returns the shared region.
func (e *Engine) Memory() *shm.Memory { return e.mem }

// Run runs the configured role until ctx ends or a side fails. With both
// roles the consumer keeps running until the producer has drained.
func (e *Engine) Run(ctx context.Context) error {
	switch {
	case e.producer != nil && e.consumer != nil:
		g, gctx := errgroup.WithContext(ctx)
		cctx, stopConsumer := context.WithCancel(context.WithoutCancel(gctx))
		defer stopConsumer()
		// A consumer failure cancels gctx, which lets the producer drain.
		g.Go(func() error {
			defer stopConsumer()
			return e.producer.Run(gctx)
		})
		g.Go(func() error {
			return e.consumer.Run(cctx)
		})
		return g.Wait()
	case e.producer != nil:
		return e.producer.Run(ctx)
	case e.consumer != nil:
		return e.consumer.Run(ctx)
	}
	return errors.New("pipeline: engine has no role")
}

// Close releases every component, newest first.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing engine: %w", err)
	}
	return nil
}
