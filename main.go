// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"accelfft/cmd"
	applog "accelfft/internal/log"
	"accelfft/internal/pipeline"
	"accelfft/internal/transport"
	"accelfft/internal/tui"
	"accelfft/pkg/build"
)

// main is the entry point for the spectrum pipeline.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Build the shared region and the configured role
//
// 2. Concurrent Phase (Hot Path):
//   - Run the producer and/or consumer loops
//   - Stream reports to the configured transports and the monitor
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Let the producer drain its last block
//   - Clean up resources
func main() {
	if err := run(); err != nil {
		applog.Fatalf("%v", err)
	}
}

func run() error {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds carry no ldflags; the defaults are fine.
	if err := build.Initialize(); err != nil {
		applog.Debugf("build information incomplete: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}
	switch opts.Command {
	case "version":
		fmt.Println(build.GetBuildFlags())
		return nil
	case "exit":
		return nil
	}
	cfg := opts.Config

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var extra []transport.Transport
	var monitor *tui.Monitor
	if opts.TUI {
		// Log lines would tear the alternate screen.
		applog.SetOutput(io.Discard)
		monitor = tui.StartMonitor()
		extra = append(extra, monitor)

		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-monitor.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	engine, err := pipeline.NewEngine(cfg, extra...)
	if err != nil {
		if monitor != nil {
			monitor.Close()
		}
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	applog.Infof("%s %s running (%s mode, role %s)",
		build.GetBuildFlags().Name, build.GetBuildFlags().Version, cfg.Pipeline.Mode, cfg.Role)
	runErr := engine.Run(ctx)

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if err := engine.Close(); err != nil {
		applog.Errorf("Error closing engine: %v", err)
	}
	if monitor != nil {
		if err := monitor.Close(); err != nil {
			applog.Errorf("Error closing monitor: %v", err)
		}
		applog.SetOutput(os.Stderr)
		fmt.Printf("%d frames received\n", monitor.Model().Frames())
	}
	return runErr
}
