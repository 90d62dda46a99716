//go:build linux && (amd64 || arm64)

// cmd/controlloop/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tamzrod/isp-controlloop/internal/analyzer"
	"github.com/tamzrod/isp-controlloop/internal/config"
	"github.com/tamzrod/isp-controlloop/internal/controller"
	"github.com/tamzrod/isp-controlloop/internal/isp"
	"github.com/tamzrod/isp-controlloop/internal/status"
	"github.com/tamzrod/isp-controlloop/internal/writer"
)

func main() {
	if len(os.Args) < 2 {
		fatal(slog.Default(), "usage: controlloop <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal(slog.Default(), "config load failed", "err", err)
	}
	if err := config.Validate(cfg); err != nil {
		fatal(slog.Default(), "config validation failed", "err", err)
	}
	config.Normalize(cfg)

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Build the control loop
	// --------------------

	an, err := analyzer.NewManual(cfg.Analyzer)
	if err != nil {
		fatal(logger, "analyzer build failed", "err", err)
	}

	ctl, err := controller.Build(cfg, an, logger)
	if err != nil {
		fatal(logger, "controller build failed", "err", err)
	}
	defer func() {
		if err := ctl.Close(); err != nil {
			logger.Error("controller close failed", "err", err)
		}
	}()

	if err := ctl.Prepare(); err != nil {
		fatal(logger, "controller prepare failed", "err", err)
	}
	if err := ctl.Start(ctx); err != nil {
		fatal(logger, "controller start failed", "err", err)
	}

	// --------------------
	// Status block (optional)
	// --------------------

	var sw writer.StatusWriter
	if plan := writer.BuildStatusPlan(cfg.Status); plan != nil {
		w, closeWriter, err := writer.BuildStatusWriter(plan)
		if err != nil {
			// Status is telemetry only; the loop keeps running without it.
			logger.Error("status writer unavailable", "endpoint", plan.Endpoint, "err", err)
		} else {
			defer closeWriter()
			sw = w
		}
	}

	interval := time.Second
	if cfg.Status != nil {
		interval = time.Duration(cfg.Status.IntervalMs) * time.Millisecond
	}

	runStatus(ctx, logger, ctl, sw, interval)
	logger.Info("shutting down")
}

// runStatus samples controller health on every interval and advances
// seconds-in-error on a 1 Hz ticker. Changed snapshots are delivered to
// sw when status is enabled.
func runStatus(ctx context.Context, logger *slog.Logger, ctl *controller.Controller, sw writer.StatusWriter, interval time.Duration) {
	tracker := status.NewTracker()

	deliver := func() {
		if sw == nil {
			return
		}
		if err := sw.WriteStatus(tracker.Snapshot()); err != nil {
			logger.Warn("status write failed", "err", err)
		}
	}

	// Full block write on start (identity re-assert).
	deliver()

	sample := time.NewTicker(interval)
	defer sample.Stop()
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-sample.C:
			st := ctl.Status()
			if tracker.Observe(st.Snapshot.Health, errorCode(st.Err), st.Snapshot) {
				deliver()
			}

		case <-secTicker.C:
			// Tick 1 Hz while not OK.
			if tracker.Tick() {
				deliver()
			}
		}
	}
}

func newLogger(c config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}

// errorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns isp.CodeGeneric.
func errorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coder interface{ Code() uint16 }

	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return isp.CodeGeneric
}
