// internal/stats/runner.go
package stats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tamzrod/isp-controlloop/internal/isp"
)

// Handler consumes one aligned record. rec is reused by the next fetch.
type Handler func(ctx context.Context, rec *Record) error

// Runner is the statistics loop. One goroutine. No overlap: the handler
// runs to completion before the next fetch.
type Runner struct {
	resync *Resync
	idle   time.Duration
	log    *slog.Logger

	// OnError receives every fetch or handler failure. Bypassed fetches
	// are not reported.
	OnError func(error)
}

// NewRunner returns a runner that backs off for idle after a bypassed or
// failed fetch.
func NewRunner(r *Resync, idle time.Duration, logger *slog.Logger) (*Runner, error) {
	if r == nil {
		return nil, errors.New("stats: resync required")
	}
	if idle <= 0 {
		return nil, errors.New("stats: idle interval must be > 0")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{resync: r, idle: idle, log: logger.With("component", "stats-runner")}, nil
}

// Run fetches and dispatches records until ctx is done.
func (r *Runner) Run(ctx context.Context, handle Handler) {
	var rec Record
	for {
		if ctx.Err() != nil {
			return
		}

		err := r.resync.Fetch(ctx, &rec)
		switch {
		case err == nil:
			if herr := handle(ctx, &rec); herr != nil && !isp.IsBypassed(herr) {
				r.report(herr)
			}
			continue
		case isp.IsBypassed(err):
			// paused or exiting: stay quiet until resumed
		case ctx.Err() != nil:
			return
		default:
			r.report(err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.idle):
		}
	}
}

func (r *Runner) report(err error) {
	r.log.Error("stats cycle failed", "err", err)
	if r.OnError != nil {
		r.OnError(err)
	}
}
