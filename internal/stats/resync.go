package stats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tamzrod/isp-controlloop/internal/framesync"
	"github.com/tamzrod/isp-controlloop/internal/isp"
)

// Source delivers statistics buffers. Dequeue blocks until a buffer is
// ready and returns an error wrapping isp.ErrBypassed once done closes.
type Source interface {
	Dequeue(done <-chan struct{}) (isp.StatsBuffer, error)
	Queue(buf isp.StatsBuffer) error
}

// Clock is the SOF sequence clock.
type Clock interface {
	Current() framesync.State
	WaitForAdvance(timeout time.Duration) bool
	MarkLate() error
	Exiting() bool
	Done() <-chan struct{}
}

// Config configures a Resync.
type Config struct {
	// Wait bounds one wait for the SOF clock to catch up with a buffer
	// that is ahead of it.
	Wait time.Duration
	// LateBound is the lateness under which a behind buffer still
	// triggers a catch-up exposure apply.
	LateBound time.Duration
	Layout    Layout
	Timing    *Timing
	Logger    *slog.Logger
}

// Resync fetches statistics and aligns them with the SOF sequence.
type Resync struct {
	cfg    Config
	src    Source
	clock  Clock
	timing *Timing
	log    *slog.Logger
}

func NewResync(cfg Config, src Source, clock Clock) (*Resync, error) {
	if src == nil || clock == nil {
		return nil, errors.New("stats: source and clock are required")
	}
	if cfg.Wait <= 0 {
		return nil, errors.New("stats: wait must be > 0")
	}
	if cfg.LateBound <= 0 {
		return nil, errors.New("stats: late bound must be > 0")
	}
	if cfg.Layout.MeasSize <= 0 {
		return nil, errors.New("stats: measurement size must be > 0")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := cfg.Timing
	if t == nil {
		t = NewTiming(DefaultTimingWindow)
	}
	return &Resync{cfg: cfg, src: src, clock: clock, timing: t, log: logger.With("component", "stats")}, nil
}

// Timing returns the lateness statistics this Resync feeds.
func (r *Resync) Timing() *Timing { return r.timing }

// Fetch dequeues the next statistics buffer into rec and returns once it
// is aligned with the SOF sequence. The buffer is requeued before any
// waiting. Errors: isp.ErrBypassed while exiting, *isp.BufferError on a
// dequeue, decode or requeue failure, ctx.Err() on cancellation.
func (r *Resync) Fetch(ctx context.Context, rec *Record) error {
	if r.clock.Exiting() {
		return isp.ErrBypassed
	}
	buf, err := r.src.Dequeue(r.clock.Done())
	if err != nil {
		if isp.IsBypassed(err) {
			return isp.ErrBypassed
		}
		return &isp.BufferError{Op: "dequeue", Err: err}
	}
	derr := r.cfg.Layout.decode(buf, rec)
	if err := r.src.Queue(buf); err != nil {
		return &isp.BufferError{Op: "requeue", Err: err}
	}
	if derr != nil {
		return derr
	}
	return r.align(ctx, rec)
}

func (r *Resync) align(ctx context.Context, rec *Record) error {
	for {
		if r.clock.Exiting() {
			return isp.ErrBypassed
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		cur := r.clock.Current()
		switch {
		case rec.FrameID == cur.Sequence:
			rec.Sequence = cur.Sequence
			r.timing.accepted()
			return nil

		case rec.FrameID > cur.Sequence:
			r.log.Debug("stats ahead of sof, waiting",
				"frame_id", rec.FrameID, "sequence", cur.Sequence)
			r.timing.waited()
			r.clock.WaitForAdvance(r.cfg.Wait)

		default:
			r.behind(rec, cur)
			rec.Sequence = cur.Sequence
			rec.Late = true
			r.timing.accepted()
			return nil
		}
	}
}

func (r *Resync) behind(rec *Record, cur framesync.State) {
	lateness := time.Duration(rec.CaptureTime - cur.SOFTime)
	if lateness >= r.cfg.LateBound {
		r.timing.hardLate()
		r.log.Error("stats frame too late to recover",
			"frame_id", rec.FrameID, "sequence", cur.Sequence, "lateness", lateness)
		return
	}

	r.timing.late(lateness)
	if err := r.clock.MarkLate(); err != nil {
		var cw *isp.ContentionWarning
		if errors.As(err, &cw) {
			r.timing.contention()
		}
		r.log.Warn("delayed stats marker contention",
			"frame_id", rec.FrameID, "sequence", cur.Sequence, "err", err)
		return
	}
	r.log.Debug("stats behind sof, marked for catch-up",
		"frame_id", rec.FrameID, "sequence", cur.Sequence, "lateness", lateness)
}
