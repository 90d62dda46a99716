// Package framesync tracks start-of-frame events and releases delayed
// exposure commands to the sensor in step with them.
//
// A single mutex guards the frame state, the delay queue, the delayed
// statistics marker and the exit flag. Hardware applies happen inside the
// critical section so that a push and an SOF apply are totally ordered.
package framesync

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tamzrod/isp-controlloop/internal/isp"
)

// State is the frame state published by the most recent SOF.
type State struct {
	Sequence uint32
	SOFTime  int64 // monotonic nanoseconds
}

// Applier programs one exposure command into the sensor.
type Applier interface {
	Apply(cmd isp.ExposureCommand) error
}

// Config configures a Sync.
type Config struct {
	ExposureDelay int // frames between exposure apply and its effect
	GainDelay     int // frames between gain apply and its effect
	Logger        *slog.Logger
}

// Counters are the cumulative event counts exposed for telemetry.
type Counters struct {
	SOFs         uint64
	Regressions  uint64
	Applied      uint64
	ApplyErrors  uint64
	Contentions  uint64
	LastApplyErr error
}

// Sync is the sequence clock and the exposure delay queue.
type Sync struct {
	mu sync.Mutex

	state State
	seen  bool

	// advance is closed and replaced on every SOF.
	advance chan struct{}

	queue   *DelayQueue
	gainAge int

	hasMarker bool
	marker    uint32

	exiting atomic.Bool
	done    chan struct{} // closed while exiting

	port     Applier
	counters Counters
	log      *slog.Logger
}

// New builds a Sync with an empty queue of depth
// max(ExposureDelay, GainDelay). port may be nil until SetApplier.
func New(cfg Config, port Applier) (*Sync, error) {
	if cfg.ExposureDelay < 1 || cfg.GainDelay < 1 {
		return nil, fmt.Errorf("framesync: delays must be >= 1 (exposure=%d gain=%d)", cfg.ExposureDelay, cfg.GainDelay)
	}
	q, err := NewDelayQueue(max(cfg.ExposureDelay, cfg.GainDelay))
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sync{
		advance: make(chan struct{}),
		queue:   q,
		gainAge: cfg.GainDelay,
		done:    make(chan struct{}),
		port:    port,
		log:     logger.With("component", "framesync"),
	}, nil
}

// SetApplier installs the exposure applier.
func (s *Sync) SetApplier(port Applier) {
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
}

// OnSOF records a start-of-frame, wakes every WaitForAdvance caller and
// applies the command that has aged gain-delay frames. It never fails:
// apply errors are logged and counted.
func (s *Sync) OnSOF(ts int64, frameID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen && frameID < s.state.Sequence {
		s.counters.Regressions++
		s.log.Warn("sof sequence went backwards, ignored",
			"sequence", s.state.Sequence, "frame_id", frameID)
		return
	}
	s.state = State{Sequence: frameID, SOFTime: ts}
	s.seen = true
	s.counters.SOFs++

	close(s.advance)
	s.advance = make(chan struct{})

	s.applyDelayed()
}

// applyDelayed must be called with mu held.
func (s *Sync) applyDelayed() {
	cmd, ok := s.queue.SlotAt(s.gainAge)
	if !ok || s.port == nil {
		return
	}
	s.log.Debug("apply delayed exposure",
		"sequence", s.state.Sequence,
		"coarse", cmd.CoarseIntegrationTime,
		"analog_gain", cmd.AnalogGain,
		"hdr", cmd.HDR)
	if err := s.port.Apply(cmd); err != nil {
		if isp.IsBypassed(err) {
			return
		}
		s.counters.ApplyErrors++
		s.counters.LastApplyErr = err
		s.log.Error("delayed exposure apply failed", "sequence", s.state.Sequence, "err", err)
		return
	}
	s.counters.Applied++
}

// Current returns the latest frame state without blocking on an SOF.
func (s *Sync) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WaitForAdvance blocks until the next SOF, exit, or timeout, and reports
// whether an SOF arrived.
func (s *Sync) WaitForAdvance(timeout time.Duration) bool {
	s.mu.Lock()
	if s.exiting.Load() {
		s.mu.Unlock()
		return false
	}
	advance, done := s.advance, s.done
	s.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-advance:
		return true
	case <-done:
		return false
	case <-t.C:
		return false
	}
}

// Push enqueues cmd for delayed application. When a delayed-stats marker
// is set it is cleared and a non-HDR command is also applied at once;
// that apply's error is returned.
func (s *Sync) Push(cmd isp.ExposureCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue.Push(cmd)
	if !s.hasMarker {
		return nil
	}
	s.hasMarker = false
	if cmd.HDR || s.port == nil {
		return nil
	}
	s.log.Debug("late stats catch-up apply", "marker", s.marker, "sequence", s.state.Sequence)
	return s.port.Apply(cmd)
}

// Oldest returns the command at the oldest slot, the exposure currently
// in effect on the sensor.
func (s *Sync) Oldest() (isp.ExposureCommand, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.SlotAt(s.queue.Depth())
}

// Entries returns a copy of the queued commands, oldest first.
func (s *Sync) Entries() []isp.ExposureCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Entries()
}

// Depth is the delay queue depth.
func (s *Sync) Depth() int { return s.queue.Depth() }

// MarkLate records that a statistics frame arrived behind the current
// SOF. The marker holds the current sequence. A marker already pending
// yields a *isp.ContentionWarning; the marker is still replaced.
func (s *Sync) MarkLate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.hasMarker {
		s.counters.Contentions++
		err = &isp.ContentionWarning{Pending: s.marker, Sequence: s.state.Sequence}
	}
	s.hasMarker = true
	s.marker = s.state.Sequence
	return err
}

// Marker returns the pending delayed-stats marker, if any.
func (s *Sync) Marker() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marker, s.hasMarker
}

// SetExit publishes the exit flag. Setting it wakes every waiter;
// clearing it re-arms the done channel for the next run.
func (s *Sync) SetExit(exit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case exit && !s.exiting.Load():
		s.exiting.Store(true)
		close(s.done)
	case !exit && s.exiting.Load():
		s.exiting.Store(false)
		s.done = make(chan struct{})
	}
}

// Exiting reports the exit flag. It does not take the mutex and is safe
// to call from an Applier running inside the critical section.
func (s *Sync) Exiting() bool { return s.exiting.Load() }

// Done is closed while the exit flag is set.
func (s *Sync) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Counters returns a copy of the event counters.
func (s *Sync) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}
