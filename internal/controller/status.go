// internal/controller/status.go
package controller

import (
	"time"

	"github.com/tamzrod/isp-controlloop/internal/status"
)

// Status is the controller's live telemetry. Err is the last cycle
// failure, nil after a successful cycle.
type Status struct {
	Snapshot status.Snapshot
	Err      error
}

// Status reads health and counters. It never blocks on the loop.
func (c *Controller) Status() Status {
	state := c.State()
	counters := c.clock.Counters()
	timing := c.resync.Timing().Summary()
	err := c.lastCycleErr()

	snap := status.Snapshot{
		Lifecycle:      uint16(state),
		Sequence:       c.clock.Current().Sequence,
		LateFrames:     timing.Late,
		HardLateFrames: timing.HardLate,
		Contentions:    counters.Contentions,
		ApplyErrors:    counters.ApplyErrors,
		MeanLatenessUs: micros(timing.MeanLateness),
		StdLatenessUs:  micros(timing.StdLateness),
	}

	switch {
	case state == Paused:
		snap.Health = status.HealthDisabled
	case state != Started:
		snap.Health = status.HealthUnknown
	case c.stale():
		snap.Health = status.HealthStale
	case err != nil:
		snap.Health = status.HealthError
	default:
		snap.Health = status.HealthOK
	}

	return Status{Snapshot: snap, Err: err}
}

func (c *Controller) stale() bool {
	if c.opts.StaleAfter <= 0 {
		return false
	}
	last := time.Unix(0, c.lastSOF.Load())
	return c.now().Sub(last) > c.opts.StaleAfter
}

func micros(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d.Microseconds())
}
