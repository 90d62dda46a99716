// internal/status/tracker.go
package status

// Tracker owns the health transitions of one controller.
// Observe folds in the latest cycle outcome; Tick advances the
// seconds-in-error counter at 1 Hz. Both report whether the snapshot
// changed and must be re-delivered.
type Tracker struct {
	snap Snapshot
}

// NewTracker starts in HealthUnknown.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Health: HealthUnknown}}
}

// Snapshot returns the current snapshot.
func (t *Tracker) Snapshot() Snapshot { return t.snap }

// Observe applies a new health reading and counters. code is the last
// error code (0 when healthy).
func (t *Tracker) Observe(health, code uint16, live Snapshot) bool {
	prev := t.snap

	t.snap.Health = health
	if health == HealthOK {
		// Reset last error code and seconds-in-error on recovery.
		t.snap.LastErrorCode = 0
		t.snap.SecondsInError = 0
	} else if code != 0 {
		t.snap.LastErrorCode = code
	}

	t.snap.Lifecycle = live.Lifecycle
	t.snap.Sequence = live.Sequence
	t.snap.LateFrames = live.LateFrames
	t.snap.HardLateFrames = live.HardLateFrames
	t.snap.Contentions = live.Contentions
	t.snap.ApplyErrors = live.ApplyErrors
	t.snap.MeanLatenessUs = live.MeanLatenessUs
	t.snap.StdLatenessUs = live.StdLatenessUs

	return t.snap != prev
}

// Tick increments seconds-in-error while not OK. The counter never wraps.
func (t *Tracker) Tick() bool {
	if t.snap.Health == HealthOK || t.snap.Health == HealthDisabled {
		return false
	}
	if t.snap.SecondsInError == 0xFFFF {
		return false
	}
	t.snap.SecondsInError++
	return true
}
