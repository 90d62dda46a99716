package stats

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultTimingWindow is the number of late frames kept for the
// lateness mean and deviation.
const DefaultTimingWindow = 256

// Timing accumulates statistics-alignment counters and a rolling window
// of late-frame lateness.
type Timing struct {
	mu sync.Mutex

	window []float64 // microseconds
	next   int
	full   bool

	frames      uint64
	waits       uint64
	lateFrames  uint64
	hardLates   uint64
	contentions uint64
}

func NewTiming(size int) *Timing {
	if size < 1 {
		size = DefaultTimingWindow
	}
	return &Timing{window: make([]float64, size)}
}

// TimingSummary is a point-in-time copy of the counters.
type TimingSummary struct {
	Frames      uint64
	Waits       uint64
	Late        uint64
	HardLate    uint64
	Contentions uint64

	MeanLateness time.Duration
	StdLateness  time.Duration
}

func (t *Timing) accepted() {
	t.mu.Lock()
	t.frames++
	t.mu.Unlock()
}

func (t *Timing) waited() {
	t.mu.Lock()
	t.waits++
	t.mu.Unlock()
}

func (t *Timing) hardLate() {
	t.mu.Lock()
	t.hardLates++
	t.mu.Unlock()
}

func (t *Timing) contention() {
	t.mu.Lock()
	t.contentions++
	t.mu.Unlock()
}

func (t *Timing) late(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lateFrames++
	t.window[t.next] = float64(d) / float64(time.Microsecond)
	t.next++
	if t.next == len(t.window) {
		t.next = 0
		t.full = true
	}
}

// Summary returns the counters and the lateness mean and standard
// deviation over the window.
func (t *Timing) Summary() TimingSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := TimingSummary{
		Frames:      t.frames,
		Waits:       t.waits,
		Late:        t.lateFrames,
		HardLate:    t.hardLates,
		Contentions: t.contentions,
	}
	samples := t.window[:t.next]
	if t.full {
		samples = t.window
	}
	switch len(samples) {
	case 0:
	case 1:
		s.MeanLateness = time.Duration(samples[0] * float64(time.Microsecond))
	default:
		mean, std := stat.MeanStdDev(samples, nil)
		s.MeanLateness = time.Duration(mean * float64(time.Microsecond))
		s.StdLateness = time.Duration(std * float64(time.Microsecond))
	}
	return s
}
