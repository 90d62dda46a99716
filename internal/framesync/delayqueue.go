package framesync

import (
	"fmt"

	"github.com/tamzrod/isp-controlloop/internal/isp"
)

// DelayQueue is a fixed-depth ring of exposure commands.
// Age 1 is the newest push and age Depth() the oldest; every push
// overwrites the oldest slot. The queue is not safe for concurrent use;
// Sync guards it.
type DelayQueue struct {
	slots  []isp.ExposureCommand
	filled []bool
	head   int // next write position, which is also the oldest slot
}

// NewDelayQueue returns an empty queue of the given depth.
func NewDelayQueue(depth int) (*DelayQueue, error) {
	if depth < 1 {
		return nil, fmt.Errorf("framesync: delay queue depth must be >= 1 (got %d)", depth)
	}
	return &DelayQueue{
		slots:  make([]isp.ExposureCommand, depth),
		filled: make([]bool, depth),
	}, nil
}

// Depth is the constant number of slots.
func (q *DelayQueue) Depth() int { return len(q.slots) }

// Push stores a copy of cmd as the newest entry.
func (q *DelayQueue) Push(cmd isp.ExposureCommand) {
	q.slots[q.head] = cmd
	q.filled[q.head] = true
	q.head = (q.head + 1) % len(q.slots)
}

// SlotAt returns the command pushed age-1 pushes ago. ok is false for an
// out-of-range age or a slot that was never written.
func (q *DelayQueue) SlotAt(age int) (cmd isp.ExposureCommand, ok bool) {
	n := len(q.slots)
	if age < 1 || age > n {
		return isp.ExposureCommand{}, false
	}
	i := (q.head - age + n) % n
	return q.slots[i], q.filled[i]
}

// Entries returns the written slots, oldest first.
func (q *DelayQueue) Entries() []isp.ExposureCommand {
	out := make([]isp.ExposureCommand, 0, len(q.slots))
	for age := len(q.slots); age >= 1; age-- {
		if cmd, ok := q.SlotAt(age); ok {
			out = append(out, cmd)
		}
	}
	return out
}
