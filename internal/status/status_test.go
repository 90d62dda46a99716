package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode_LiveSlots(t *testing.T) {
	regs := Encode(Snapshot{
		Health:         HealthError,
		LastErrorCode:  4,
		SecondsInError: 9,
		Lifecycle:      3,
		Sequence:       0x0001_0002,
		LateFrames:     70000,
		HardLateFrames: 2,
		Contentions:    1,
		ApplyErrors:    5,
		MeanLatenessUs: 4200,
		StdLatenessUs:  300,
	})

	assert.Len(t, regs, LiveSlots)
	assert.Equal(t, HealthError, regs[SlotHealthCode])
	assert.Equal(t, uint16(4), regs[SlotLastErrorCode])
	assert.Equal(t, uint16(9), regs[SlotSecondsInError])
	assert.Equal(t, uint16(3), regs[SlotLifecycle])
	assert.Equal(t, uint16(1), regs[SlotSequenceHi])
	assert.Equal(t, uint16(2), regs[SlotSequenceLo])
	assert.Equal(t, uint16(0xFFFF), regs[SlotLateFrames], "counters saturate")
	assert.Equal(t, uint16(2), regs[SlotHardLateFrames])
	assert.Equal(t, uint16(4200), regs[SlotMeanLatenessUs])
}

func TestLayout_NameAtEndOfBlock(t *testing.T) {
	assert.Equal(t, LiveSlots, SlotDeviceNameStart)
	assert.Equal(t, SlotsPerDevice-1, SlotDeviceNameEnd)
	assert.Equal(t, DeviceNameMaxChars, 2*SlotDeviceNameSlots)
}

func TestTracker_ErrorThenRecovery(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, HealthUnknown, tr.Snapshot().Health)

	assert.True(t, tr.Observe(HealthError, 2, Snapshot{Sequence: 10}))
	assert.True(t, tr.Tick())
	assert.True(t, tr.Tick())
	assert.Equal(t, uint16(2), tr.Snapshot().SecondsInError)
	assert.Equal(t, uint16(2), tr.Snapshot().LastErrorCode)

	// same reading: nothing to re-deliver
	assert.False(t, tr.Observe(HealthError, 2, Snapshot{Sequence: 10}))

	assert.True(t, tr.Observe(HealthOK, 0, Snapshot{Sequence: 11}))
	s := tr.Snapshot()
	assert.Zero(t, s.SecondsInError)
	assert.Zero(t, s.LastErrorCode)
	assert.False(t, tr.Tick(), "no ticking while healthy")
}

func TestTracker_SecondsNeverWrap(t *testing.T) {
	tr := NewTracker()
	tr.Observe(HealthStale, 0, Snapshot{})
	tr.snap.SecondsInError = 0xFFFE
	assert.True(t, tr.Tick())
	assert.False(t, tr.Tick())
	assert.Equal(t, uint16(0xFFFF), tr.Snapshot().SecondsInError)
}

func TestTracker_DisabledDoesNotTick(t *testing.T) {
	tr := NewTracker()
	tr.Observe(HealthDisabled, 0, Snapshot{})
	assert.False(t, tr.Tick())
}
