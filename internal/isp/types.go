// Package isp holds the records exchanged between the analyzer and the
// control-loop core, and the error kinds shared by every component.
package isp

// HDRFrames is the number of exposures in a multi-exposure capture
// (long, middle, short).
const HDRFrames = 3

// ExposureCommand is one analyzer exposure decision.
// It is a value type: the delay queue stores copies, never references.
type ExposureCommand struct {
	CoarseIntegrationTime uint32
	AnalogGain            uint32
	DigitalGain           uint32
	FrameLineLength       uint32

	// HDR selects the aggregate multi-exposure register write.
	HDR         bool
	HDRTimeRegs [HDRFrames]uint32
	HDRGainRegs [HDRFrames]uint32
	HDRTimes    [HDRFrames]float32
	HDRGains    [HDRFrames]float32
}

// FocusCommand is an absolute lens position.
type FocusCommand struct {
	Position int32
}

// StatsBuffer is one dequeued statistics buffer. Data aliases the
// device mapping and is only valid until the buffer is requeued.
type StatsBuffer struct {
	Index     uint32
	FrameID   uint32
	Timestamp int64 // nanoseconds
	Data      []byte
}
