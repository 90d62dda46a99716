// internal/status/constants.go
package status

// Controller Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per controller.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the controller health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the code of the last control-cycle error.
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the controller has been in error.
const SlotSecondsInError = 2

// SlotLifecycle holds the controller lifecycle state.
const SlotLifecycle = 3

// SlotSequenceHi and SlotSequenceLo hold the last SOF sequence.
const (
	SlotSequenceHi = 4
	SlotSequenceLo = 5
)

// Counters saturate at 65535.
const (
	SlotLateFrames     = 6
	SlotHardLateFrames = 7
	SlotContentions    = 8
	SlotApplyErrors    = 9
)

// Lateness of late statistics frames, microseconds, saturating.
const (
	SlotMeanLatenessUs = 10
	SlotStdLatenessUs  = 11
)

// LiveSlots is the number of slots carrying live values (0..LiveSlots-1).
const LiveSlots = 12

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 12

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a controller keeping up with the sensor.
const HealthOK uint16 = 1

// HealthError represents a controller whose last cycle failed.
const HealthError uint16 = 2

// HealthStale represents a controller that stopped seeing SOF events.
const HealthStale uint16 = 3

// HealthDisabled represents a paused or stopped controller.
const HealthDisabled uint16 = 4
