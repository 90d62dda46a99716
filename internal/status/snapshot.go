// internal/status/snapshot.go
package status

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
	Lifecycle      uint16

	Sequence uint32

	LateFrames     uint64
	HardLateFrames uint64
	Contentions    uint64
	ApplyErrors    uint64

	MeanLatenessUs uint64
	StdLatenessUs  uint64
}
