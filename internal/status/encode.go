// internal/status/encode.go
package status

// Encode converts a Snapshot into the live slots of the status block
// (0..LiveSlots-1). Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, LiveSlots)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError
	regs[SlotLifecycle] = s.Lifecycle
	regs[SlotSequenceHi] = uint16(s.Sequence >> 16)
	regs[SlotSequenceLo] = uint16(s.Sequence)
	regs[SlotLateFrames] = sat16(s.LateFrames)
	regs[SlotHardLateFrames] = sat16(s.HardLateFrames)
	regs[SlotContentions] = sat16(s.Contentions)
	regs[SlotApplyErrors] = sat16(s.ApplyErrors)
	regs[SlotMeanLatenessUs] = sat16(s.MeanLatenessUs)
	regs[SlotStdLatenessUs] = sat16(s.StdLatenessUs)

	return regs
}

func sat16(v uint64) uint16 {
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
