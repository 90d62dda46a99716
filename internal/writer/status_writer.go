// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/isp-controlloop/internal/status"
)

// slotNames label incremental write failures.
var slotNames = [status.LiveSlots]string{
	status.SlotHealthCode:     "health",
	status.SlotLastErrorCode:  "last_error",
	status.SlotSecondsInError: "seconds",
	status.SlotLifecycle:      "lifecycle",
	status.SlotSequenceHi:     "sequence_hi",
	status.SlotSequenceLo:     "sequence_lo",
	status.SlotLateFrames:     "late",
	status.SlotHardLateFrames: "hard_late",
	status.SlotContentions:    "contentions",
	status.SlotApplyErrors:    "apply_errors",
	status.SlotMeanLatenessUs: "mean_lateness",
	status.SlotStdLatenessUs:  "std_lateness",
}

// deviceStatusWriter is the concrete implementation used by the controller.
type deviceStatusWriter struct {
	plan *StatusPlan
	cli  endpointClient

	needFull bool
	last     []uint16
	nameRegs []uint16
}

// NewDeviceStatusWriter builds a status writer. A nil plan disables status.
func NewDeviceStatusWriter(plan *StatusPlan, cli endpointClient) (*deviceStatusWriter, bool) {
	if plan == nil {
		return nil, false
	}

	return &deviceStatusWriter{
		plan:     plan,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		last:     status.Encode(status.Snapshot{Health: status.HealthUnknown}),
		nameRegs: encodeDeviceNameRegs(plan.DeviceName),
	}, true
}

// WriteStatus delivers a snapshot into the status block.
// On any write failure, the next call re-asserts the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw == nil || sw.plan == nil {
		return errors.New("status writer: disabled")
	}
	if sw.cli == nil {
		return fmt.Errorf("status writer: missing client for endpoint %s", sw.plan.Endpoint)
	}

	regs := status.Encode(s)
	baseAddr := sw.baseAddr()

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, baseAddr, sw.fullBlockRegs(regs)); err != nil {
			sw.needFull = true
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}

		sw.needFull = false
		sw.last = regs
		return nil
	}

	// ------------------------------------------------------------
	// Incremental: only slots whose value changed
	// ------------------------------------------------------------
	var errs []string

	for slot := 0; slot < status.LiveSlots; slot++ {
		if sw.last[slot] == regs[slot] {
			continue
		}
		if err := sw.cli.WriteRegisters(
			sw.plan.UnitID,
			baseAddr+uint16(slot),
			[]uint16{regs[slot]},
		); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", slot, slotNames[slot], err))
			continue
		}
		sw.last[slot] = regs[slot]
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt; re-assert on next call.
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	return nil
}

func (sw *deviceStatusWriter) baseAddr() uint16 {
	// Each controller owns a fixed SlotsPerDevice block.
	return sw.plan.BaseSlot * status.SlotsPerDevice
}

func (sw *deviceStatusWriter) fullBlockRegs(live []uint16) []uint16 {
	regs := make([]uint16, status.SlotsPerDevice)
	copy(regs, live)

	// Device name always lives at the end of the block
	for i := 0; i < status.SlotDeviceNameSlots && i < len(sw.nameRegs); i++ {
		regs[status.SlotDeviceNameStart+i] = sw.nameRegs[i]
	}

	return regs
}

// encodeDeviceNameRegs packs up to 16 ASCII characters into 8 uint16 registers.
// Each register stores two ASCII bytes in big-endian order.
func encodeDeviceNameRegs(name string) []uint16 {
	out := make([]uint16, status.SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > status.DeviceNameMaxChars {
		b = b[:status.DeviceNameMaxChars]
	}

	// sanitize to printable ASCII
	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < status.DeviceNameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}
