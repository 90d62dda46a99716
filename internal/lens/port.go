// Package lens moves the focus lens. The actuator is either a V4L2 voice
// coil motor sub-device or a focus-motor controller on a serial line.
package lens

import (
	"log/slog"

	"github.com/tamzrod/isp-controlloop/internal/isp"
	"github.com/tamzrod/isp-controlloop/internal/v4l2"
)

// Actuator positions the lens.
type Actuator interface {
	SetPosition(pos int32) error
}

// Port applies focus commands. A Port without an actuator is valid and
// every apply is a no-op.
type Port struct {
	act Actuator
	log *slog.Logger
}

func New(act Actuator, logger *slog.Logger) *Port {
	if logger == nil {
		logger = slog.Default()
	}
	return &Port{act: act, log: logger.With("component", "lens")}
}

// Present reports whether a lens actuator is attached.
func (p *Port) Present() bool { return p != nil && p.act != nil }

// ApplyFocus moves the lens to cmd.Position.
func (p *Port) ApplyFocus(cmd isp.FocusCommand) error {
	if !p.Present() {
		return nil
	}
	if err := p.act.SetPosition(cmd.Position); err != nil {
		return &isp.IoctlError{Op: "focus", Control: "FOCUS_ABSOLUTE", Err: err}
	}
	p.log.Debug("focus applied", "position", cmd.Position)
	return nil
}

// ControlSetter is a node accepting single control writes.
type ControlSetter interface {
	SetControl(id uint32, value int32) error
}

// VCM drives a voice coil motor sub-device through FOCUS_ABSOLUTE.
type VCM struct {
	Node ControlSetter
}

func (v VCM) SetPosition(pos int32) error {
	return v.Node.SetControl(v4l2.CIDFocusAbsolute, pos)
}
