// Package analyzer is the boundary between the control-loop core and the
// 3A algorithms. An Analyzer turns one statistics record into exposure,
// focus and ISP parameter decisions.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tamzrod/isp-controlloop/internal/config"
	"github.com/tamzrod/isp-controlloop/internal/exposure"
	"github.com/tamzrod/isp-controlloop/internal/isp"
	"github.com/tamzrod/isp-controlloop/internal/params"
	"github.com/tamzrod/isp-controlloop/internal/stats"
)

// Input is what the control loop hands the analyzer for one frame.
type Input struct {
	Stats *stats.Record
	Mode  exposure.ModeData
}

// Result carries the analyzer decisions. A nil field means "no change".
type Result struct {
	Exposure *isp.ExposureCommand
	Focus    *isp.FocusCommand
	Params   *params.Set
}

type Analyzer interface {
	Analyze(ctx context.Context, in Input) (Result, error)
}

// Manual holds a fixed exposure, an optional focus position and a set of
// enabled ISP modules. Focus and module enables are sent once.
type Manual struct {
	exposure isp.ExposureCommand
	focus    *isp.FocusCommand
	enables  uint32

	mu         sync.Mutex
	focusSent  bool
	paramsSent bool
}

// NewManual builds a Manual analyzer from configuration.
func NewManual(c config.AnalyzerConfig) (*Manual, error) {
	if c.Mode != "" && c.Mode != "manual" {
		return nil, fmt.Errorf("analyzer: unsupported mode %q", c.Mode)
	}

	m := &Manual{
		exposure: isp.ExposureCommand{
			CoarseIntegrationTime: c.CoarseIntegrationTime,
			AnalogGain:            c.AnalogGain,
			DigitalGain:           c.DigitalGain,
			FrameLineLength:       c.FrameLineLength,
		},
	}
	if c.FocusPosition != nil {
		m.focus = &isp.FocusCommand{Position: *c.FocusPosition}
	}

	var errs []error
	for _, name := range c.EnableModules {
		id, ok := params.ModuleByName(name)
		if !ok {
			errs = append(errs, fmt.Errorf("analyzer: unknown module %q", name))
			continue
		}
		m.enables |= id.Mask()
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// Analyze returns the configured exposure clamped to the sensor's
// integration range.
func (m *Manual) Analyze(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var res Result

	cmd := clampExposure(m.exposure, in.Mode.Descriptor)
	res.Exposure = &cmd

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.focus != nil && !m.focusSent {
		f := *m.focus
		res.Focus = &f
		m.focusSent = true
	}
	if m.enables != 0 && !m.paramsSent {
		res.Params = &params.Set{
			ModuleEns:      m.enables,
			ModuleEnUpdate: m.enables,
		}
		m.paramsSent = true
	}
	return res, nil
}

// clampExposure keeps the coarse integration time within
// [CoarseMin, frame length - CoarseMaxMargin]. A zero descriptor leaves
// the command untouched.
func clampExposure(cmd isp.ExposureCommand, d exposure.Descriptor) isp.ExposureCommand {
	if cmd.CoarseIntegrationTime == 0 || d.LinesPerFrame == 0 {
		return cmd
	}

	frame := int64(d.LinesPerFrame)
	if int64(cmd.FrameLineLength) > frame {
		frame = int64(cmd.FrameLineLength)
	}
	lo := int64(d.CoarseMin)
	hi := frame - int64(d.CoarseMaxMargin)
	if hi < lo {
		hi = lo
	}

	v := int64(cmd.CoarseIntegrationTime)
	switch {
	case v < lo:
		v = lo
	case v > hi:
		v = hi
	}
	cmd.CoarseIntegrationTime = uint32(v)
	return cmd
}
