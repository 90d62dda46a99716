// Package exposure programs exposure commands into the sensor and
// describes the sensor's timing to the analyzer.
package exposure

import (
	"errors"
	"log/slog"

	"github.com/tamzrod/isp-controlloop/internal/isp"
	"github.com/tamzrod/isp-controlloop/internal/v4l2"
)

// Sensor is the control surface of a sensor sub-device.
type Sensor interface {
	SetControl(id uint32, value int32) error
	QueryControl(id uint32) (v4l2.ControlRange, error)
	Format() (v4l2.Format, error)
	FrameInterval() (num, den uint32, err error)
	PixelRate() (int64, error)
	SetHDRExposure(e v4l2.HDRExposure) error
}

// Combined is a node that takes exposure and gain as one control batch.
type Combined interface {
	SetControls(class uint32, ctrls []v4l2.Control) error
}

// ExitSignal reports whether the controller is exiting.
type ExitSignal interface {
	Exiting() bool
}

// Config selects the topology. Sensor is required for the descriptor;
// a non-nil Combined routes Apply through the batched write.
type Config struct {
	Sensor   Sensor
	Combined Combined
	Exit     ExitSignal
	Logger   *slog.Logger
}

// Port applies exposure commands.
type Port struct {
	sensor   Sensor
	combined Combined
	exit     ExitSignal
	log      *slog.Logger
}

// New validates cfg and returns a Port.
func New(cfg Config) (*Port, error) {
	if cfg.Sensor == nil {
		return nil, errors.New("exposure: sensor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Port{
		sensor:   cfg.Sensor,
		combined: cfg.Combined,
		exit:     cfg.Exit,
		log:      logger.With("component", "exposure"),
	}, nil
}

// gainPercentUnity is the GAIN_PERCENT value written with every combined
// batch.
const gainPercentUnity = 100

// Apply programs cmd. It returns isp.ErrBypassed while exiting and an
// *isp.IoctlError for the first failed control write.
func (p *Port) Apply(cmd isp.ExposureCommand) error {
	if p.exit != nil && p.exit.Exiting() {
		return isp.ErrBypassed
	}
	if p.combined != nil {
		return p.applyCombined(cmd)
	}
	if cmd.HDR {
		return p.applyHDR(cmd)
	}
	return p.applySplit(cmd)
}

func (p *Port) applyCombined(cmd isp.ExposureCommand) error {
	ctrls := []v4l2.Control{
		{ID: v4l2.CIDExposure, Value: int32(cmd.CoarseIntegrationTime)},
		{ID: v4l2.CIDGain, Value: int32(cmd.AnalogGain)},
		{ID: v4l2.CIDGainPercent, Value: gainPercentUnity},
	}
	if err := p.combined.SetControls(v4l2.CtrlClassUser, ctrls); err != nil {
		return &isp.IoctlError{Op: "S_EXT_CTRLS", Control: "EXPOSURE+GAIN", Err: err}
	}
	return nil
}

func (p *Port) applyHDR(cmd isp.ExposureCommand) error {
	e := v4l2.HDRExposure{
		TimeRegs: cmd.HDRTimeRegs,
		GainRegs: cmd.HDRGainRegs,
		Times:    cmd.HDRTimes,
		Gains:    cmd.HDRGains,
	}
	if err := p.sensor.SetHDRExposure(e); err != nil {
		return &isp.IoctlError{Op: "HDRAE", Err: err}
	}
	return nil
}

// applySplit writes gains, then VBLANK, then the integration time.
// VBLANK must land before EXPOSURE: the sensor clamps integration time
// to the current frame length.
func (p *Port) applySplit(cmd isp.ExposureCommand) error {
	if cmd.AnalogGain != 0 {
		if err := p.set(v4l2.CIDAnalogueGain, int32(cmd.AnalogGain)); err != nil {
			return err
		}
	}
	if cmd.DigitalGain != 0 {
		if err := p.set(v4l2.CIDGain, int32(cmd.DigitalGain)); err != nil {
			return err
		}
	}

	t, err := p.timing()
	if err != nil {
		return err
	}
	fll := max(t.lines, cmd.FrameLineLength)
	if err := p.set(v4l2.CIDVBlank, int32(fll-t.height)); err != nil {
		return err
	}

	if cmd.CoarseIntegrationTime != 0 {
		if err := p.set(v4l2.CIDExposure, int32(cmd.CoarseIntegrationTime)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Port) set(id uint32, value int32) error {
	if err := p.sensor.SetControl(id, value); err != nil {
		return &isp.IoctlError{Op: "S_CTRL", Control: v4l2.ControlName(id), Err: err}
	}
	return nil
}

type frameTiming struct {
	height uint32
	lines  uint32 // minimum frame length in lines
}

// timing reads the live output height and minimum frame length.
func (p *Port) timing() (frameTiming, error) {
	f, err := p.sensor.Format()
	if err != nil {
		return frameTiming{}, &isp.IoctlError{Op: "SUBDEV_G_FMT", Err: err}
	}
	vb, err := p.sensor.QueryControl(v4l2.CIDVBlank)
	if err != nil {
		return frameTiming{}, &isp.IoctlError{Op: "QUERYCTRL", Control: "VBLANK", Err: err}
	}
	return frameTiming{height: f.Height, lines: f.Height + uint32(vb.Min)}, nil
}
