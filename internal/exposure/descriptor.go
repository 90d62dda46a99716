package exposure

import (
	"github.com/tamzrod/isp-controlloop/internal/isp"
	"github.com/tamzrod/isp-controlloop/internal/v4l2"
)

// Integration time limits applied to every sensor.
const (
	CoarseIntegrationMaxMargin = 10
	FineIntegrationMin         = 0
	FineIntegrationMaxMargin   = 0
)

// Descriptor is the sensor timing the analyzer needs to convert exposure
// values into register units.
type Descriptor struct {
	OutputWidth  uint32
	OutputHeight uint32
	Monochrome   bool

	HBlankMin uint32
	VBlankMin uint32

	PixelsPerLine   uint32 // line length in pixel clocks
	LinesPerFrame   uint32 // minimum frame length in lines
	PixelClockHz    float64
	FrameRate       float64
	CoarseMin       int32
	CoarseMaxMargin int32
	FineMin         int32
	FineMaxMargin   int32
}

// Descriptor queries the sensor. The pixel clock is derived from the
// frame interval when the sensor reports one and read from PIXEL_RATE
// otherwise.
func (p *Port) Descriptor() (Descriptor, error) {
	f, err := p.sensor.Format()
	if err != nil {
		return Descriptor{}, &isp.IoctlError{Op: "SUBDEV_G_FMT", Err: err}
	}
	hb, err := p.sensor.QueryControl(v4l2.CIDHBlank)
	if err != nil {
		return Descriptor{}, &isp.IoctlError{Op: "QUERYCTRL", Control: "HBLANK", Err: err}
	}
	vb, err := p.sensor.QueryControl(v4l2.CIDVBlank)
	if err != nil {
		return Descriptor{}, &isp.IoctlError{Op: "QUERYCTRL", Control: "VBLANK", Err: err}
	}
	exp, err := p.sensor.QueryControl(v4l2.CIDExposure)
	if err != nil {
		return Descriptor{}, &isp.IoctlError{Op: "QUERYCTRL", Control: "EXPOSURE", Err: err}
	}

	d := Descriptor{
		OutputWidth:     f.Width,
		OutputHeight:    f.Height,
		Monochrome:      v4l2.IsMonochrome(f.Code),
		HBlankMin:       uint32(hb.Min),
		VBlankMin:       uint32(vb.Min),
		PixelsPerLine:   f.Width + uint32(hb.Min),
		LinesPerFrame:   f.Height + uint32(vb.Min),
		CoarseMin:       exp.Min,
		CoarseMaxMargin: CoarseIntegrationMaxMargin,
		FineMin:         FineIntegrationMin,
		FineMaxMargin:   FineIntegrationMaxMargin,
	}

	num, den, err := p.sensor.FrameInterval()
	if err == nil && num != 0 && den != 0 {
		d.FrameRate = float64(den) / float64(num)
		d.PixelClockHz = float64(d.PixelsPerLine) * float64(d.LinesPerFrame) * d.FrameRate
		return d, nil
	}

	rate, err := p.sensor.PixelRate()
	if err != nil {
		return Descriptor{}, &isp.IoctlError{Op: "G_EXT_CTRLS", Control: "PIXEL_RATE", Err: err}
	}
	d.PixelClockHz = float64(rate)
	if frame := float64(d.PixelsPerLine) * float64(d.LinesPerFrame); frame > 0 {
		d.FrameRate = d.PixelClockHz / frame
	}
	return d, nil
}

// ModeData is the per-frame sensor context handed to the analyzer.
type ModeData struct {
	Descriptor

	// ExposureValidFrames is the delay between an exposure write and the
	// first statistics frame that reflects it.
	ExposureValidFrames int

	// InEffect is the exposure currently programmed into the sensor.
	InEffect     isp.ExposureCommand
	HaveInEffect bool
}

// SensorModeData queries the descriptor and pairs it with the exposure
// in effect. ok is false before the first command reached the sensor.
func (p *Port) SensorModeData(validFrames int, inEffect isp.ExposureCommand, ok bool) (ModeData, error) {
	d, err := p.Descriptor()
	if err != nil {
		return ModeData{}, err
	}
	return ModeData{
		Descriptor:          d,
		ExposureValidFrames: validFrames,
		InEffect:            inEffect,
		HaveInEffect:        ok,
	}, nil
}
