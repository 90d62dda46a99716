package exposure

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/isp-controlloop/internal/isp"
	"github.com/tamzrod/isp-controlloop/internal/v4l2"
)

type write struct {
	ID    uint32
	Value int32
}

// fakeSensor records control writes in order.
type fakeSensor struct {
	writes  []write
	hdr     []v4l2.HDRExposure
	format  v4l2.Format
	ranges  map[uint32]v4l2.ControlRange
	num     uint32
	den     uint32
	rate    int64
	failID  uint32
	fmtErr  error
	fiErr   error
	rateErr error
}

func newFakeSensor() *fakeSensor {
	return &fakeSensor{
		format: v4l2.Format{Width: 1920, Height: 1080, Code: 0x300f},
		ranges: map[uint32]v4l2.ControlRange{
			v4l2.CIDVBlank:   {Min: 45, Max: 30000},
			v4l2.CIDHBlank:   {Min: 280, Max: 280},
			v4l2.CIDExposure: {Min: 4, Max: 1115},
		},
		num: 1,
		den: 30,
	}
}

func (f *fakeSensor) SetControl(id uint32, value int32) error {
	if id == f.failID {
		return errors.New("EIO")
	}
	f.writes = append(f.writes, write{id, value})
	return nil
}

func (f *fakeSensor) QueryControl(id uint32) (v4l2.ControlRange, error) {
	r, ok := f.ranges[id]
	if !ok {
		return v4l2.ControlRange{}, errors.New("EINVAL")
	}
	return r, nil
}

func (f *fakeSensor) Format() (v4l2.Format, error) { return f.format, f.fmtErr }

func (f *fakeSensor) FrameInterval() (uint32, uint32, error) { return f.num, f.den, f.fiErr }

func (f *fakeSensor) PixelRate() (int64, error) { return f.rate, f.rateErr }

func (f *fakeSensor) SetHDRExposure(e v4l2.HDRExposure) error {
	f.hdr = append(f.hdr, e)
	return nil
}

type fakeCombined struct {
	class uint32
	ctrls []v4l2.Control
	err   error
}

func (f *fakeCombined) SetControls(class uint32, ctrls []v4l2.Control) error {
	f.class = class
	f.ctrls = append([]v4l2.Control(nil), ctrls...)
	return f.err
}

type exitFlag bool

func (e exitFlag) Exiting() bool { return bool(e) }

func newPort(t *testing.T, s Sensor, c Combined, exit ExitSignal) *Port {
	t.Helper()
	p, err := New(Config{Sensor: s, Combined: c, Exit: exit})
	require.NoError(t, err)
	return p
}

func TestNew_RequiresSensor(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestApply_SplitOrder(t *testing.T) {
	s := newFakeSensor()
	p := newPort(t, s, nil, nil)

	err := p.Apply(isp.ExposureCommand{
		CoarseIntegrationTime: 900,
		AnalogGain:            64,
		DigitalGain:           256,
		FrameLineLength:       1200,
	})
	require.NoError(t, err)

	want := []write{
		{v4l2.CIDAnalogueGain, 64},
		{v4l2.CIDGain, 256},
		{v4l2.CIDVBlank, 1200 - 1080},
		{v4l2.CIDExposure, 900},
	}
	if diff := cmp.Diff(want, s.writes); diff != "" {
		t.Fatalf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_SplitClampsFrameLength(t *testing.T) {
	s := newFakeSensor()
	p := newPort(t, s, nil, nil)

	// requested frame length below the sensor minimum (1080+45)
	require.NoError(t, p.Apply(isp.ExposureCommand{CoarseIntegrationTime: 500, FrameLineLength: 1000}))

	want := []write{
		{v4l2.CIDVBlank, 45},
		{v4l2.CIDExposure, 500},
	}
	if diff := cmp.Diff(want, s.writes); diff != "" {
		t.Fatalf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_SplitZeroFieldsSkipped(t *testing.T) {
	s := newFakeSensor()
	p := newPort(t, s, nil, nil)

	require.NoError(t, p.Apply(isp.ExposureCommand{}))
	require.Len(t, s.writes, 1, "VBLANK is always written")
	assert.Equal(t, v4l2.CIDVBlank, s.writes[0].ID)
}

func TestApply_SplitFailureIsIoctlError(t *testing.T) {
	s := newFakeSensor()
	s.failID = v4l2.CIDVBlank
	p := newPort(t, s, nil, nil)

	err := p.Apply(isp.ExposureCommand{CoarseIntegrationTime: 900, AnalogGain: 64})
	var ie *isp.IoctlError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "VBLANK", ie.Control)
	assert.Equal(t, isp.CodeIoctl, ie.Code())

	// integration time never written after a failed VBLANK
	for _, w := range s.writes {
		assert.NotEqual(t, v4l2.CIDExposure, w.ID)
	}
}

func TestApply_HDRUsesAggregateWrite(t *testing.T) {
	s := newFakeSensor()
	p := newPort(t, s, nil, nil)

	cmd := isp.ExposureCommand{
		HDR:         true,
		AnalogGain:  64,
		HDRTimeRegs: [3]uint32{1000, 250, 60},
		HDRGainRegs: [3]uint32{16, 16, 32},
		HDRTimes:    [3]float32{0.03, 0.0075, 0.0018},
		HDRGains:    [3]float32{1, 1, 2},
	}
	require.NoError(t, p.Apply(cmd))
	assert.Empty(t, s.writes)
	require.Len(t, s.hdr, 1)
	assert.Equal(t, cmd.HDRTimeRegs, s.hdr[0].TimeRegs)
	assert.Equal(t, cmd.HDRGains, s.hdr[0].Gains)
}

func TestApply_CombinedBatch(t *testing.T) {
	s := newFakeSensor()
	c := &fakeCombined{}
	p := newPort(t, s, c, nil)

	require.NoError(t, p.Apply(isp.ExposureCommand{CoarseIntegrationTime: 700, AnalogGain: 32}))
	assert.Empty(t, s.writes)
	assert.Equal(t, v4l2.CtrlClassUser, c.class)
	want := []v4l2.Control{
		{ID: v4l2.CIDExposure, Value: 700},
		{ID: v4l2.CIDGain, Value: 32},
		{ID: v4l2.CIDGainPercent, Value: 100},
	}
	if diff := cmp.Diff(want, c.ctrls); diff != "" {
		t.Fatalf("batch mismatch (-want +got):\n%s", diff)
	}

	c.err = errors.New("EBUSY")
	var ie *isp.IoctlError
	require.ErrorAs(t, p.Apply(isp.ExposureCommand{}), &ie)
	assert.Equal(t, "S_EXT_CTRLS", ie.Op)
}

func TestApply_BypassedWhileExiting(t *testing.T) {
	s := newFakeSensor()
	p := newPort(t, s, nil, exitFlag(true))

	err := p.Apply(isp.ExposureCommand{CoarseIntegrationTime: 1})
	assert.True(t, isp.IsBypassed(err))
	assert.Empty(t, s.writes)
}

func TestDescriptor_FromFrameInterval(t *testing.T) {
	s := newFakeSensor()
	p := newPort(t, s, nil, nil)

	d, err := p.Descriptor()
	require.NoError(t, err)
	assert.Equal(t, uint32(1920+280), d.PixelsPerLine)
	assert.Equal(t, uint32(1080+45), d.LinesPerFrame)
	assert.InDelta(t, 30.0, d.FrameRate, 1e-9)
	assert.InDelta(t, float64(2200*1125*30), d.PixelClockHz, 1e-3)
	assert.Equal(t, int32(4), d.CoarseMin)
	assert.Equal(t, int32(CoarseIntegrationMaxMargin), d.CoarseMaxMargin)
	assert.False(t, d.Monochrome)
}

func TestDescriptor_PixelRateFallback(t *testing.T) {
	s := newFakeSensor()
	s.fiErr = errors.New("ENOTTY")
	s.rate = 74_250_000
	p := newPort(t, s, nil, nil)

	d, err := p.Descriptor()
	require.NoError(t, err)
	assert.InDelta(t, 74_250_000.0, d.PixelClockHz, 1e-6)
	assert.InDelta(t, 74_250_000.0/(2200*1125), d.FrameRate, 1e-9)

	s.rateErr = errors.New("EINVAL")
	_, err = p.Descriptor()
	var ie *isp.IoctlError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "PIXEL_RATE", ie.Control)
}

func TestDescriptor_Monochrome(t *testing.T) {
	s := newFakeSensor()
	s.format.Code = v4l2.MbusY10
	p := newPort(t, s, nil, nil)

	d, err := p.Descriptor()
	require.NoError(t, err)
	assert.True(t, d.Monochrome)
}

func TestSensorModeData(t *testing.T) {
	s := newFakeSensor()
	p := newPort(t, s, nil, nil)

	cur := isp.ExposureCommand{CoarseIntegrationTime: 321}
	m, err := p.SensorModeData(3, cur, true)
	require.NoError(t, err)
	assert.Equal(t, 3, m.ExposureValidFrames)
	assert.True(t, m.HaveInEffect)
	assert.Equal(t, uint32(321), m.InEffect.CoarseIntegrationTime)
	assert.Equal(t, uint32(1920), m.OutputWidth)

	s.fmtErr = errors.New("EIO")
	_, err = p.SensorModeData(3, cur, true)
	require.Error(t, err)
}
