package analyzer

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/isp-controlloop/internal/config"
	"github.com/tamzrod/isp-controlloop/internal/exposure"
	"github.com/tamzrod/isp-controlloop/internal/isp"
	"github.com/tamzrod/isp-controlloop/internal/params"
	"github.com/tamzrod/isp-controlloop/internal/stats"
)

func modeData(lines uint32, coarseMin int32) exposure.ModeData {
	return exposure.ModeData{Descriptor: exposure.Descriptor{
		LinesPerFrame:   lines,
		CoarseMin:       coarseMin,
		CoarseMaxMargin: exposure.CoarseIntegrationMaxMargin,
	}}
}

func TestNewManual_UnknownModule(t *testing.T) {
	_, err := NewManual(config.AnalyzerConfig{EnableModules: []string{"awb", "sharpen"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sharpen")
}

func TestNewManual_UnsupportedMode(t *testing.T) {
	_, err := NewManual(config.AnalyzerConfig{Mode: "auto"})
	require.Error(t, err)
}

func TestManual_ExposureEveryFrame(t *testing.T) {
	m, err := NewManual(config.AnalyzerConfig{
		CoarseIntegrationTime: 500,
		AnalogGain:            32,
		DigitalGain:           256,
		FrameLineLength:       1200,
	})
	require.NoError(t, err)

	in := Input{Stats: &stats.Record{FrameID: 1}, Mode: modeData(1100, 4)}
	want := &isp.ExposureCommand{
		CoarseIntegrationTime: 500,
		AnalogGain:            32,
		DigitalGain:           256,
		FrameLineLength:       1200,
	}

	for i := 0; i < 3; i++ {
		res, err := m.Analyze(context.Background(), in)
		require.NoError(t, err)
		if diff := cmp.Diff(want, res.Exposure); diff != "" {
			t.Fatalf("frame %d exposure mismatch (-want +got):\n%s", i, diff)
		}
		assert.Nil(t, res.Focus)
		assert.Nil(t, res.Params)
	}
}

func TestManual_FocusAndParamsSentOnce(t *testing.T) {
	pos := int32(310)
	m, err := NewManual(config.AnalyzerConfig{
		FocusPosition: &pos,
		EnableModules: []string{"awb_gain", "CTK"},
	})
	require.NoError(t, err)

	res, err := m.Analyze(context.Background(), Input{})
	require.NoError(t, err)
	require.NotNil(t, res.Focus)
	assert.Equal(t, int32(310), res.Focus.Position)
	require.NotNil(t, res.Params)

	mask := params.AWBGain.Mask() | params.CTK.Mask()
	assert.Equal(t, mask, res.Params.ModuleEns)
	assert.Equal(t, mask, res.Params.ModuleEnUpdate)
	assert.Zero(t, res.Params.ModuleCfgUpdate)

	res, err = m.Analyze(context.Background(), Input{})
	require.NoError(t, err)
	assert.Nil(t, res.Focus)
	assert.Nil(t, res.Params)
}

func TestManual_ClampsIntegrationTime(t *testing.T) {
	m, err := NewManual(config.AnalyzerConfig{CoarseIntegrationTime: 5000})
	require.NoError(t, err)
	res, err := m.Analyze(context.Background(), Input{Mode: modeData(1000, 2)})
	require.NoError(t, err)
	assert.Equal(t, uint32(990), res.Exposure.CoarseIntegrationTime)

	m, err = NewManual(config.AnalyzerConfig{CoarseIntegrationTime: 1})
	require.NoError(t, err)
	res, err = m.Analyze(context.Background(), Input{Mode: modeData(1000, 2)})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), res.Exposure.CoarseIntegrationTime)
}

func TestManual_LongerFrameLengthWidensRange(t *testing.T) {
	m, err := NewManual(config.AnalyzerConfig{CoarseIntegrationTime: 1500, FrameLineLength: 2000})
	require.NoError(t, err)
	res, err := m.Analyze(context.Background(), Input{Mode: modeData(1000, 2)})
	require.NoError(t, err)
	assert.Equal(t, uint32(1500), res.Exposure.CoarseIntegrationTime)
}

func TestManual_ContextCancelled(t *testing.T) {
	m, err := NewManual(config.AnalyzerConfig{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Analyze(ctx, Input{})
	require.ErrorIs(t, err, context.Canceled)
}
