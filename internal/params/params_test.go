package params

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/isp-controlloop/internal/isp"
)

const testVersion = 10

func payload(id ModuleID, fill byte) []byte {
	p := make([]byte, PayloadSize(id, testVersion))
	for i := range p {
		p[i] = fill
	}
	switch id {
	case HST:
		binary.LittleEndian.PutUint32(p, 1)
		p[4] = 3
	case DPCC:
		binary.LittleEndian.PutUint32(p[0:], 1)
		binary.LittleEndian.PutUint32(p[4:], 3)
		binary.LittleEndian.PutUint32(p[8:], 1)
	case GOC, AEC, FLT:
		binary.LittleEndian.PutUint32(p, 0)
		if id == FLT {
			p[4] = 4
		}
	case AFC:
		p[0] = 3
	case AWB:
		binary.LittleEndian.PutUint32(p[8:], 1)
	}
	return p
}

func cfgUpdate(id ModuleID, fill byte) Set {
	var s Set
	s.ModuleCfgUpdate = id.Mask()
	s.Configs[id] = payload(id, fill)
	return s
}

func TestModuleIDs(t *testing.T) {
	assert.Equal(t, ModuleID(0), DPCC)
	assert.Equal(t, ModuleID(7), BDM)
	assert.Equal(t, ModuleID(15), WDR)
	assert.Equal(t, ModuleID(17), DPFStrength)
	assert.Equal(t, ModuleID(18), ModuleCount)
	assert.Equal(t, "awb_gain", AWBGain.String())
	assert.Equal(t, "module(40)", ModuleID(40).String())

	id, ok := ModuleByName(" AWB_Gain ")
	require.True(t, ok)
	assert.Equal(t, AWBGain, id)
	_, ok = ModuleByName("nope")
	assert.False(t, ok)
}

func TestMerge_EnableBits(t *testing.T) {
	full := Set{ModuleEns: BLS.Mask() | LSC.Mask(), ModuleEnUpdate: BLS.Mask() | LSC.Mask()}
	upd := Set{
		ModuleEns:      DPCC.Mask(),              // enable DPCC
		ModuleEnUpdate: DPCC.Mask() | BLS.Mask(), // and disable BLS
	}
	Merge(&full, &upd)

	assert.Equal(t, DPCC.Mask()|LSC.Mask(), full.ModuleEns)
	assert.Equal(t, DPCC.Mask()|BLS.Mask()|LSC.Mask(), full.ModuleEnUpdate)
	assert.Zero(t, full.ModuleCfgUpdate)
}

func TestMerge_EnableWithoutUpdateBitIgnored(t *testing.T) {
	var full Set
	Merge(&full, &Set{ModuleEns: AEC.Mask()})
	assert.Zero(t, full.ModuleEns)
}

func TestMerge_CopiesPayload(t *testing.T) {
	var full Set
	upd := cfgUpdate(CTK, 7)
	Merge(&full, &upd)

	assert.Equal(t, CTK.Mask(), full.ModuleCfgUpdate)
	assert.Equal(t, upd.Configs[CTK], full.Configs[CTK])

	// the full set owns its copy
	upd.Configs[CTK][0] = 99
	assert.Equal(t, byte(7), full.Configs[CTK][0])
}

func TestMerge_WDRIgnored(t *testing.T) {
	var full Set
	upd := Set{ModuleCfgUpdate: WDR.Mask()}
	upd.Configs[WDR] = []byte{1, 2, 3}
	Merge(&full, &upd)
	assert.Nil(t, full.Configs[WDR])
}

func TestMerge_DisjointUpdatesCommute(t *testing.T) {
	a := cfgUpdate(LSC, 1)
	a.ModuleEns, a.ModuleEnUpdate = LSC.Mask(), LSC.Mask()
	b := cfgUpdate(GOC, 2)
	b.ModuleEnUpdate = GOC.Mask()
	b.ModuleEns = 0

	base := Set{ModuleEns: GOC.Mask(), ModuleEnUpdate: GOC.Mask()}

	ab := base.Clone()
	Merge(&ab, &a)
	Merge(&ab, &b)

	ba := base.Clone()
	Merge(&ba, &b)
	Merge(&ba, &a)

	if diff := cmp.Diff(ab, ba); diff != "" {
		t.Fatalf("merge order changed the result (-ab +ba):\n%s", diff)
	}
}

func TestCheck_PayloadSizeAndValidators(t *testing.T) {
	s := cfgUpdate(HST, 0)
	require.NoError(t, Check(&s, testVersion))

	// v12 has the larger weight grid
	err := Check(&s, 12)
	var pe *isp.ParamError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "hst", pe.Module)

	s.Configs[HST][4] = 0 // predivider
	require.ErrorAs(t, Check(&s, testVersion), &pe)
	assert.Contains(t, pe.Reason, "predivider")

	d := cfgUpdate(DPCC, 0)
	binary.LittleEndian.PutUint32(d.Configs[DPCC][4:], 0x10)
	require.ErrorAs(t, Check(&d, testVersion), &pe)
	assert.Equal(t, "dpcc", pe.Module)
	assert.Equal(t, isp.CodeParam, pe.Code())
}

func TestEncode_LayoutAndSize(t *testing.T) {
	s := Set{ModuleEns: 0x5, ModuleEnUpdate: 0x7, ModuleCfgUpdate: AWB.Mask()}
	s.Configs[AWB] = payload(AWB, 0xAB)

	out := s.Encode(nil, testVersion)
	require.Len(t, out, EncodedSize(testVersion))
	assert.Equal(t, uint32(0x7), binary.LittleEndian.Uint32(out[0:]))
	assert.Equal(t, uint32(0x5), binary.LittleEndian.Uint32(out[4:]))
	assert.Equal(t, AWB.Mask(), binary.LittleEndian.Uint32(out[8:]))
	// AWB leads the payload area
	assert.Equal(t, s.Configs[AWB], out[12:12+PayloadSize(AWB, testVersion)])

	assert.Greater(t, EncodedSize(12), EncodedSize(testVersion))
}

// fakeDevice records submissions.
type fakeDevice struct {
	submitted [][]byte
	submitErr error
	ackErr    error
	acks      int
	onSubmit  func()
}

func (f *fakeDevice) Submit(buf []byte) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, append([]byte(nil), buf...))
	if f.onSubmit != nil {
		f.onSubmit()
	}
	return nil
}

func (f *fakeDevice) WaitAck(done <-chan struct{}) error {
	select {
	case <-done:
		return fmt.Errorf("fake: %w", isp.ErrBypassed)
	default:
	}
	f.acks++
	return f.ackErr
}

type fakeExit struct {
	exiting bool
	done    chan struct{}
}

func newFakeExit() *fakeExit { return &fakeExit{done: make(chan struct{})} }

func (f *fakeExit) Exiting() bool         { return f.exiting }
func (f *fakeExit) Done() <-chan struct{} { return f.done }
func (f *fakeExit) set() {
	f.exiting = true
	close(f.done)
}

func newMerger(t *testing.T, cfg Config, dev Device, exit ExitSignal) *Merger {
	t.Helper()
	cfg.ISPVersion = testVersion
	m, err := NewMerger(cfg, dev, exit)
	require.NoError(t, err)
	return m
}

func TestNewMerger_Validation(t *testing.T) {
	_, err := NewMerger(Config{}, nil, newFakeExit())
	require.Error(t, err)
	_, err = NewMerger(Config{}, &fakeDevice{}, nil)
	require.Error(t, err)
}

func TestMerger_ApplySubmitsFullSnapshot(t *testing.T) {
	dev := &fakeDevice{}
	m := newMerger(t, Config{}, dev, newFakeExit())

	require.NoError(t, m.Apply(cfgUpdate(CTK, 1)))
	require.NoError(t, m.Apply(Set{ModuleEns: AEC.Mask(), ModuleEnUpdate: AEC.Mask()}))

	require.Len(t, dev.submitted, 2)
	assert.Equal(t, 2, dev.acks)
	last := dev.submitted[1]
	require.Len(t, last, EncodedSize(testVersion))
	// the second snapshot still carries the first update
	assert.Equal(t, CTK.Mask(), binary.LittleEndian.Uint32(last[8:]))
	assert.Equal(t, AEC.Mask(), binary.LittleEndian.Uint32(last[4:]))
}

func TestMerger_MonochromeForcesBDM(t *testing.T) {
	dev := &fakeDevice{}
	m := newMerger(t, Config{Monochrome: true}, dev, newFakeExit())

	upd := cfgUpdate(BDM, 5)
	upd.ModuleEnUpdate = BDM.Mask() // try to disable demosaic
	require.NoError(t, m.Apply(upd))

	full := m.Full()
	assert.NotZero(t, full.ModuleEns&BDM.Mask())
	assert.NotZero(t, full.ModuleEnUpdate&BDM.Mask())
	assert.Zero(t, full.ModuleCfgUpdate&BDM.Mask())
	assert.Nil(t, full.Configs[BDM])
}

func TestMerger_CheckFailureRestoresShadow(t *testing.T) {
	dev := &fakeDevice{}
	m := newMerger(t, Config{}, dev, newFakeExit())
	require.NoError(t, m.Apply(cfgUpdate(GOC, 0)))
	before := m.Full()

	bad := Set{ModuleCfgUpdate: LSC.Mask()}
	bad.Configs[LSC] = []byte{1, 2, 3}
	err := m.Apply(bad)
	var pe *isp.ParamError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "lsc", pe.Module)

	if diff := cmp.Diff(before, m.Full()); diff != "" {
		t.Fatalf("full set changed after failed check (-before +after):\n%s", diff)
	}
	assert.Len(t, dev.submitted, 1, "failed update never submitted")
}

func TestMerger_SubmitAndAckErrors(t *testing.T) {
	dev := &fakeDevice{submitErr: errors.New("EBUSY")}
	m := newMerger(t, Config{}, dev, newFakeExit())

	var ie *isp.IoctlError
	require.ErrorAs(t, m.Apply(Set{}), &ie)
	assert.Equal(t, "QBUF", ie.Op)

	dev.submitErr = nil
	dev.ackErr = errors.New("EIO")
	require.ErrorAs(t, m.Apply(Set{}), &ie)
	assert.Equal(t, "DQBUF", ie.Op)
}

func TestMerger_BypassedWhenExiting(t *testing.T) {
	dev := &fakeDevice{}
	exit := newFakeExit()
	exit.set()
	m := newMerger(t, Config{}, dev, exit)

	assert.ErrorIs(t, m.Apply(cfgUpdate(CTK, 1)), isp.ErrBypassed)
	assert.Empty(t, dev.submitted)
}

func TestMerger_ExitBetweenSubmitAndAck(t *testing.T) {
	exit := newFakeExit()
	dev := &fakeDevice{}
	dev.onSubmit = exit.set
	m := newMerger(t, Config{}, dev, exit)

	assert.ErrorIs(t, m.Apply(Set{}), isp.ErrBypassed)
	assert.Len(t, dev.submitted, 1)
	assert.Zero(t, dev.acks)
}
