package lens

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/tamzrod/isp-controlloop/internal/isp"
	"github.com/tamzrod/isp-controlloop/internal/v4l2"
)

type fakeNode struct {
	id    uint32
	value int32
	err   error
}

func (f *fakeNode) SetControl(id uint32, value int32) error {
	f.id, f.value = id, value
	return f.err
}

type fakeSerial struct {
	bytes.Buffer
	closed bool
	err    error
}

func (f *fakeSerial) Write(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.Buffer.Write(p)
}

func (f *fakeSerial) Close() error {
	f.closed = true
	return nil
}

func TestPort_NoActuatorIsNoop(t *testing.T) {
	p := New(nil, nil)
	assert.False(t, p.Present())
	require.NoError(t, p.ApplyFocus(isp.FocusCommand{Position: 10}))

	var nilPort *Port
	require.NoError(t, nilPort.ApplyFocus(isp.FocusCommand{Position: 10}))
}

func TestPort_VCM(t *testing.T) {
	node := &fakeNode{}
	p := New(VCM{Node: node}, nil)
	require.True(t, p.Present())

	require.NoError(t, p.ApplyFocus(isp.FocusCommand{Position: 412}))
	assert.Equal(t, v4l2.CIDFocusAbsolute, node.id)
	assert.Equal(t, int32(412), node.value)

	node.err = errors.New("EIO")
	var ie *isp.IoctlError
	require.ErrorAs(t, p.ApplyFocus(isp.FocusCommand{Position: 1}), &ie)
	assert.Equal(t, "FOCUS_ABSOLUTE", ie.Control)
}

func TestSerialMotor_LineProtocol(t *testing.T) {
	port := &fakeSerial{}
	m := NewSerialMotor(port)
	p := New(m, nil)

	require.NoError(t, p.ApplyFocus(isp.FocusCommand{Position: 250}))
	require.NoError(t, p.ApplyFocus(isp.FocusCommand{Position: -3}))
	assert.Equal(t, "F250\nF-3\n", port.String())

	require.NoError(t, m.Close())
	assert.True(t, port.closed)
}

func TestSerialMotor_WriteError(t *testing.T) {
	port := &fakeSerial{err: errors.New("device gone")}
	m := NewSerialMotor(port)
	err := m.SetPosition(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "F1")
}

func TestPortOptions_Normalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	opts, err = PortOptions{BaudRate: 9600, Parity: "even", StopBits: 2}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "E", opts.Parity)

	_, err = PortOptions{DataBits: 9}.Normalize()
	require.Error(t, err)
	_, err = PortOptions{StopBits: 3}.Normalize()
	require.Error(t, err)
	_, err = PortOptions{Parity: "mark"}.Normalize()
	require.Error(t, err)
}

func TestPortOptions_Mode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 57600, StopBits: 2, Parity: "O"}.Mode()
	require.NoError(t, err)
	assert.Equal(t, 57600, mode.BaudRate)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)
}
