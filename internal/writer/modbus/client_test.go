package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEndpointClient_RejectsEndpoint(t *testing.T) {
	_, err := NewEndpointClient(Config{})
	require.Error(t, err)

	_, err = NewEndpointClient(Config{Endpoint: "udp://10.0.0.1:502"})
	require.Error(t, err)
}

func TestPackRegisters(t *testing.T) {
	assert.Equal(t, []byte{0x12, 0x34, 0x00, 0xFF}, packRegisters([]uint16{0x1234, 0x00FF}))
	assert.Empty(t, packRegisters(nil))
}
