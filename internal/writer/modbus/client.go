// internal/writer/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// EndpointClient is a single connection to one status endpoint.
// It serializes requests because it mutates SlaveId per write.
type EndpointClient struct {
	mu       sync.Mutex
	conn     connector
	setSlave func(uint8)
	client   modbus.Client
}

type connector interface {
	Connect() error
	Close() error
}

type Config struct {
	Endpoint string // tcp://host:port or rtu:///dev/ttyX
	Timeout  time.Duration
	BaudRate int // rtu only
}

func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("writer modbus: endpoint required")
	}

	c := &EndpointClient{}

	switch {
	case strings.HasPrefix(cfg.Endpoint, "tcp://"):
		h := modbus.NewTCPClientHandler(strings.TrimPrefix(cfg.Endpoint, "tcp://"))
		h.Timeout = cfg.Timeout
		c.conn = h
		c.setSlave = func(id uint8) { h.SlaveId = id }
		c.client = modbus.NewClient(h)

	case strings.HasPrefix(cfg.Endpoint, "rtu://"):
		h := modbus.NewRTUClientHandler(strings.TrimPrefix(cfg.Endpoint, "rtu://"))
		h.BaudRate = cfg.BaudRate
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.Timeout = cfg.Timeout
		c.conn = h
		c.setSlave = func(id uint8) { h.SlaveId = id }
		c.client = modbus.NewClient(h)

	default:
		return nil, fmt.Errorf("writer modbus: unsupported endpoint %q", cfg.Endpoint)
	}

	if err := c.conn.Connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setSlave(unitID)

	qty := uint16(len(regs))
	payload := packRegisters(regs)

	_, err := c.client.WriteMultipleRegisters(addr, qty, payload)
	return err
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
