package lens

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// PortOptions are the serial line settings of a focus-motor controller.
type PortOptions struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// Normalize validates the options and fills in defaults.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("lens: invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("lens: invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch p := strings.TrimSpace(strings.ToUpper(opts.Parity)); p {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("lens: unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return opts, nil
}

// Mode converts the options for serial.Open.
func (o PortOptions) Mode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// SerialMotor is a focus-motor controller speaking a line protocol:
// "F<position>\n" moves the lens.
type SerialMotor struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewSerialMotor wraps an already open port.
func NewSerialMotor(port io.ReadWriteCloser) *SerialMotor {
	return &SerialMotor{port: port}
}

// OpenSerialMotor opens the serial device at path.
func OpenSerialMotor(path string, opts PortOptions) (*SerialMotor, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("lens: open %s: %w", path, err)
	}
	if err := p.SetReadTimeout(100 * time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("lens: %s: set read timeout: %w", path, err)
	}
	return NewSerialMotor(p), nil
}

func (m *SerialMotor) SetPosition(pos int32) error {
	line := "F" + strconv.FormatInt(int64(pos), 10) + "\n"

	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := io.WriteString(m.port, line)
	if err != nil {
		return fmt.Errorf("lens: write %q: %w", strings.TrimSpace(line), err)
	}
	if n != len(line) {
		return fmt.Errorf("lens: short write %d/%d", n, len(line))
	}
	return nil
}

func (m *SerialMotor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port.Close()
}
