package params

import (
	"errors"
	"log/slog"

	"github.com/tamzrod/isp-controlloop/internal/isp"
)

// Device is the ISP parameter buffer queue.
type Device interface {
	// Submit queues a full parameter snapshot.
	Submit(buf []byte) error
	// WaitAck blocks until the driver consumed the snapshot. It returns
	// an error wrapping isp.ErrBypassed once done is closed.
	WaitAck(done <-chan struct{}) error
}

// ExitSignal is the controller's exit flag.
type ExitSignal interface {
	Exiting() bool
	Done() <-chan struct{}
}

// Config configures a Merger.
type Config struct {
	ISPVersion int
	Monochrome bool
	Logger     *slog.Logger
}

// Merger owns the full parameter set.
type Merger struct {
	cfg  Config
	full Set
	dev  Device
	exit ExitSignal
	buf  []byte
	log  *slog.Logger
}

func NewMerger(cfg Config, dev Device, exit ExitSignal) (*Merger, error) {
	if dev == nil {
		return nil, errors.New("params: device required")
	}
	if exit == nil {
		return nil, errors.New("params: exit signal required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		cfg:  cfg,
		dev:  dev,
		exit: exit,
		buf:  make([]byte, 0, EncodedSize(cfg.ISPVersion)),
		log:  logger.With("component", "params", "isp_version", cfg.ISPVersion),
	}, nil
}

// SetMonochrome switches the forced demosaic bypass.
func (m *Merger) SetMonochrome(mono bool) { m.cfg.Monochrome = mono }

// Full returns a copy of the current full parameter set.
func (m *Merger) Full() Set { return m.full.Clone() }

// Apply merges upd into the full set, validates it and submits the
// complete snapshot. A failed check restores the previous full set and
// returns *isp.ParamError. Submission and acknowledgement failures are
// *isp.IoctlError; exit at any point yields isp.ErrBypassed.
func (m *Merger) Apply(upd Set) error {
	if m.exit.Exiting() {
		return isp.ErrBypassed
	}

	if m.cfg.Monochrome {
		upd.ModuleEns |= BDM.Mask()
		upd.ModuleEnUpdate |= BDM.Mask()
		upd.ModuleCfgUpdate &^= BDM.Mask()
	}

	prev := m.full.Clone()
	Merge(&m.full, &upd)
	if err := Check(&m.full, m.cfg.ISPVersion); err != nil {
		m.full = prev
		m.log.Warn("parameter update dropped", "err", err)
		return err
	}

	m.buf = m.full.Encode(m.buf[:0], m.cfg.ISPVersion)
	if err := m.dev.Submit(m.buf); err != nil {
		return &isp.IoctlError{Op: "QBUF", Control: "params", Err: err}
	}

	if m.exit.Exiting() {
		return isp.ErrBypassed
	}
	if err := m.dev.WaitAck(m.exit.Done()); err != nil {
		if isp.IsBypassed(err) {
			return isp.ErrBypassed
		}
		return &isp.IoctlError{Op: "DQBUF", Control: "params", Err: err}
	}
	return nil
}
