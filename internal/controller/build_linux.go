//go:build linux && (amd64 || arm64)

// internal/controller/build_linux.go
package controller

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/tamzrod/isp-controlloop/internal/analyzer"
	"github.com/tamzrod/isp-controlloop/internal/config"
	"github.com/tamzrod/isp-controlloop/internal/lens"
	"github.com/tamzrod/isp-controlloop/internal/v4l2"
)

// Build opens the pipeline nodes named in cfg and returns an Inited
// controller that owns them. cfg must be validated and normalized.
// On failure every node opened so far is closed.
func Build(cfg *config.Config, an analyzer.Analyzer, logger *slog.Logger) (*Controller, error) {
	p := cfg.Pipeline
	poll := cfg.Timing.PollIntervalMs

	var closers []io.Closer
	fail := func(err error) (*Controller, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, err
	}
	open := func(path string) (*v4l2.Node, error) {
		n, err := v4l2.OpenNode(path)
		if err != nil {
			return nil, err
		}
		n.PollInterval = poll
		closers = append(closers, n)
		return n, nil
	}

	// ---- frame sync events ----
	events, err := open(p.ISPSubdev)
	if err != nil {
		return fail(err)
	}
	if err := events.SubscribeFrameSync(); err != nil {
		return fail(err)
	}

	// ---- sensor ----
	sensor, err := open(p.SensorSubdev)
	if err != nil {
		return fail(err)
	}
	devs := Devices{Events: events, Sensor: sensor}

	if p.CombinedDevice != "" {
		combined, err := open(p.CombinedDevice)
		if err != nil {
			return fail(err)
		}
		devs.Combined = combined
	}

	// ---- statistics + parameters ----
	statsStream, err := v4l2.OpenMetaStream(p.StatsNode, v4l2.BufTypeMetaCapture, p.StatsBuffers, poll)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, statsStream)
	devs.Stats = statsStream

	paramsStream, err := v4l2.OpenMetaStream(p.ParamsNode, v4l2.BufTypeMetaOutput, p.ParamsBuffers, poll)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, paramsStream)
	devs.Params = paramsStream

	driver, err := statsStream.DriverName()
	if err != nil {
		return fail(err)
	}
	version, err := v4l2.ParseISPVersion(driver)
	if err != nil {
		return fail(fmt.Errorf("controller: %s: %w", p.StatsNode, err))
	}
	devs.ISPVersion = version

	// ---- lens (optional) ----
	switch {
	case p.LensSubdev != "":
		vcm, err := open(p.LensSubdev)
		if err != nil {
			return fail(err)
		}
		devs.Lens = lens.VCM{Node: vcm}

	case cfg.LensSerial != nil:
		s := cfg.LensSerial
		motor, err := lens.OpenSerialMotor(s.Port, lens.PortOptions{
			BaudRate: s.BaudRate,
			DataBits: s.DataBits,
			StopBits: s.StopBits,
			Parity:   s.Parity,
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, motor)
		devs.Lens = motor
	}

	devs.Closers = closers
	c, err := New(OptionsFromConfig(cfg, logger), devs, an)
	if err != nil {
		return fail(err)
	}
	return c, nil
}
