// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"strings"
)

// maxDelayFrames bounds the delay queue depth.
const maxDelayFrames = 16

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero timing values are allowed and mean "use the default".
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}

	// ------------------------------------------------------------
	// PIPELINE NODES
	// ------------------------------------------------------------

	p := cfg.Pipeline
	for _, req := range []struct{ key, val string }{
		{"pipeline.isp_subdev", p.ISPSubdev},
		{"pipeline.sensor_subdev", p.SensorSubdev},
		{"pipeline.stats_node", p.StatsNode},
		{"pipeline.params_node", p.ParamsNode},
	} {
		if strings.TrimSpace(req.val) == "" {
			return fmt.Errorf("%s is required", req.key)
		}
	}
	if p.StatsBuffers < 0 || p.ParamsBuffers < 0 {
		return errors.New("pipeline: buffer counts must be >= 0")
	}

	// ------------------------------------------------------------
	// LENS: at most one actuator
	// ------------------------------------------------------------

	if cfg.LensSerial != nil {
		if p.LensSubdev != "" {
			return errors.New("pipeline.lens_subdev and lens_serial are mutually exclusive")
		}
		if strings.TrimSpace(cfg.LensSerial.Port) == "" {
			return errors.New("lens_serial.port is required")
		}
		if cfg.LensSerial.BaudRate < 0 {
			return errors.New("lens_serial.baud_rate must be >= 0")
		}
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	t := cfg.Timing
	for _, d := range []struct {
		key string
		val int
	}{
		{"timing.exposure_delay_frames", t.ExposureDelayFrames},
		{"timing.gain_delay_frames", t.GainDelayFrames},
	} {
		if d.val < 0 || d.val > maxDelayFrames {
			return fmt.Errorf("%s must be within 0..%d (got %d)", d.key, maxDelayFrames, d.val)
		}
	}
	for _, d := range []struct {
		key string
		val int
	}{
		{"timing.resync_wait_ms", t.ResyncWaitMs},
		{"timing.late_stats_bound_ms", t.LateStatsBoundMs},
		{"timing.poll_interval_ms", t.PollIntervalMs},
		{"timing.stale_after_ms", t.StaleAfterMs},
	} {
		if d.val < 0 {
			return fmt.Errorf("%s must be >= 0 (got %d)", d.key, d.val)
		}
	}

	// ------------------------------------------------------------
	// ANALYZER
	// ------------------------------------------------------------

	switch cfg.Analyzer.Mode {
	case "", "manual":
	default:
		return fmt.Errorf("analyzer.mode %q is not supported", cfg.Analyzer.Mode)
	}
	for _, m := range cfg.Analyzer.EnableModules {
		if strings.TrimSpace(m) == "" {
			return errors.New("analyzer.enable_modules contains an empty name")
		}
	}

	// ------------------------------------------------------------
	// STATUS BLOCK (OPT-IN)
	// ------------------------------------------------------------

	if s := cfg.Status; s != nil {
		switch {
		case strings.HasPrefix(s.Endpoint, "tcp://") && len(s.Endpoint) > len("tcp://"):
		case strings.HasPrefix(s.Endpoint, "rtu://") && len(s.Endpoint) > len("rtu://"):
		default:
			return fmt.Errorf("status.endpoint %q must be tcp://host:port or rtu:///dev/tty*", s.Endpoint)
		}

		// device_name sanity (ASCII only)
		for i := 0; i < len(s.DeviceName); i++ {
			if s.DeviceName[i] > 0x7F {
				return errors.New("status.device_name must contain ASCII characters only")
			}
		}

		// the block must fit the 16-bit register space
		if (int(s.BaseSlot)+1)*20 > 0x10000 {
			return fmt.Errorf("status.base_slot %d puts the block beyond register 65535", s.BaseSlot)
		}
		if s.IntervalMs < 0 || s.TimeoutMs < 0 || s.BaudRate < 0 {
			return errors.New("status: interval_ms, timeout_ms and baud_rate must be >= 0")
		}
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported", cfg.Logging.Format)
	}

	return nil
}
