// internal/config/normalize.go
package config

import "strings"

// Defaults. The delay and bound values are compatibility-affecting:
// changing them changes which statistics frame pairs with which exposure.
const (
	DefaultExposureDelayFrames = 3
	DefaultGainDelayFrames     = 3
	DefaultResyncWaitMs        = 3
	DefaultLateStatsBoundMs    = 10
	DefaultPollIntervalMs      = 3
	DefaultStaleAfterMs        = 1000

	DefaultStatsBuffers  = 4
	DefaultParamsBuffers = 2

	DefaultStatusIntervalMs = 1000
	DefaultStatusTimeoutMs  = 1000
	DefaultStatusBaudRate   = 19200
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	setDefault(&cfg.Pipeline.StatsBuffers, DefaultStatsBuffers)
	setDefault(&cfg.Pipeline.ParamsBuffers, DefaultParamsBuffers)

	t := &cfg.Timing
	setDefault(&t.ExposureDelayFrames, DefaultExposureDelayFrames)
	setDefault(&t.GainDelayFrames, DefaultGainDelayFrames)
	setDefault(&t.ResyncWaitMs, DefaultResyncWaitMs)
	setDefault(&t.LateStatsBoundMs, DefaultLateStatsBoundMs)
	setDefault(&t.PollIntervalMs, DefaultPollIntervalMs)
	setDefault(&t.StaleAfterMs, DefaultStaleAfterMs)

	if cfg.Analyzer.Mode == "" {
		cfg.Analyzer.Mode = "manual"
	}

	if s := cfg.Status; s != nil {
		setDefault(&s.IntervalMs, DefaultStatusIntervalMs)
		setDefault(&s.TimeoutMs, DefaultStatusTimeoutMs)
		setDefault(&s.BaudRate, DefaultStatusBaudRate)

		// Normalize device_name:
		// - ASCII already validated
		// - Truncate to max 16 characters
		if len(s.DeviceName) > 16 {
			s.DeviceName = s.DeviceName[:16]
		}
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
