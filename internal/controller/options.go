// internal/controller/options.go
package controller

import (
	"log/slog"
	"time"

	"github.com/tamzrod/isp-controlloop/internal/config"
	"github.com/tamzrod/isp-controlloop/internal/stats"
)

// OptionsFromConfig converts normalized timing configuration.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	t := cfg.Timing
	return Options{
		ExposureDelay:  t.ExposureDelayFrames,
		GainDelay:      t.GainDelayFrames,
		ResyncWait:     ms(t.ResyncWaitMs),
		LateStatsBound: ms(t.LateStatsBoundMs),
		PollInterval:   ms(t.PollIntervalMs),
		StaleAfter:     ms(t.StaleAfterMs),
		Layout:         stats.DefaultLayout,
		Logger:         logger,
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
