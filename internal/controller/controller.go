// Package controller wires the sequence clock, the exposure and focus
// ports, the parameter merger and the statistics loop into one 3A
// control loop, and owns its lifecycle.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/isp-controlloop/internal/analyzer"
	"github.com/tamzrod/isp-controlloop/internal/exposure"
	"github.com/tamzrod/isp-controlloop/internal/framesync"
	"github.com/tamzrod/isp-controlloop/internal/isp"
	"github.com/tamzrod/isp-controlloop/internal/lens"
	"github.com/tamzrod/isp-controlloop/internal/params"
	"github.com/tamzrod/isp-controlloop/internal/stats"
)

// EventSource delivers start-of-frame events. NextFrameSync returns an
// error once done is closed.
type EventSource interface {
	NextFrameSync(done <-chan struct{}) (frameID uint32, ts int64, err error)
}

// Devices are the opened pipeline endpoints. Combined and Lens are
// optional.
type Devices struct {
	Events     EventSource
	Sensor     exposure.Sensor
	Combined   exposure.Combined
	Stats      stats.Source
	Params     params.Device
	Lens       lens.Actuator
	ISPVersion int

	// Closers are closed in reverse order by Close.
	Closers []io.Closer
}

// Options are the loop timings.
type Options struct {
	ExposureDelay  int
	GainDelay      int
	ResyncWait     time.Duration
	LateStatsBound time.Duration
	PollInterval   time.Duration
	StaleAfter     time.Duration
	Layout         stats.Layout
	Logger         *slog.Logger
}

type Controller struct {
	id   uuid.UUID
	opts Options
	log  *slog.Logger
	devs Devices

	clock    *framesync.Sync
	exposure *exposure.Port
	merger   *params.Merger
	focus    *lens.Port
	resync   *stats.Resync
	runner   *stats.Runner
	analyzer analyzer.Analyzer

	mu     sync.Mutex
	state  Lifecycle
	desc   exposure.Descriptor
	cancel context.CancelFunc
	group  *errgroup.Group

	lastSOF atomic.Int64 // wall clock, unix nanoseconds

	errMu    sync.Mutex
	cycleErr error

	now func() time.Time
}

// New builds the loop components around devs. The controller starts in
// Inited.
func New(opts Options, devs Devices, an analyzer.Analyzer) (*Controller, error) {
	if devs.Events == nil || devs.Sensor == nil {
		return nil, errors.New("controller: event source and sensor are required")
	}
	if devs.Stats == nil || devs.Params == nil {
		return nil, errors.New("controller: stats and params streams are required")
	}
	if an == nil {
		return nil, errors.New("controller: analyzer required")
	}
	if opts.Layout.MeasSize == 0 {
		opts.Layout = stats.DefaultLayout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	logger = logger.With("session", id.String())

	clock, err := framesync.New(framesync.Config{
		ExposureDelay: opts.ExposureDelay,
		GainDelay:     opts.GainDelay,
		Logger:        logger,
	}, nil)
	if err != nil {
		return nil, err
	}

	expo, err := exposure.New(exposure.Config{
		Sensor:   devs.Sensor,
		Combined: devs.Combined,
		Exit:     clock,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	clock.SetApplier(expo)

	merger, err := params.NewMerger(params.Config{ISPVersion: devs.ISPVersion, Logger: logger}, devs.Params, clock)
	if err != nil {
		return nil, err
	}

	resync, err := stats.NewResync(stats.Config{
		Wait:      opts.ResyncWait,
		LateBound: opts.LateStatsBound,
		Layout:    opts.Layout,
		Logger:    logger,
	}, devs.Stats, clock)
	if err != nil {
		return nil, err
	}

	runner, err := stats.NewRunner(resync, opts.PollInterval, logger)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		id:       id,
		opts:     opts,
		log:      logger.With("component", "controller"),
		devs:     devs,
		clock:    clock,
		exposure: expo,
		merger:   merger,
		focus:    lens.New(devs.Lens, logger),
		resync:   resync,
		runner:   runner,
		analyzer: an,
		state:    Inited,
		now:      time.Now,
	}
	runner.OnError = c.setCycleErr
	return c, nil
}

// ID is the session id attached to every log record.
func (c *Controller) ID() uuid.UUID { return c.id }

// State returns the lifecycle state.
func (c *Controller) State() Lifecycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Descriptor returns the sensor descriptor read by Prepare.
func (c *Controller) Descriptor() exposure.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc
}

// Prepare reads the sensor descriptor and configures the parameter
// merger for the sensor's colour mode.
func (c *Controller) Prepare() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Inited && c.state != Prepared {
		return fmt.Errorf("controller: prepare in state %s", c.state)
	}

	d, err := c.exposure.Descriptor()
	if err != nil {
		return fmt.Errorf("controller: prepare: %w", err)
	}
	c.desc = d
	c.merger.SetMonochrome(d.Monochrome)

	c.log.Info("prepared",
		"width", d.OutputWidth,
		"height", d.OutputHeight,
		"monochrome", d.Monochrome,
		"frame_rate", d.FrameRate,
		"pixel_clock_hz", d.PixelClockHz,
		"isp_version", c.devs.ISPVersion,
		"lens", c.focus.Present())
	c.state = Prepared
	return nil
}

// Start launches the SOF and statistics loops. From Paused it resumes
// the running loops.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Paused:
		c.clock.SetExit(false)
		c.lastSOF.Store(c.now().UnixNano())
		c.state = Started
		c.log.Info("resumed")
		return nil
	case Prepared:
	default:
		return fmt.Errorf("controller: start in state %s", c.state)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	c.cancel = cancel
	c.group = g

	c.clock.SetExit(false)
	c.lastSOF.Store(c.now().UnixNano())

	g.Go(func() error { return c.sofLoop(gctx) })
	g.Go(func() error {
		c.runner.Run(gctx, c.process)
		return nil
	})

	c.state = Started
	c.log.Info("started",
		"exposure_delay", c.opts.ExposureDelay,
		"gain_delay", c.opts.GainDelay,
		"queue_depth", c.clock.Depth())
	return nil
}

// Stop pauses the loop. Exposure, parameter and statistics state is kept
// and Start resumes it.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Started {
		return fmt.Errorf("controller: stop in state %s", c.state)
	}
	c.clock.SetExit(true)
	c.state = Paused
	c.log.Info("paused")
	return nil
}

// Close stops every goroutine and closes the devices.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state == Invalid {
		c.mu.Unlock()
		return nil
	}
	cancel, g := c.cancel, c.group
	c.cancel, c.group = nil, nil
	c.state = Invalid
	c.mu.Unlock()

	c.clock.SetExit(true)

	var errs []error
	if cancel != nil {
		cancel()
		if err := g.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(c.devs.Closers) - 1; i >= 0; i-- {
		if err := c.devs.Closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.log.Info("closed")
	return errors.Join(errs...)
}

// sofLoop feeds frame-sync events into the sequence clock. SOFs keep
// flowing while paused so the sequence stays current; the exposure port
// bypasses applies until resumed.
func (c *Controller) sofLoop(ctx context.Context) error {
	for {
		frameID, ts, err := c.devs.Events.NextFrameSync(ctx.Done())
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.log.Error("frame sync wait failed", "err", err)
			c.setCycleErr(err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.opts.PollInterval):
			}
			continue
		}
		c.clock.OnSOF(ts, frameID)
		c.lastSOF.Store(c.now().UnixNano())
	}
}

// process runs one control cycle for an aligned statistics record:
// analyze, then push the exposure for delayed apply and apply parameters
// and focus immediately. Failures of the three outputs are joined.
func (c *Controller) process(ctx context.Context, rec *stats.Record) error {
	inEffect, ok := c.clock.Oldest()
	mode, err := c.exposure.SensorModeData(c.opts.ExposureDelay, inEffect, ok)
	if err != nil {
		return fmt.Errorf("controller: frame %d: %w", rec.FrameID, err)
	}

	res, err := c.analyzer.Analyze(ctx, analyzer.Input{Stats: rec, Mode: mode})
	if err != nil {
		return fmt.Errorf("controller: analyze frame %d: %w", rec.FrameID, err)
	}

	var errs []error
	if res.Exposure != nil {
		if err := c.clock.Push(*res.Exposure); err != nil && !isp.IsBypassed(err) {
			errs = append(errs, fmt.Errorf("exposure: %w", err))
		}
	}
	if res.Params != nil {
		if err := c.merger.Apply(*res.Params); err != nil && !isp.IsBypassed(err) {
			errs = append(errs, fmt.Errorf("params: %w", err))
		}
	}
	if res.Focus != nil {
		if err := c.focus.ApplyFocus(*res.Focus); err != nil {
			errs = append(errs, fmt.Errorf("focus: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("controller: frame %d: %w", rec.FrameID, err)
	}

	c.log.Debug("cycle done", "frame_id", rec.FrameID, "sequence", rec.Sequence, "late", rec.Late)
	c.setCycleErr(nil)
	return nil
}

func (c *Controller) setCycleErr(err error) {
	c.errMu.Lock()
	c.cycleErr = err
	c.errMu.Unlock()
}

func (c *Controller) lastCycleErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.cycleErr
}
