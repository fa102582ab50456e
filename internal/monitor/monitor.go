package monitor

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/indicator"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/metrics"
	"codeberg.org/mutker/pimonitor/internal/motion"
	"codeberg.org/mutker/pimonitor/internal/oled"
	"codeberg.org/mutker/pimonitor/internal/sensor"
	"codeberg.org/mutker/pimonitor/internal/telemetry"
)

const (
	DefaultInterval = time.Second
	renderEvery     = 3
	criticalLogRate = 30 * time.Second
)

// Deps are the components the control loop drives. Hardware handles are
// created by the caller and released through Cleanup.
type Deps struct {
	Sensors   sensor.Reader
	Fan       FanController
	Mapper    IndicatorMapper
	LEDs      LEDSink
	Renderer  Renderer
	Display   DisplayController
	Motion    motion.Strategy
	Metrics   metrics.Collector
	Telemetry telemetry.Collector

	// ResetBoard restores the expansion board to its idle state.
	ResetBoard func() error
	// Release runs last during cleanup, in order.
	Release []func() error
}

// Monitor runs the control loop and the supervised background tasks.
type Monitor struct {
	deps     Deps
	interval time.Duration
	logger   logger.Logger
	critical *logger.Throttle

	mu     sync.Mutex
	tick   uint64
	screen int

	cleanupOnce sync.Once
	cleanupErr  error
}

func New(interval time.Duration, deps Deps, log logger.Logger) (*Monitor, error) {
	if interval <= 0 {
		return nil, errors.New().WithData(ErrInvalidInterval, interval)
	}

	missing := func(name string) error {
		return errors.New().WithData(ErrMissingDep, name)
	}
	switch {
	case deps.Sensors == nil:
		return nil, missing("sensors")
	case deps.Fan == nil:
		return nil, missing("fan")
	case deps.Mapper == nil:
		return nil, missing("mapper")
	case deps.LEDs == nil:
		return nil, missing("leds")
	case deps.Renderer == nil:
		return nil, missing("renderer")
	case deps.Display == nil:
		return nil, missing("display")
	case deps.Motion == nil:
		return nil, missing("motion")
	case deps.Metrics == nil:
		return nil, missing("metrics")
	case deps.Telemetry == nil:
		return nil, missing("telemetry")
	}

	return &Monitor{
		deps:     deps,
		interval: interval,
		logger:   log,
		critical: logger.NewThrottle(criticalLogRate),
	}, nil
}

// Run starts the motion runner, the display applier and the telemetry
// server, then drives the control loop until ctx is done. It returns once
// every task has exited.
func (m *Monitor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		m.logger.Info().Str("strategy", m.deps.Motion.Name()).Msg("Motion detection started")
		motion.Run(ctx, m.deps.Motion, m.motionSink())
	}()
	go func() {
		defer wg.Done()
		m.deps.Display.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := m.deps.Telemetry.Serve(ctx); err != nil {
			logger.ErrorFrom(m.logger, err).Msg("Telemetry server stopped")
		}
	}()

	m.loop(ctx)
	wg.Wait()

	return nil
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Tick(ctx, time.Now())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one control loop iteration.
func (m *Monitor) Tick(ctx context.Context, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.deps

	d.Display.CheckTimeout(now)

	snap := d.Sensors.Read(ctx)

	fanState, err := d.Fan.Evaluate(snap.CPUTemp, snap.CPUTempOK)
	if err != nil {
		logger.ErrorFrom(m.logger, err).Msg("Failed to set fan duty")
	}

	states := d.Mapper.Map(snap)
	if states.Health == indicator.HealthCritical && m.critical.Allow(now) {
		m.logger.Warn().Str("tripped", states.TrippedString()).Msg("System health critical")
	}
	if err := d.LEDs.Apply(states); err != nil {
		logger.ErrorFrom(m.logger, err).Msg("Failed to update indicators")
	}

	displayState := d.Display.State()

	if m.tick%renderEvery == 0 {
		if err := d.Renderer.Render(m.screen, snap); err != nil {
			logger.ErrorFrom(m.logger, err).Int("screen", m.screen).Msg("Failed to render screen")
		}
		m.screen = (m.screen + 1) % oled.ScreenCount

		m.logger.Info().
			Float64("cpu", snap.CPUPercent).
			Float64("mem", snap.MemPercent).
			Float64("disk", snap.DiskPercent).
			Float64("temp", snap.CPUTemp).
			Int("fan_pwm", snap.FanPWM).
			Bool("fan_engaged", fanState.LimitEngaged).
			Bool("display_on", displayState.On).
			Str("health", states.Health.String()).
			Msg("Status")
	}
	m.tick++

	sample := &metrics.Sample{
		Timestamp:    snap.Timestamp,
		CPUPercent:   snap.CPUPercent,
		MemPercent:   snap.MemPercent,
		DiskPercent:  snap.DiskPercent,
		CPUTemp:      snap.CPUTemp,
		BoardTemp:    snap.BoardTemp,
		FanPWM:       snap.FanPWM,
		FanDuty:      int(fanState.Duty),
		FanEngaged:   fanState.LimitEngaged,
		DisplayOn:    displayState.On,
		Temperature:  states.Temperature.String(),
		Load:         states.Load.String(),
		DiskActivity: states.DiskActivity.String(),
		Health:       states.Health.String(),
	}
	if err := d.Metrics.Record(ctx, sample); err != nil {
		m.logger.Debug().Err(err).Msg("Failed to record sample")
	}
	if err := d.Telemetry.Record(ctx, sample); err != nil {
		m.logger.Debug().Err(err).Msg("Failed to export sample")
	}
}

// Ticks reports how many ticks have run.
func (m *Monitor) Ticks() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick
}

func (m *Monitor) motionSink() motion.Sink {
	return motionSink{display: m.deps.Display, telemetry: m.deps.Telemetry}
}

type motionSink struct {
	display   motion.Sink
	telemetry telemetry.Collector
}

func (s motionSink) HandleMotion(e motion.Event) {
	s.telemetry.ObserveMotion(string(e.Source))
	s.display.HandleMotion(e)
}

// Cleanup restores the hardware and releases every resource. Only the
// first call does any work.
func (m *Monitor) Cleanup() error {
	m.cleanupOnce.Do(func() {
		m.cleanupErr = runCleanup(m.logger, m.steps())
	})
	return m.cleanupErr
}

type step struct {
	name string
	fn   func() error
}

func (m *Monitor) steps() []step {
	d := m.deps
	steps := []step{
		{"reset board", d.ResetBoard},
		{"close oled", d.Renderer.Close},
		{"close motion", d.Motion.Close},
		{"close metrics", d.Metrics.Close},
		{"close telemetry", d.Telemetry.Close},
	}
	for _, fn := range d.Release {
		steps = append(steps, step{"release", fn})
	}
	return steps
}

func runCleanup(log logger.Logger, steps []step) error {
	var errs []error
	for _, s := range steps {
		if s.fn == nil {
			continue
		}
		if err := s.fn(); err != nil {
			logger.ErrorFrom(log, err).Str("step", s.name).Msg("Cleanup step failed")
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.New().Wrap(ErrCleanup, errors.Join(errs...))
	}
	log.Info().Msg("Cleanup complete")
	return nil
}
