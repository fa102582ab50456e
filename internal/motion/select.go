package motion

import (
	"context"
	"time"

	"codeberg.org/mutker/pimonitor/internal/config"
	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"github.com/spf13/afero"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const DefaultStabilizationDelay = 5 * time.Second

type gpioPin struct {
	gpio.PinIn
}

func (p gpioPin) Read() bool {
	return p.PinIn.Read() == gpio.High
}

// OpenGPIOPin initializes the periph host and configures name as a
// pulled-down input.
func OpenGPIOPin(name string) (Pin, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.New().Wrap(ErrGPIOInit, err)
	}

	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.New().WithData(ErrPinNotFound, name)
	}

	if err := p.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, errors.New().Wrap(ErrPinConfigure, err)
	}

	return gpioPin{p}, nil
}

// Selector picks the motion strategy once at startup.
type Selector struct {
	OpenPin  func(name string) (Pin, error)
	Capturer Capturer
	FS       afero.Fs
	Logger   logger.Logger
}

// NewSelector returns a Selector wired to the real GPIO host, camera
// command and filesystem.
func NewSelector(cfg Config, log logger.Logger) Selector {
	return Selector{
		OpenPin:  OpenGPIOPin,
		Capturer: NewCommandCapturer(cfg.CaptureCommand, cfg.CaptureTimeout),
		FS:       afero.NewOsFs(),
		Logger:   log,
	}
}

// Select prefers the PIR sensor and falls back to the camera. A PIR choice
// waits out the sensor's stabilization delay before returning.
func (s Selector) Select(ctx context.Context, cfg Config) (Strategy, error) {
	switch cfg.Strategy {
	case "", config.StrategyAuto, config.StrategyPIR:
	case config.StrategyCamera:
		s.Logger.Info().Msg("Camera motion detection forced by configuration")
		return s.camera(cfg)
	default:
		return nil, errors.New().WithData(ErrUnknownVariant, cfg.Strategy)
	}

	pin, err := s.OpenPin(cfg.Pin)
	if err != nil {
		if cfg.Strategy == config.StrategyPIR {
			s.Logger.Warn().Err(err).Msg("PIR sensor forced but unavailable, falling back to camera")
		} else {
			s.Logger.Info().Err(err).Msg("PIR sensor unavailable, using camera")
		}
		return s.camera(cfg)
	}

	delay := cfg.StabilizationDelay
	if delay < 0 {
		delay = 0
	}
	s.Logger.Info().Msgf("PIR sensor on %s, stabilizing for %s", cfg.Pin, delay)

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
	}

	return NewPIR(pin, cfg.PIRInterval, s.Logger), nil
}

func (s Selector) camera(cfg Config) (Strategy, error) {
	c, err := NewCamera(s.FS, cfg, s.Capturer, s.Logger)
	if err != nil {
		return nil, err
	}
	s.Logger.Info().Msgf("Camera motion detection, sensitivity %d (threshold %.1f%%)", cfg.Sensitivity, c.Threshold())
	return c, nil
}

// Run polls s every interval and forwards events to sink until ctx is done.
func Run(ctx context.Context, s Strategy, sink Sink) {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	for {
		if e, ok := s.Poll(ctx); ok {
			sink.HandleMotion(e)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ConfigFrom converts the loaded configuration section.
func ConfigFrom(c config.MotionConfig) Config {
	return Config{
		Strategy:           c.Strategy,
		Pin:                c.Pin,
		Sensitivity:        c.Sensitivity,
		PIRInterval:        c.PIRInterval,
		CameraInterval:     c.CameraInterval,
		StabilizationDelay: c.StabilizationDelay,
		CaptureDir:         c.CaptureDir,
		CaptureCommand:     c.CaptureCommand,
		CaptureTimeout:     c.CaptureTimeout,
		CaptureBackoff:     c.CaptureBackoff,
	}
}
