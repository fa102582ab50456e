package motion

import (
	"context"
	"time"

	"codeberg.org/mutker/pimonitor/internal/logger"
)

const (
	DefaultPIRInterval = 200 * time.Millisecond
	pirLogInterval     = 30 * time.Second
	pirLongActivity    = 5 * time.Second
)

// PIR detects motion on the rising edge of a digital input.
type PIR struct {
	pin      Pin
	interval time.Duration
	now      func() time.Time
	throttle *logger.Throttle
	logger   logger.Logger

	last        bool
	activeSince time.Time
}

func NewPIR(pin Pin, interval time.Duration, log logger.Logger) *PIR {
	if interval <= 0 {
		interval = DefaultPIRInterval
	}
	return &PIR{
		pin:      pin,
		interval: interval,
		now:      time.Now,
		throttle: logger.NewThrottle(pirLogInterval),
		logger:   log,
	}
}

func (p *PIR) Name() string            { return string(SourcePIR) }
func (p *PIR) Interval() time.Duration { return p.interval }

func (p *PIR) Poll(_ context.Context) (Event, bool) {
	now := p.now()
	value := p.pin.Read()
	defer func() { p.last = value }()

	switch {
	case value && !p.last:
		p.activeSince = now
		if p.throttle.Allow(now) {
			p.logger.Info().Msg("PIR motion detected")
		}
		return Event{Timestamp: now, Source: SourcePIR}, true
	case !value && p.last:
		if d := now.Sub(p.activeSince); d > pirLongActivity {
			p.logger.Debug().Dur("duration", d).Msg("PIR motion ended")
		}
	}

	return Event{}, false
}

// Close is a no-op; the pin is released with the GPIO host.
func (p *PIR) Close() error {
	return nil
}
