package monitor

import (
	"context"
	"time"

	"codeberg.org/mutker/pimonitor/internal/display"
	"codeberg.org/mutker/pimonitor/internal/fan"
	"codeberg.org/mutker/pimonitor/internal/indicator"
	"codeberg.org/mutker/pimonitor/internal/motion"
	"codeberg.org/mutker/pimonitor/internal/sensor"
)

type DisplayController interface {
	motion.Sink
	CheckTimeout(now time.Time) display.Transition
	State() display.State
	Run(ctx context.Context)
}

type FanController interface {
	Evaluate(signal float64, ok bool) (fan.State, error)
}

type IndicatorMapper interface {
	Map(s sensor.Snapshot) indicator.States
}

type LEDSink interface {
	Apply(states indicator.States) error
}

type Renderer interface {
	Render(screen int, s sensor.Snapshot) error
	Close() error
}
