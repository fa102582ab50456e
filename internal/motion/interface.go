package motion

import (
	"context"
	"time"
)

// Source identifies the strategy that produced an event.
type Source string

const (
	SourcePIR    Source = "pir"
	SourceCamera Source = "camera"
)

// Event reports motion detected at Timestamp.
type Event struct {
	Timestamp time.Time
	Source    Source
}

// Strategy is a motion detection variant. Poll is called every Interval by
// the runner; a poll failure reports no motion.
type Strategy interface {
	Name() string
	Interval() time.Duration
	Poll(ctx context.Context) (Event, bool)
	Close() error
}

// Sink consumes motion events.
type Sink interface {
	HandleMotion(e Event)
}

// Pin is a digital input.
type Pin interface {
	Read() bool
}

// Capturer writes a still frame to path.
type Capturer interface {
	Capture(ctx context.Context, path string) error
}

// Config is the immutable detector configuration.
type Config struct {
	Strategy           string
	Pin                string
	Sensitivity        int
	PIRInterval        time.Duration
	CameraInterval     time.Duration
	StabilizationDelay time.Duration
	CaptureDir         string
	CaptureCommand     string
	CaptureTimeout     time.Duration
	CaptureBackoff     time.Duration
}
