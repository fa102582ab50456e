package telemetry

import (
	"context"

	"codeberg.org/mutker/pimonitor/internal/metrics"
)

// Collector exports tick samples and motion events.
type Collector interface {
	Record(ctx context.Context, sample *metrics.Sample) error
	ObserveMotion(source string)
	Serve(ctx context.Context) error
	Close() error
}

// Status is the JSON body served on /status.
type Status struct {
	Session   string          `json:"session"`
	Ticks     uint64          `json:"ticks"`
	Sample    *metrics.Sample `json:"sample,omitempty"`
	StartedAt string          `json:"started_at"`
}
