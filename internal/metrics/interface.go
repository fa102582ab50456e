package metrics

import (
	"context"
	"time"
)

// Collector records tick samples for the lifetime of one daemon run.
type Collector interface {
	Record(ctx context.Context, sample *Sample) error
	Session() string
	Close() error
}

// Repository buffers samples and persists them in batches.
type Repository interface {
	Record(sample *Sample) error
	Flush() error
	Close() error
}

// Sample is one control loop tick.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session"`

	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	DiskPercent float64 `json:"disk_percent"`
	CPUTemp     float64 `json:"cpu_temp"`
	BoardTemp   int     `json:"board_temp"`
	FanPWM      int     `json:"fan_pwm"`
	FanDuty     int     `json:"fan_duty"`
	FanEngaged  bool    `json:"fan_engaged"`
	DisplayOn   bool    `json:"display_on"`

	Temperature  string `json:"temperature"`
	Load         string `json:"load"`
	DiskActivity string `json:"disk_activity"`
	Health       string `json:"health"`
}
