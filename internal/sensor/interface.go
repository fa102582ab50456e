package sensor

import (
	"context"
	"time"
)

// Reader produces one snapshot per control loop tick. Implementations never
// fail: every field falls back to its documented default.
type Reader interface {
	Read(ctx context.Context) Snapshot
}

// BoardReader is the subset of the expansion board the readers poll.
type BoardReader interface {
	Temperature() (int, error)
	FanMode() (int, error)
	FanDuty() (int, error)
	LEDMode() (int, error)
}

// Snapshot is the set of scalar readings taken in one tick.
type Snapshot struct {
	Timestamp time.Time

	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64

	// CPUTemp is in °C; CPUTempOK is false when the thermal zone was unreadable.
	CPUTemp   float64
	CPUTempOK bool

	BoardTemp int
	// FanPWM is the SoC cooling fan PWM (0..255), or FanPWMUnavailable.
	FanPWM  int
	FanDuty int
	FanMode int
	LEDMode int

	UptimeDays int

	// DiskIOBytes is the cumulative read+write byte count across all disks.
	DiskIOBytes uint64
	DiskIOOK    bool
}

// FanPWMUnavailable is the sentinel reported when the PWM cannot be read.
const FanPWMUnavailable = -1
