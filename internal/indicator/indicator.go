package indicator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/sensor"
)

// Channel is an LED position on the expansion board.
type Channel uint8

const (
	ChannelTemperature Channel = iota
	ChannelLoad
	ChannelDiskActivity
	ChannelHealth
)

// ChannelCount is the number of indicator LEDs.
const ChannelCount = 4

// DiskGraceWindow keeps the disk indicator active after the last I/O.
const DiskGraceWindow = 2 * time.Second

type Temperature int

const (
	TemperatureCool Temperature = iota
	TemperatureWarm
	TemperatureHot
	TemperatureVeryHot
)

func (t Temperature) String() string {
	return [...]string{"cool", "warm", "hot", "very_hot"}[t]
}

type Load int

const (
	LoadLow Load = iota
	LoadLight
	LoadModerate
	LoadHeavy
)

func (l Load) String() string {
	return [...]string{"low", "light", "moderate", "heavy"}[l]
}

type DiskActivity int

const (
	DiskIdle DiskActivity = iota
	DiskActive
	DiskFull
)

func (d DiskActivity) String() string {
	return [...]string{"idle", "active", "full"}[d]
}

type Health int

const (
	HealthNormal Health = iota
	HealthWarning
	HealthCritical
)

func (h Health) String() string {
	return [...]string{"normal", "warning", "critical"}[h]
}

// States is the indicator output for one tick.
type States struct {
	Temperature  Temperature
	Load         Load
	DiskActivity DiskActivity
	Health       Health
	// Tripped lists the metrics that pushed Health to Critical.
	Tripped []string
}

func TemperatureLevel(celsius float64) Temperature {
	switch {
	case celsius < 40:
		return TemperatureCool
	case celsius < 50:
		return TemperatureWarm
	case celsius < 60:
		return TemperatureHot
	default:
		return TemperatureVeryHot
	}
}

func LoadLevel(cpuPercent float64) Load {
	switch {
	case cpuPercent < 25:
		return LoadLow
	case cpuPercent < 50:
		return LoadLight
	case cpuPercent < 75:
		return LoadModerate
	default:
		return LoadHeavy
	}
}

// HealthLevel returns the overall tier and, for Critical, the metrics that
// crossed their critical limit.
func HealthLevel(temp, cpu, mem, disk float64) (Health, []string) {
	var tripped []string
	check := func(name string, value, limit float64) {
		if value > limit {
			tripped = append(tripped, fmt.Sprintf("%s=%.1f", name, value))
		}
	}
	check("temp", temp, 70)
	check("cpu", cpu, 90)
	check("mem", mem, 90)
	check("disk", disk, 95)
	if len(tripped) > 0 {
		return HealthCritical, tripped
	}

	if temp > 55 || cpu > 75 || mem > 80 || disk > 85 {
		return HealthWarning, nil
	}
	return HealthNormal, nil
}

// DiskTracker turns the cumulative I/O counter into an activity indicator.
type DiskTracker struct {
	mu           sync.Mutex
	seeded       bool
	lastBytes    uint64
	lastActivity time.Time
}

// Observe records one tick. A failed counter read counts as no activity; the
// first successful read only seeds the counter.
func (d *DiskTracker) Observe(now time.Time, diskPercent float64, bytes uint64, ok bool) DiskActivity {
	d.mu.Lock()
	defer d.mu.Unlock()

	active := false
	if ok {
		if d.seeded && bytes != d.lastBytes {
			active = true
			d.lastActivity = now
		}
		d.lastBytes = bytes
		d.seeded = true
	}

	switch {
	case diskPercent > 90:
		return DiskFull
	case active:
		return DiskActive
	case !d.lastActivity.IsZero() && now.Sub(d.lastActivity) < DiskGraceWindow:
		return DiskActive
	default:
		return DiskIdle
	}
}

// Mapper derives indicator states from sensor snapshots.
type Mapper struct {
	disk DiskTracker
}

func NewMapper() *Mapper {
	return &Mapper{}
}

func (m *Mapper) Map(s sensor.Snapshot) States {
	health, tripped := HealthLevel(s.CPUTemp, s.CPUPercent, s.MemPercent, s.DiskPercent)
	return States{
		Temperature:  TemperatureLevel(s.CPUTemp),
		Load:         LoadLevel(s.CPUPercent),
		DiskActivity: m.disk.Observe(s.Timestamp, s.DiskPercent, s.DiskIOBytes, s.DiskIOOK),
		Health:       health,
		Tripped:      tripped,
	}
}

// TrippedString joins the tripped metrics for logging.
func (s States) TrippedString() string {
	return strings.Join(s.Tripped, ",")
}
