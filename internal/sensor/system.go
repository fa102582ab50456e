package sensor

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	defaultThermalZone  = "/sys/devices/virtual/thermal/thermal_zone0/temp"
	defaultFanHwmonBase = "/sys/devices/platform/cooling_fan/hwmon"
	defaultDiskPath     = "/"
	defaultPWMRetries   = 3
	defaultPWMDelay     = 100 * time.Millisecond
	secondsPerDay       = 24 * 60 * 60
)

// Options overrides the sysfs locations and retry policy.
type Options struct {
	ThermalZone  string
	FanHwmonBase string
	DiskPath     string
	PWMRetries   int
	PWMDelay     time.Duration
}

func (o Options) withDefaults() Options {
	if o.ThermalZone == "" {
		o.ThermalZone = defaultThermalZone
	}
	if o.FanHwmonBase == "" {
		o.FanHwmonBase = defaultFanHwmonBase
	}
	if o.DiskPath == "" {
		o.DiskPath = defaultDiskPath
	}
	if o.PWMRetries <= 0 {
		o.PWMRetries = defaultPWMRetries
	}
	if o.PWMDelay <= 0 {
		o.PWMDelay = defaultPWMDelay
	}
	return o
}

// System reads the host through gopsutil and sysfs, and the expansion board
// through its registers.
type System struct {
	board  BoardReader
	opts   Options
	logger logger.Logger

	mu         sync.Mutex
	fanPWMPath string
}

// NewSystem returns a Reader. board may be nil, in which case the board
// readings report their fallbacks.
func NewSystem(board BoardReader, opts Options, log logger.Logger) *System {
	return &System{
		board:  board,
		opts:   opts.withDefaults(),
		logger: log,
	}
}

// valueOr returns fallback when err is set.
func valueOr[T any](v T, err error, fallback T) T {
	if err != nil {
		return fallback
	}
	return v
}

// orElse adapts a (value, error) reading to valueOr, logging the failure.
func orElse[T any](log logger.Logger, fallback T) func(T, error) T {
	return func(v T, err error) T {
		if err != nil {
			log.Debug().Err(err).Msg("Sensor read failed, using fallback")
		}
		return valueOr(v, err, fallback)
	}
}

func (s *System) Read(ctx context.Context) Snapshot {
	snap := Snapshot{Timestamp: time.Now()}

	snap.CPUPercent = orElse(s.logger, 0.0)(s.CPUPercent(ctx))
	snap.MemPercent = orElse(s.logger, 0.0)(s.MemoryPercent(ctx))
	snap.DiskPercent = orElse(s.logger, 0.0)(s.DiskPercent(ctx))
	snap.UptimeDays = orElse(s.logger, 0)(s.UptimeDays(ctx))

	temp, err := s.CPUTemperature()
	snap.CPUTemp = orElse(s.logger, 0.0)(temp, err)
	snap.CPUTempOK = err == nil

	io, err := s.DiskIOBytes(ctx)
	snap.DiskIOBytes = orElse(s.logger, uint64(0))(io, err)
	snap.DiskIOOK = err == nil

	snap.FanPWM = orElse(s.logger, FanPWMUnavailable)(s.FanPWM(ctx))

	snap.BoardTemp = orElse(s.logger, 0)(s.boardRead(BoardReader.Temperature))
	snap.FanMode = orElse(s.logger, 0)(s.boardRead(BoardReader.FanMode))
	snap.FanDuty = orElse(s.logger, 0)(s.boardRead(BoardReader.FanDuty))
	snap.LEDMode = orElse(s.logger, 0)(s.boardRead(BoardReader.LEDMode))

	return snap
}

func (s *System) CPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, errors.New().Wrap(ErrCPUUsage, err)
	}
	if len(percents) == 0 {
		return 0, errors.New().New(ErrCPUUsage)
	}
	return percents[0], nil
}

func (s *System) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, errors.New().Wrap(ErrMemoryUsage, err)
	}
	return vm.UsedPercent, nil
}

func (s *System) DiskPercent(ctx context.Context) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, s.opts.DiskPath)
	if err != nil {
		return 0, errors.New().Wrap(ErrDiskUsage, err)
	}
	return usage.UsedPercent, nil
}

// DiskIOBytes sums read and write bytes over every disk.
func (s *System) DiskIOBytes(ctx context.Context) (uint64, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return 0, errors.New().Wrap(ErrDiskIO, err)
	}

	var total uint64
	for _, c := range counters {
		total += c.ReadBytes + c.WriteBytes
	}
	return total, nil
}

func (s *System) UptimeDays(ctx context.Context) (int, error) {
	seconds, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, errors.New().Wrap(ErrUptime, err)
	}
	return daysFromSeconds(seconds), nil
}

func daysFromSeconds(seconds uint64) int {
	return int(seconds / secondsPerDay)
}

// CPUTemperature reads the SoC thermal zone in °C.
func (s *System) CPUTemperature() (float64, error) {
	milli, err := readInt(s.opts.ThermalZone)
	if err != nil {
		return 0, errors.New().Wrap(ErrTemperature, err)
	}
	return float64(milli) / 1000.0, nil
}

// FanPWM reads the cooling fan PWM, clamped to 0..255. The hwmon path is
// looked up once and cached; reads are retried with a fixed delay.
func (s *System) FanPWM(ctx context.Context) (int, error) {
	var lastErr error

	for attempt := 0; attempt <= s.opts.PWMRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return FanPWMUnavailable, errors.New().Wrap(ErrFanPWM, ctx.Err())
			case <-time.After(s.opts.PWMDelay):
			}
		}

		path, err := s.pwmPath()
		if err != nil {
			lastErr = err
			continue
		}

		value, err := readInt(path)
		if err != nil {
			lastErr = err
			s.forgetPWMPath()
			continue
		}

		return min(max(value, 0), 255), nil
	}

	return FanPWMUnavailable, errors.New().Wrap(ErrFanPWM, lastErr)
}

func (s *System) pwmPath() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fanPWMPath != "" {
		return s.fanPWMPath, nil
	}

	matches, err := filepath.Glob(filepath.Join(s.opts.FanHwmonBase, "hwmon*", "pwm1"))
	if err != nil {
		return "", errors.New().Wrap(ErrFanPWMNotFound, err)
	}
	if len(matches) == 0 {
		return "", errors.New().WithData(ErrFanPWMNotFound, s.opts.FanHwmonBase)
	}
	sort.Strings(matches)
	s.fanPWMPath = matches[0]

	return s.fanPWMPath, nil
}

func (s *System) forgetPWMPath() {
	s.mu.Lock()
	s.fanPWMPath = ""
	s.mu.Unlock()
}

func (s *System) boardRead(fn func(BoardReader) (int, error)) (int, error) {
	if s.board == nil {
		return 0, errors.New().New(ErrNoBoard)
	}
	return fn(s.board)
}

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
