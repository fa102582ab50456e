package sensor

import "codeberg.org/mutker/pimonitor/internal/errors"

const (
	ErrCPUUsage       = errors.ErrorCode("sensor_cpu_usage_failed")
	ErrMemoryUsage    = errors.ErrorCode("sensor_memory_usage_failed")
	ErrDiskUsage      = errors.ErrorCode("sensor_disk_usage_failed")
	ErrDiskIO         = errors.ErrorCode("sensor_disk_io_failed")
	ErrUptime         = errors.ErrorCode("sensor_uptime_failed")
	ErrTemperature    = errors.ErrorCode("sensor_temperature_failed")
	ErrFanPWM         = errors.ErrorCode("sensor_fan_pwm_failed")
	ErrFanPWMNotFound = errors.ErrorCode("sensor_fan_pwm_not_found")
	ErrNoBoard        = errors.ErrorCode("sensor_no_board")
)
