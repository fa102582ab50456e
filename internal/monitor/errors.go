package monitor

import "codeberg.org/mutker/pimonitor/internal/errors"

const (
	ErrInvalidInterval = errors.ErrInvalidInterval
	ErrMissingDep      = errors.ErrorCode("monitor_missing_dependency")
	ErrCleanup         = errors.ErrCleanup
)
