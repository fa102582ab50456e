package telemetry

import "codeberg.org/mutker/pimonitor/internal/errors"

var errFactory = errors.New()

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidListen = errors.ErrorCode("telemetry_invalid_listen")
	ErrInvalidSample = errors.ErrorCode("telemetry_invalid_sample")
	ErrRegister      = errors.ErrorCode("telemetry_register_failed")
	ErrServe         = errors.ErrorCode("telemetry_serve_failed")
	ErrShutdown      = errors.ErrShutdownFailed
)
