package motion

import "codeberg.org/mutker/pimonitor/internal/errors"

const (
	ErrCaptureFailed  = errors.ErrorCode("motion_capture_failed")
	ErrCaptureDir     = errors.ErrorCode("motion_capture_dir_failed")
	ErrGPIOInit       = errors.ErrorCode("motion_gpio_init_failed")
	ErrPinNotFound    = errors.ErrorCode("motion_pin_not_found")
	ErrPinConfigure   = errors.ErrorCode("motion_pin_configure_failed")
	ErrCleanupFrames  = errors.ErrorCode("motion_cleanup_frames_failed")
	ErrUnknownVariant = errors.ErrorCode("motion_unknown_strategy")
)
