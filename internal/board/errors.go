package board

import "codeberg.org/mutker/pimonitor/internal/errors"

const (
	ErrOpenBus          = errors.ErrorCode("board_open_bus_failed")
	ErrBoardNotFound    = errors.ErrorCode("board_not_found")
	ErrWriteFailed      = errors.ErrorCode("board_write_failed")
	ErrReadFailed       = errors.ErrorCode("board_read_failed")
	ErrInvalidLED       = errors.ErrorCode("board_invalid_led")
	ErrInvalidThreshold = errors.ErrorCode("board_invalid_fan_threshold")
	ErrCloseFailed      = errors.ErrorCode("board_close_failed")
	ErrPrepare          = errors.ErrorCode("board_prepare_failed")
)

// registerError describes the register involved in a failed transfer.
type registerError struct {
	Register string
	Error    string
}
