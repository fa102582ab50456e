package display

import "codeberg.org/mutker/pimonitor/internal/errors"

const (
	ErrAllMethodsFailed = errors.ErrorCode("display_all_methods_failed")
	ErrMethodFailed     = errors.ErrorCode("display_method_failed")
	ErrNoMethods        = errors.ErrorCode("display_no_methods")
	ErrUnknownPolicy    = errors.ErrorCode("display_unknown_policy")
)
