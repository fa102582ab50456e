package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrInvalidConfig)
	assert.Equal(t, "Invalid configuration", err.Error())
	assert.Equal(t, errors.ErrInvalidConfig, err.Code())

	wrapped := errFactory.Wrap(errors.ErrReadConfig, fmt.Errorf("boom"))
	assert.Equal(t, "Failed to read config file: boom", wrapped.Error())

	withData := errFactory.WithData(errors.ErrInvalidConfig, "fan.high must exceed fan.low")
	assert.Equal(t, "Invalid configuration: fan.high must exceed fan.low", withData.Error())

	custom := errFactory.New(errors.ErrorCode("board_write_failed"))
	assert.Equal(t, "board_write_failed", custom.Error())
}

func TestHasCode(t *testing.T) {
	errFactory := errors.New()
	inner := errFactory.New(errors.ErrCommandFailed)
	outer := errFactory.Wrap(errors.ErrInitFailed, fmt.Errorf("power on: %w", inner))

	assert.True(t, errors.HasCode(outer, errors.ErrInitFailed))
	assert.True(t, errors.HasCode(outer, errors.ErrCommandFailed))
	assert.False(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.False(t, errors.HasCode(nil, errors.ErrTimeout))
	assert.False(t, errors.HasCode(fmt.Errorf("plain"), errors.ErrTimeout))
}
