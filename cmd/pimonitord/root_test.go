package main

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"codeberg.org/mutker/pimonitor/internal/board"
	"codeberg.org/mutker/pimonitor/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitFailureCancelledIsCleanExit(t *testing.T) {
	err := errors.New().Wrap(errors.ErrInitFailed, fmt.Errorf("stabilizing PIR: %w", context.Canceled)).
		WithMessage("motion detection unavailable")

	assert.NoError(t, initFailure(err))
}

func TestInitFailureWrapsOtherErrors(t *testing.T) {
	err := errors.New().Wrap(errors.ErrInitFailed, fmt.Errorf("i2c: no ack from 0x21"))

	got := initFailure(err)
	require.Error(t, got)
	assert.True(t, errors.HasCode(got, errors.ErrInitApp))
	assert.True(t, errors.HasCode(got, errors.ErrInitFailed))
}

func TestSubcommandsRegistered(t *testing.T) {
	root := newRootCommand()

	for _, name := range []string{"ledtest", "board"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestPrintInfo(t *testing.T) {
	var buf bytes.Buffer
	printInfo(&buf, board.Info{
		Brand:         "Freenove",
		Version:       "V1.0",
		FanFrequency:  50,
		FanDuty:       [2]int{255, 255},
		ThresholdLow:  30,
		ThresholdHigh: 45,
	})

	out := buf.String()
	assert.Contains(t, out, "Freenove")
	assert.Contains(t, out, "50 Hz")
	assert.Contains(t, out, "255 / 255")
	assert.Contains(t, out, "30..45")
}
