package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/pimonitor/internal/config"
	"codeberg.org/mutker/pimonitor/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pimonitord.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
interval = "2s"
log_level = "debug"

[display]
timeout = "90s"
policy = "first-success"

[motion]
strategy = "camera"
sensitivity = 50
capture_dir = "/run/frames"

[fan]
high = 60
low = 45

[metrics]
enabled = true
db_path = "/path/to/metrics.db"
`)

	t.Setenv("PIMONITORD_CONFIG", configPath)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Interval, "Expected Interval 2s")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 90*time.Second, cfg.Display.Timeout)
	assert.Equal(t, config.PolicyFirstSuccess, cfg.Display.Policy)
	assert.Equal(t, config.StrategyCamera, cfg.Motion.Strategy)
	assert.Equal(t, 50, cfg.Motion.Sensitivity)
	assert.Equal(t, "/run/frames", cfg.Motion.CaptureDir)
	assert.InDelta(t, 60.0, cfg.Fan.High, 0.001)
	assert.InDelta(t, 45.0, cfg.Fan.Low, 0.001)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/path/to/metrics.db", cfg.Metrics.DBPath)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PIMONITORD_CONFIG", "")

	cfg, err := config.Load(nil, config.WithConfigFile(""))
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, string(config.DefaultLogLevel), cfg.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.Display.Timeout)
	assert.Equal(t, config.PolicyTryAll, cfg.Display.Policy)
	assert.Equal(t, 5*time.Second, cfg.Display.CommandTimeout)
	assert.Equal(t, config.StrategyAuto, cfg.Motion.Strategy)
	assert.Equal(t, "GPIO23", cfg.Motion.Pin)
	assert.Equal(t, 30, cfg.Motion.Sensitivity)
	assert.Equal(t, 200*time.Millisecond, cfg.Motion.PIRInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Motion.CameraInterval)
	assert.Equal(t, 5*time.Second, cfg.Motion.StabilizationDelay)
	assert.InDelta(t, 50.0, cfg.Fan.High, 0.001)
	assert.InDelta(t, 40.0, cfg.Fan.Low, 0.001)
	assert.Equal(t, 0, cfg.Fan.MinDuty)
	assert.Equal(t, 255, cfg.Fan.MaxDuty)
	assert.Equal(t, 0x21, cfg.Board.Address)
	assert.Equal(t, 0x3C, cfg.OLED.Address)
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfig(t, `
This is not a valid TOML file
`)

	t.Setenv("PIMONITORD_CONFIG", configPath)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "invalid"
`)

	t.Setenv("PIMONITORD_CONFIG", configPath)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestFanThresholdsMustBeOrdered(t *testing.T) {
	configPath := writeConfig(t, `
[fan]
high = 40
low = 50
`)

	t.Setenv("PIMONITORD_CONFIG", configPath)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "fan.high")
}

func TestSensitivityRange(t *testing.T) {
	t.Setenv("PIMONITORD_CONFIG", "")
	t.Setenv("PIMONITORD_MOTION_SENSITIVITY", "101")

	_, err := config.Load(nil, config.WithConfigFile(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "motion.sensitivity")
}

func TestEnvOverridesFile(t *testing.T) {
	configPath := writeConfig(t, `
[display]
timeout = "30s"
`)

	t.Setenv("PIMONITORD_CONFIG", configPath)
	t.Setenv("PIMONITORD_DISPLAY_TIMEOUT", "45s")

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Display.Timeout)
}

func TestLogLevelFlag(t *testing.T) {
	t.Setenv("PIMONITORD_CONFIG", "")

	fs := pflag.NewFlagSet("pimonitord", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level", "debug", "--motion", "pir", "--display-timeout", "2m"}))

	cfg, err := config.Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
	assert.Equal(t, config.StrategyPIR, cfg.Motion.Strategy)
	assert.Equal(t, 2*time.Minute, cfg.Display.Timeout)
}

func TestConfigFlagSelectsFile(t *testing.T) {
	configPath := writeConfig(t, `
interval = "3s"
`)
	t.Setenv("PIMONITORD_CONFIG", "")

	fs := pflag.NewFlagSet("pimonitord", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", configPath}))

	cfg, err := config.Load(fs)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Interval)
}
