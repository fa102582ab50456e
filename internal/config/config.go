package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel     = LogLevelInfo
	DefaultEnvPrefix    = "PIMONITORD"
	defaultConfigName   = "pimonitord"
	defaultConfigDir    = "/etc"
	configPathEnvSuffix = "_CONFIG"
)

type Config struct {
	Interval  time.Duration   `mapstructure:"interval"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFile   string          `mapstructure:"log_file"`
	Display   DisplayConfig   `mapstructure:"display"`
	Motion    MotionConfig    `mapstructure:"motion"`
	Fan       FanConfig       `mapstructure:"fan"`
	Board     BoardConfig     `mapstructure:"board"`
	OLED      OLEDConfig      `mapstructure:"oled"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type DisplayConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	Policy         string        `mapstructure:"policy"`
	Output         string        `mapstructure:"output"`
	X11Display     string        `mapstructure:"x11_display"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type MotionConfig struct {
	Strategy           string        `mapstructure:"strategy"`
	Pin                string        `mapstructure:"pin"`
	Sensitivity        int           `mapstructure:"sensitivity"`
	PIRInterval        time.Duration `mapstructure:"pir_interval"`
	CameraInterval     time.Duration `mapstructure:"camera_interval"`
	StabilizationDelay time.Duration `mapstructure:"stabilization_delay"`
	CaptureDir         string        `mapstructure:"capture_dir"`
	CaptureCommand     string        `mapstructure:"capture_command"`
	CaptureTimeout     time.Duration `mapstructure:"capture_timeout"`
	CaptureBackoff     time.Duration `mapstructure:"capture_backoff"`
}

type FanConfig struct {
	High    float64 `mapstructure:"high"`
	Low     float64 `mapstructure:"low"`
	MinDuty int     `mapstructure:"min_duty"`
	MaxDuty int     `mapstructure:"max_duty"`
}

type BoardConfig struct {
	Bus     string `mapstructure:"bus"`
	Address int    `mapstructure:"address"`
}

type OLEDConfig struct {
	Address int `mapstructure:"address"`
}

type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

var defaults = map[string]any{
	"interval":  "1s",
	"log_level": string(DefaultLogLevel),
	"log_file":  "",

	"display.timeout":         "60s",
	"display.policy":          PolicyTryAll,
	"display.output":          "DSI-1",
	"display.x11_display":     ":0",
	"display.command_timeout": "5s",

	"motion.strategy":            StrategyAuto,
	"motion.pin":                 "GPIO23",
	"motion.sensitivity":         30,
	"motion.pir_interval":        "200ms",
	"motion.camera_interval":     "500ms",
	"motion.stabilization_delay": "5s",
	"motion.capture_dir":         "/tmp/motion_frames",
	"motion.capture_command":     "rpicam-still",
	"motion.capture_timeout":     "5s",
	"motion.capture_backoff":     "1s",

	"fan.high":     50.0,
	"fan.low":      40.0,
	"fan.min_duty": 0,
	"fan.max_duty": 255,

	"board.bus":     "1",
	"board.address": 0x21,
	"oled.address":  0x3C,

	"metrics.enabled":       false,
	"metrics.db_path":       "/var/lib/pimonitord/metrics.db",
	"metrics.batch_size":    60,
	"metrics.batch_timeout": "30s",

	"telemetry.enabled": false,
	"telemetry.listen":  "127.0.0.1:9105",
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"interval":        "interval",
	"log-level":       "log_level",
	"log-file":        "log_file",
	"display-timeout": "display.timeout",
	"motion":          "motion.strategy",
	"sensitivity":     "motion.sensitivity",
	"metrics":         "metrics.enabled",
	"telemetry":       "telemetry.enabled",
	"listen":          "telemetry.listen",
}

// RegisterFlags defines the daemon's command line flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the TOML configuration file")
	fs.Duration("interval", time.Second, "Control loop interval")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.String("log-file", "", "Also write logs to this rotating file")
	fs.Duration("display-timeout", 60*time.Second, "Turn the display off after this much inactivity")
	fs.String("motion", StrategyAuto, "Motion strategy (auto, pir, camera)")
	fs.Int("sensitivity", 30, "Camera motion sensitivity (0-100)")
	fs.Bool("metrics", false, "Record samples to the metrics database")
	fs.Bool("telemetry", false, "Serve Prometheus metrics and status over HTTP")
	fs.String("listen", "127.0.0.1:9105", "Telemetry listen address")
}

// Load reads defaults, the config file, environment and flags, in increasing
// order of precedence, and validates the result.
func Load(flags *pflag.FlagSet, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}
	if o.configPath == "" {
		o.configPath = os.Getenv(o.envPrefix + configPathEnvSuffix)
	}
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			o.configPath = f.Value.String()
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("toml")
	if o.configPath != "" {
		v.SetConfigFile(o.configPath)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(defaultConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	errFactory := errors.New()
	invalid := func(format string, args ...any) error {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval.String())
	}

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Display.Timeout <= 0 {
		return invalid("display.timeout must be positive, got %s", c.Display.Timeout)
	}
	if c.Display.CommandTimeout <= 0 {
		return invalid("display.command_timeout must be positive, got %s", c.Display.CommandTimeout)
	}
	switch c.Display.Policy {
	case PolicyTryAll, PolicyFirstSuccess:
	default:
		return invalid("display.policy must be %q or %q, got %q", PolicyTryAll, PolicyFirstSuccess, c.Display.Policy)
	}

	switch c.Motion.Strategy {
	case StrategyAuto, StrategyPIR, StrategyCamera:
	default:
		return invalid("motion.strategy must be auto, pir or camera, got %q", c.Motion.Strategy)
	}
	if c.Motion.Sensitivity < 0 || c.Motion.Sensitivity > 100 {
		return invalid("motion.sensitivity must be within 0..100, got %d", c.Motion.Sensitivity)
	}
	if c.Motion.PIRInterval <= 0 || c.Motion.CameraInterval <= 0 {
		return invalid("motion poll intervals must be positive")
	}
	if c.Motion.StabilizationDelay < 0 {
		return invalid("motion.stabilization_delay must not be negative")
	}
	if c.Motion.CaptureDir == "" || c.Motion.CaptureCommand == "" {
		return invalid("motion.capture_dir and motion.capture_command are required")
	}

	if c.Fan.High <= c.Fan.Low {
		return invalid("fan.high (%v) must be greater than fan.low (%v)", c.Fan.High, c.Fan.Low)
	}
	if c.Fan.MinDuty < 0 || c.Fan.MaxDuty > 255 || c.Fan.MinDuty >= c.Fan.MaxDuty {
		return invalid("fan duty range must satisfy 0 <= min_duty < max_duty <= 255, got %d..%d",
			c.Fan.MinDuty, c.Fan.MaxDuty)
	}

	if c.Board.Address <= 0 || c.Board.Address > 0x7f || c.OLED.Address <= 0 || c.OLED.Address > 0x7f {
		return invalid("I2C addresses must be 7-bit")
	}

	if c.Metrics.Enabled && c.Metrics.DBPath == "" {
		return invalid("metrics.db_path is required when metrics are enabled")
	}
	if c.Telemetry.Enabled && c.Telemetry.Listen == "" {
		return invalid("telemetry.listen is required when telemetry is enabled")
	}

	return nil
}
