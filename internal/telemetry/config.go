package telemetry

import "codeberg.org/mutker/pimonitor/internal/config"

const (
	defaultListen = "127.0.0.1:9105"
	namespace     = "pimonitord"
)

type Config struct {
	Enabled bool
	Listen  string
}

func DefaultConfig() Config {
	return Config{
		Enabled: false, // Disabled by default
		Listen:  defaultListen,
	}
}

// FromConfig converts the loaded configuration section.
func FromConfig(c config.TelemetryConfig) Config {
	return Config{Enabled: c.Enabled, Listen: c.Listen}
}

func (c Config) Validate() error {
	if c.Enabled && c.Listen == "" {
		return errFactory.New(ErrInvalidListen)
	}
	return nil
}
