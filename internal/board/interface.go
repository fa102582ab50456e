package board

// Expansion drives the I2C expansion board: four RGB LEDs, two fan channels
// and an on-board temperature sensor.
type Expansion interface {
	SetLEDColor(id, r, g, b uint8) error
	SetAllLEDColor(r, g, b uint8) error
	SetLEDMode(mode uint8) error
	SetFanMode(mode uint8) error
	SetFanFrequency(hz uint32) error
	SetFanDuty(duty0, duty1 uint8) error
	SetFanThreshold(low, high uint8) error
	SetPowerOnCheck(state uint8) error
	SaveFlash(state uint8) error

	Temperature() (int, error)
	FanMode() (int, error)
	FanDuty() (int, error)
	Fan1Duty() (int, error)
	FanFrequency() (uint32, error)
	FanThreshold() (low, high int, err error)
	LEDMode() (int, error)
	Brand() (string, error)
	Version() (string, error)

	Close() error
}

// LED modes
const (
	LEDModeRGB       uint8 = 1
	LEDModeFollowing uint8 = 2
	LEDModeBreathing uint8 = 3
	LEDModeRainbow   uint8 = 4
)

// Fan modes
const (
	FanModeOff    uint8 = 0
	FanModeManual uint8 = 1
	FanModeAuto   uint8 = 2
)

// LEDCount is the number of individually addressable LEDs.
const LEDCount = 4

// DefaultFanFrequency is the PWM frequency restored on shutdown.
const DefaultFanFrequency = 50
