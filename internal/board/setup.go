package board

import (
	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
)

// Info is a snapshot of the board's identity and fan registers.
type Info struct {
	Brand         string
	Version       string
	LEDMode       int
	FanMode       int
	FanFrequency  uint32
	FanDuty       [2]int
	ThresholdLow  int
	ThresholdHigh int
}

// ReadInfo reads every identity and fan register. A failed read leaves its
// field zero; the failures are joined.
func ReadInfo(b Expansion) (Info, error) {
	var (
		info Info
		errs []error
	)
	keep := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	info.Brand, err = b.Brand()
	keep(err)
	info.Version, err = b.Version()
	keep(err)
	info.LEDMode, err = b.LEDMode()
	keep(err)
	info.FanMode, err = b.FanMode()
	keep(err)
	info.FanFrequency, err = b.FanFrequency()
	keep(err)
	info.FanDuty[0], err = b.FanDuty()
	keep(err)
	info.FanDuty[1], err = b.Fan1Duty()
	keep(err)
	info.ThresholdLow, info.ThresholdHigh, err = b.FanThreshold()
	keep(err)

	return info, errors.Join(errs...)
}

// Prepare hands the board to the daemon: the fan goes to manual mode and the
// LEDs to RGB mode, where per-LED colors are shown.
func Prepare(b Expansion, log logger.Logger) error {
	errFactory := errors.New()

	if err := b.SetFanMode(FanModeManual); err != nil {
		return errFactory.Wrap(ErrPrepare, err).WithMessage("failed to switch fan to manual mode")
	}
	if err := b.SetLEDMode(LEDModeRGB); err != nil {
		return errFactory.Wrap(ErrPrepare, err).WithMessage("failed to switch LEDs to RGB mode")
	}

	info, err := ReadInfo(b)
	if err != nil {
		log.Debug().Err(err).Msg("Could not read all board registers")
	}
	log.Debug().
		Uint32("fan_frequency", info.FanFrequency).
		Int("fan_threshold_low", info.ThresholdLow).
		Int("fan_threshold_high", info.ThresholdHigh).
		Ints("fan_duty", info.FanDuty[:]).
		Msg("Board under daemon control")

	return nil
}

// Settings govern the board's own fan control while no daemon is running.
type Settings struct {
	ThresholdLow  uint8
	ThresholdHigh uint8
	PowerOnCheck  bool
	Save          bool
}

// Configure writes the standalone fan thresholds and power-on check, and
// persists them to flash when s.Save is set.
func Configure(b Expansion, s Settings) error {
	if err := b.SetFanThreshold(s.ThresholdLow, s.ThresholdHigh); err != nil {
		return err
	}

	var check uint8
	if s.PowerOnCheck {
		check = 1
	}
	if err := b.SetPowerOnCheck(check); err != nil {
		return err
	}

	if s.Save {
		return b.SaveFlash(1)
	}
	return nil
}
