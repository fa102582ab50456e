package board

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddress is the factory I2C address of the expansion board.
const DefaultAddress = 0x21

const (
	regLEDSpecified = 0x01
	regLEDAll       = 0x02
	regLEDMode      = 0x03
	regFanMode      = 0x04
	regFanFrequency = 0x05
	regFanDuty      = 0x06
	regFanThreshold = 0x07
	regPowerOnCheck = 0x08
	regSaveFlash    = 0xff

	regLEDModeRead      = 0xf6
	regFanModeRead      = 0xf7
	regFanFrequencyRead = 0xf8
	regFan0Duty         = 0xf9
	regFan1Duty         = 0xfa
	regFanThresholdRead = 0xfb
	regTemperature      = 0xfc
	regBrand            = 0xfd
	regVersion          = 0xfe

	brandLength   = 9
	versionLength = 14
)

// Board talks to the expansion board over a single I2C device. Transfers are
// serialized because the motion, control and shutdown paths can all touch it.
type Board struct {
	dev    i2c.Dev
	closer io.Closer
	mu     sync.Mutex
	logger logger.Logger
}

// Open initializes the host drivers, opens the named I2C bus and probes the
// board at addr.
func Open(busName string, addr uint16, log logger.Logger) (*Board, error) {
	errFactory := errors.New()

	if _, err := host.Init(); err != nil {
		return nil, errFactory.Wrap(ErrOpenBus, err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenBus, err)
	}

	b := New(bus, addr, log)
	b.closer = bus

	version, err := b.Version()
	if err != nil {
		bus.Close()
		return nil, errFactory.Wrap(ErrBoardNotFound, err)
	}

	brand, err := b.Brand()
	if err != nil {
		log.Debug().Err(err).Msg("Could not read board brand")
	}

	log.Info().
		Str("bus", busName).
		Str("brand", brand).
		Str("address", fmt.Sprintf("0x%02x", addr)).
		Str("version", version).
		Msg("Expansion board detected")

	return b, nil
}

// New wraps an already opened bus. The caller keeps ownership of the bus.
func New(bus i2c.Bus, addr uint16, log logger.Logger) *Board {
	return &Board{
		dev:    i2c.Dev{Bus: bus, Addr: addr},
		logger: log,
	}
}

func (b *Board) write(reg byte, values ...byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.dev.Write(append([]byte{reg}, values...)); err != nil {
		return errors.New().WithData(ErrWriteFailed, registerError{
			Register: fmt.Sprintf("0x%02x", reg),
			Error:    err.Error(),
		})
	}

	return nil
}

func (b *Board) read(reg byte, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := make([]byte, n)
	if err := b.dev.Tx([]byte{reg}, buf); err != nil {
		return nil, errors.New().WithData(ErrReadFailed, registerError{
			Register: fmt.Sprintf("0x%02x", reg),
			Error:    err.Error(),
		})
	}

	return buf, nil
}

func (b *Board) readByte(reg byte) (int, error) {
	buf, err := b.read(reg, 1)
	if err != nil {
		return 0, err
	}
	return int(buf[0]), nil
}

func (b *Board) SetLEDColor(id, r, g, bl uint8) error {
	if id >= LEDCount {
		return errors.New().WithData(ErrInvalidLED, id)
	}
	return b.write(regLEDSpecified, id, r, g, bl)
}

func (b *Board) SetAllLEDColor(r, g, bl uint8) error {
	return b.write(regLEDAll, r, g, bl)
}

func (b *Board) SetLEDMode(mode uint8) error {
	return b.write(regLEDMode, mode)
}

func (b *Board) SetFanMode(mode uint8) error {
	return b.write(regFanMode, mode)
}

func (b *Board) SetFanFrequency(hz uint32) error {
	return b.write(regFanFrequency, byte(hz>>24), byte(hz>>16), byte(hz>>8), byte(hz))
}

func (b *Board) SetFanDuty(duty0, duty1 uint8) error {
	return b.write(regFanDuty, duty0, duty1)
}

// SetFanThreshold sets the temperatures (°C) used by the board's own
// automatic fan mode.
func (b *Board) SetFanThreshold(low, high uint8) error {
	if low >= high {
		return errors.New().WithData(ErrInvalidThreshold, [2]uint8{low, high})
	}
	return b.write(regFanThreshold, low, high)
}

func (b *Board) SetPowerOnCheck(state uint8) error {
	return b.write(regPowerOnCheck, state)
}

// SaveFlash persists the current register settings across power cycles.
func (b *Board) SaveFlash(state uint8) error {
	return b.write(regSaveFlash, state)
}

func (b *Board) Temperature() (int, error) {
	return b.readByte(regTemperature)
}

func (b *Board) FanMode() (int, error) {
	return b.readByte(regFanModeRead)
}

func (b *Board) FanDuty() (int, error) {
	return b.readByte(regFan0Duty)
}

func (b *Board) Fan1Duty() (int, error) {
	return b.readByte(regFan1Duty)
}

func (b *Board) FanFrequency() (uint32, error) {
	buf, err := b.read(regFanFrequencyRead, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

func (b *Board) FanThreshold() (low, high int, err error) {
	buf, err := b.read(regFanThresholdRead, 2)
	if err != nil {
		return 0, 0, err
	}
	return int(buf[0]), int(buf[1]), nil
}

func (b *Board) LEDMode() (int, error) {
	return b.readByte(regLEDModeRead)
}

func (b *Board) Version() (string, error) {
	return b.readString(regVersion, versionLength)
}

func (b *Board) Brand() (string, error) {
	return b.readString(regBrand, brandLength)
}

func (b *Board) readString(reg byte, n int) (string, error) {
	buf, err := b.read(reg, n)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf, "\x00")), nil
}

// Bus returns the underlying I2C bus, shared with other devices on it.
func (b *Board) Bus() i2c.Bus {
	return b.dev.Bus
}

// Close releases the bus if Open created it.
func (b *Board) Close() error {
	if b.closer == nil {
		return nil
	}

	if err := b.closer.Close(); err != nil {
		return errors.New().Wrap(ErrCloseFailed, err)
	}
	b.closer = nil

	return nil
}

// Reset leaves the board in its idle state: LEDs dark in RGB mode and the fan
// stopped. Every step is attempted; the failures are joined.
func Reset(b Expansion) error {
	return errors.Join(
		b.SetLEDMode(LEDModeRGB),
		b.SetAllLEDColor(0, 0, 0),
		b.SetFanMode(FanModeOff),
		b.SetFanFrequency(DefaultFanFrequency),
		b.SetFanDuty(0, 0),
	)
}
