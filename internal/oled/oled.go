package oled

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/sensor"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

const (
	Width          = 128
	Height         = 64
	DefaultAddress = 0x3C
	ScreenCount    = 4

	lineHeight = 16
	bigScale   = 3
)

const (
	ErrOpen            = errors.ErrorCode("oled_open_failed")
	ErrUnsupportedAddr = errors.ErrorCode("oled_unsupported_address")
	ErrDraw            = errors.ErrorCode("oled_draw_failed")
	ErrHalt            = errors.ErrorCode("oled_halt_failed")
	ErrUnknownScreen   = errors.ErrorCode("oled_unknown_screen")
)

// Device is the panel the renderer draws to.
type Device interface {
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

// Renderer draws the information screens onto a 128x64 monochrome panel.
type Renderer struct {
	mu     sync.Mutex
	dev    Device
	img    *image1bit.VerticalLSB
	now    func() time.Time
	logger logger.Logger
}

// Open initializes an SSD1306 on bus. The driver only talks to the default
// address.
func Open(bus i2c.Bus, addr uint16, log logger.Logger) (*Renderer, error) {
	if addr != DefaultAddress {
		return nil, errors.New().WithData(ErrUnsupportedAddr, fmt.Sprintf("0x%02x", addr))
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.Opts{W: Width, H: Height})
	if err != nil {
		return nil, errors.New().Wrap(ErrOpen, err)
	}
	log.Info().Msgf("OLED %dx%d ready at 0x%02x", Width, Height, addr)

	return New(dev, log), nil
}

func New(dev Device, log logger.Logger) *Renderer {
	return &Renderer{
		dev:    dev,
		img:    image1bit.NewVerticalLSB(image.Rect(0, 0, Width, Height)),
		now:    time.Now,
		logger: log,
	}
}

// Render draws screen (0..3) for snapshot s.
func (r *Renderer) Render(screen int, s sensor.Snapshot) error {
	lines, err := Lines(screen, s, r.now())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearImage()
	if screen == 3 {
		r.drawUptime(lines)
	} else {
		for i, line := range lines {
			drawText(r.img, line, image.Pt(0, i*lineHeight))
		}
	}

	return r.flush()
}

// Clear blanks the panel.
func (r *Renderer) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearImage()
	return r.flush()
}

// Close clears and halts the panel.
func (r *Renderer) Close() error {
	clearErr := r.Clear()

	var haltErr error
	if err := r.dev.Halt(); err != nil {
		haltErr = errors.New().Wrap(ErrHalt, err)
	}

	return errors.Join(clearErr, haltErr)
}

func (r *Renderer) clearImage() {
	draw.Draw(r.img, r.img.Bounds(), image.NewUniform(image1bit.Off), image.Point{}, draw.Src)
}

func (r *Renderer) flush() error {
	if err := r.dev.Draw(r.img.Bounds(), r.img, image.Point{}); err != nil {
		return errors.New().Wrap(ErrDraw, err)
	}
	return nil
}

// drawUptime lays out the header, a large day count and the unit label.
func (r *Renderer) drawUptime(lines []string) {
	drawText(r.img, lines[0], image.Pt(0, 0))

	face := basicfont.Face7x13
	small := image.NewGray(image.Rect(0, 0, len(lines[1])*face.Advance, face.Height))
	drawText(small, lines[1], image.Point{})

	w, h := small.Bounds().Dx()*bigScale, small.Bounds().Dy()*bigScale
	x := max((Width-w)/2, 0)
	dst := image.Rect(x, lineHeight, x+w, lineHeight+h)
	draw.NearestNeighbor.Scale(r.img, dst, small, small.Bounds(), draw.Over, nil)

	drawText(r.img, lines[2], image.Pt(x+w+2, lineHeight+h-face.Height))
}

// drawText writes s with its top-left corner at p.
func drawText(dst draw.Image, s string, p image.Point) {
	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(p.X, p.Y+face.Ascent),
	}
	d.DrawString(s)
}

// Lines returns the text of screen for s at time now.
func Lines(screen int, s sensor.Snapshot, now time.Time) ([]string, error) {
	switch screen {
	case 0:
		return []string{
			"PI Parameters",
			fmt.Sprintf("CPU: %.1f%%", s.CPUPercent),
			fmt.Sprintf("MEM: %.1f%%", s.MemPercent),
			fmt.Sprintf("DISK: %.1f%%", s.DiskPercent),
		}, nil
	case 1:
		return []string{
			"Date: " + now.Format("2006-01-02"),
			"Week: " + now.Weekday().String(),
			"TIME: " + now.Format("15:04:05"),
			fmt.Sprintf("LED Mode: %d", s.LEDMode),
		}, nil
	case 2:
		return []string{
			fmt.Sprintf("PI TEMP: %.1fC", s.CPUTemp),
			fmt.Sprintf("BOARD TEMP: %dC", s.BoardTemp),
			fmt.Sprintf("FAN Mode: %d", s.FanMode),
			fmt.Sprintf("FAN Duty: %d%%", DutyPercent(s.FanDuty)),
		}, nil
	case 3:
		unit := "days"
		if s.UptimeDays == 1 {
			unit = "day"
		}
		return []string{
			"Days Since:",
			fmt.Sprintf("%d", s.UptimeDays),
			unit,
		}, nil
	default:
		return nil, errors.New().WithData(ErrUnknownScreen, screen)
	}
}

// DutyPercent converts a 0..255 duty to a whole percentage.
func DutyPercent(duty int) int {
	return duty * 100 / 255
}
