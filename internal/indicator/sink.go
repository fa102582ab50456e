package indicator

import (
	"fmt"
	"sync"

	"codeberg.org/mutker/pimonitor/internal/errors"
)

const ErrLEDWrite = errors.ErrorCode("indicator_led_write_failed")

// LEDSetter writes one LED color.
type LEDSetter interface {
	SetLEDColor(id, r, g, b uint8) error
}

// Sink writes indicator colors, skipping channels that did not change.
type Sink struct {
	mu      sync.Mutex
	setter  LEDSetter
	current [ChannelCount]RGB
	known   [ChannelCount]bool
}

func NewSink(setter LEDSetter) *Sink {
	return &Sink{setter: setter}
}

// Apply writes the changed channels. A failed channel is retried on the next
// call; the remaining channels are still written.
func (s *Sink) Apply(states States) error {
	return s.ApplyColors(states.Colors())
}

func (s *Sink) ApplyColors(colors [ChannelCount]RGB) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for ch, c := range colors {
		if s.known[ch] && s.current[ch] == c {
			continue
		}
		if err := s.setter.SetLEDColor(uint8(ch), c.R, c.G, c.B); err != nil {
			errs = append(errs, errors.New().Wrap(ErrLEDWrite, err).WithMessage(fmt.Sprintf("LED %d write failed", ch)))
			s.known[ch] = false
			continue
		}
		s.current[ch] = c
		s.known[ch] = true
	}

	return errors.Join(errs...)
}

// Invalidate forces every channel to be rewritten on the next Apply.
func (s *Sink) Invalidate() {
	s.mu.Lock()
	s.known = [ChannelCount]bool{}
	s.mu.Unlock()
}
