package display

import (
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/motion"
)

const (
	DefaultTimeout         = 60 * time.Second
	continuedMotionLogRate = 10 * time.Second
)

// State is the display power state. LastActivity is the newest motion seen.
type State struct {
	On           bool
	LastActivity time.Time
}

// Transition is the power change a machine step requests.
type Transition int

const (
	NoChange Transition = iota
	PowerOn
	PowerOff
)

func (t Transition) String() string {
	switch t {
	case PowerOn:
		return "on"
	case PowerOff:
		return "off"
	default:
		return "none"
	}
}

// Machine is the OFF/ON state machine. It performs no I/O.
type Machine struct {
	mu       sync.Mutex
	timeout  time.Duration
	state    State
	lastOff  time.Time
	throttle *logger.Throttle
	logger   logger.Logger
}

func NewMachine(timeout time.Duration, log logger.Logger) *Machine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Machine{
		timeout:  timeout,
		throttle: logger.NewThrottle(continuedMotionLogRate),
		logger:   log,
	}
}

// OnMotion applies a motion event. Events older than the last OFF
// transition are dropped.
func (m *Machine) OnMotion(e motion.Event) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Timestamp.Before(m.lastOff) {
		m.logger.Debug().Time("event", e.Timestamp).Msg("Dropping stale motion event")
		return NoChange
	}

	if e.Timestamp.After(m.state.LastActivity) {
		m.state.LastActivity = e.Timestamp
	}

	if m.state.On {
		if m.throttle.Allow(e.Timestamp) {
			m.logger.Debug().Str("source", string(e.Source)).Msg("Motion continues, display stays on")
		}
		return NoChange
	}

	m.state.On = true
	m.logger.Info().Str("source", string(e.Source)).Msg("Motion detected, turning display on")

	return PowerOn
}

// CheckTimeout turns the display off once now is more than the timeout past
// the last activity. Repeated checks while OFF are no-ops.
func (m *Machine) CheckTimeout(now time.Time) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.On || now.Sub(m.state.LastActivity) <= m.timeout {
		return NoChange
	}

	m.state.On = false
	m.lastOff = now
	m.logger.Info().Msgf("No motion for %s, turning display off", m.timeout)

	return PowerOff
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Timeout() time.Duration {
	return m.timeout
}
