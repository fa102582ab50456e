package fan

import (
	"sync"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
)

const (
	DefaultHigh    = 50.0
	DefaultLow     = 40.0
	DefaultMinDuty = 0
	DefaultMaxDuty = 255
)

const ErrDutyWrite = errors.ErrorCode("fan_duty_write_failed")

// DutySetter writes a duty cycle to both board fan channels.
type DutySetter interface {
	SetFanDuty(d0, d1 uint8) error
}

// Config holds the hysteresis band in °C and the two duty levels.
type Config struct {
	High    float64
	Low     float64
	MinDuty uint8
	MaxDuty uint8
}

// State is the controller's latched output.
type State struct {
	LimitEngaged bool
	Duty         uint8
}

// Controller drives the board fan between two duty levels with hysteresis.
type Controller struct {
	mu     sync.RWMutex
	cfg    Config
	state  State
	setter DutySetter
	logger logger.Logger
}

func New(cfg Config, setter DutySetter, log logger.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		state:  State{Duty: cfg.MinDuty},
		setter: setter,
		logger: log,
	}
}

// Evaluate applies one hysteresis step. ok=false skips the tick.
// The state only changes after a successful duty write.
func (c *Controller) Evaluate(signal float64, ok bool) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !ok {
		return c.state, nil
	}

	next := c.state
	switch {
	case !c.state.LimitEngaged && signal > c.cfg.High:
		next = State{LimitEngaged: true, Duty: c.cfg.MaxDuty}
	case c.state.LimitEngaged && signal < c.cfg.Low:
		next = State{LimitEngaged: false, Duty: c.cfg.MinDuty}
	default:
		return c.state, nil
	}

	if err := c.setter.SetFanDuty(next.Duty, next.Duty); err != nil {
		return c.state, errors.New().Wrap(ErrDutyWrite, err)
	}

	c.logger.Info().
		Float64("temperature", signal).
		Bool("engaged", next.LimitEngaged).
		Uint8("duty", next.Duty).
		Msg("Fan duty changed")

	c.state = next
	return next, nil
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
