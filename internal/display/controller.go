package display

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/motion"
)

// Controller couples the state machine to a power driver. Machine updates
// happen on the caller's goroutine; driver commands run on the applier
// started by Run.
type Controller struct {
	machine *Machine
	driver  PowerDriver
	kick    chan struct{}
	logger  logger.Logger

	mu      sync.Mutex
	applied bool
}

func NewController(machine *Machine, driver PowerDriver, log logger.Logger) *Controller {
	return &Controller{
		machine: machine,
		driver:  driver,
		kick:    make(chan struct{}, 1),
		logger:  log,
	}
}

// HandleMotion implements motion.Sink.
func (c *Controller) HandleMotion(e motion.Event) {
	if c.machine.OnMotion(e) != NoChange {
		c.signal()
	}
}

// CheckTimeout runs the once-per-tick timeout check.
func (c *Controller) CheckTimeout(now time.Time) Transition {
	t := c.machine.CheckTimeout(now)
	if t != NoChange {
		c.signal()
	}
	return t
}

func (c *Controller) State() State {
	return c.machine.State()
}

// Applied reports the last power state sent to the driver.
func (c *Controller) Applied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

func (c *Controller) signal() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Run applies the machine's power state until ctx is done. Pending signals
// coalesce, so the driver always sees the latest state.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
			c.apply(ctx)
		}
	}
}

func (c *Controller) apply(ctx context.Context) {
	want := c.machine.State().On
	if want == c.Applied() {
		return
	}

	attempts, err := c.driver.SetPower(ctx, want)
	if err != nil {
		logger.ErrorFrom(c.logger, err).Bool("on", want).Int("attempts", len(attempts)).Msg("Failed to set display power")
	}

	c.mu.Lock()
	c.applied = want
	c.mu.Unlock()
}
