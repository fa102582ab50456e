package display

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/pimonitor/internal/config"
	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
)

const (
	DefaultCommandTimeout = 5 * time.Second
	DefaultOutput         = "DSI-1"
	DefaultX11Display     = ":0"
)

// PowerDriver switches the physical display.
type PowerDriver interface {
	SetPower(ctx context.Context, on bool) ([]Attempt, error)
}

// Attempt is the outcome of one power method.
type Attempt struct {
	Method string
	Err    error
}

// Method is one way of switching the display, as an on/off command pair.
type Method struct {
	Name string
	On   []string
	Off  []string
	Env  []string
}

// DefaultMethods returns the X11, DRM output, firmware and HDMI methods in
// the order they are tried.
func DefaultMethods(x11Display, output string) []Method {
	if x11Display == "" {
		x11Display = DefaultX11Display
	}
	if output == "" {
		output = DefaultOutput
	}
	env := []string{"DISPLAY=" + x11Display}

	return []Method{
		{
			Name: "xset",
			On:   []string{"xset", "dpms", "force", "on"},
			Off:  []string{"xset", "dpms", "force", "off"},
			Env:  env,
		},
		{
			Name: "xrandr",
			On:   []string{"xrandr", "--output", output, "--auto"},
			Off:  []string{"xrandr", "--output", output, "--off"},
			Env:  env,
		},
		{
			Name: "vcgencmd",
			On:   []string{"vcgencmd", "display_power", "1"},
			Off:  []string{"vcgencmd", "display_power", "0"},
		},
		{
			Name: "tvservice",
			On:   []string{"tvservice", "-p"},
			Off:  []string{"tvservice", "-o"},
		},
	}
}

// Runner executes one command with extra environment.
type Runner func(ctx context.Context, env []string, argv []string) error

// ExecRunner runs argv with os/exec, reporting combined output on failure.
func ExecRunner(ctx context.Context, env []string, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		wrapped := errors.New().Wrap(errors.ErrCommandFailed, err)
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return wrapped.WithMessage(fmt.Sprintf("%s failed (%s)", argv[0], msg))
		}
		return wrapped.WithMessage(argv[0] + " failed")
	}
	return nil
}

// CommandDriver tries each method in order according to its policy.
type CommandDriver struct {
	methods []Method
	policy  string
	timeout time.Duration
	run     Runner
	logger  logger.Logger
}

func NewCommandDriver(methods []Method, policy string, timeout time.Duration, run Runner, log logger.Logger) (*CommandDriver, error) {
	if len(methods) == 0 {
		return nil, errors.New().New(ErrNoMethods)
	}
	switch policy {
	case "":
		policy = config.PolicyTryAll
	case config.PolicyTryAll, config.PolicyFirstSuccess:
	default:
		return nil, errors.New().WithData(ErrUnknownPolicy, policy)
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if run == nil {
		run = ExecRunner
	}

	return &CommandDriver{
		methods: methods,
		policy:  policy,
		timeout: timeout,
		run:     run,
		logger:  log,
	}, nil
}

// NewDriverFromConfig builds the default method chain from configuration.
func NewDriverFromConfig(cfg config.DisplayConfig, log logger.Logger) (*CommandDriver, error) {
	return NewCommandDriver(DefaultMethods(cfg.X11Display, cfg.Output), cfg.Policy, cfg.CommandTimeout, ExecRunner, log)
}

// SetPower runs the methods and returns one Attempt per invoked method. It
// fails only when every invoked method failed.
func (d *CommandDriver) SetPower(ctx context.Context, on bool) ([]Attempt, error) {
	attempts := make([]Attempt, 0, len(d.methods))

	for _, m := range d.methods {
		argv := m.Off
		if on {
			argv = m.On
		}

		err := d.runOne(ctx, m, argv)
		attempts = append(attempts, Attempt{Method: m.Name, Err: err})

		if err != nil {
			d.logger.Debug().Err(err).Str("method", m.Name).Bool("on", on).Msg("Display power method failed")
			continue
		}
		d.logger.Debug().Str("method", m.Name).Bool("on", on).Msg("Display power method succeeded")

		if d.policy == config.PolicyFirstSuccess {
			break
		}
	}

	for _, a := range attempts {
		if a.Err == nil {
			return attempts, nil
		}
	}

	return attempts, errors.New().WithData(ErrAllMethodsFailed, fmt.Sprintf("%d methods", len(attempts)))
}

func (d *CommandDriver) runOne(ctx context.Context, m Method, argv []string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.run(ctx, m.Env, argv); err != nil {
		return errors.New().Wrap(ErrMethodFailed, err).WithMessage(m.Name + " failed")
	}
	return nil
}
