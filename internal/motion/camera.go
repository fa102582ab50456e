package motion

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"github.com/spf13/afero"
)

const (
	DefaultCameraInterval = 500 * time.Millisecond
	DefaultCaptureTimeout = 5 * time.Second
	DefaultCaptureBackoff = time.Second
	DefaultCaptureCommand = "rpicam-still"

	framePattern  = "frame_*.jpg"
	cleanupEvery  = 20
	framesToKeep  = 2
	frameSlots    = 2
	captureOutput = 512
)

// CommandCapturer captures stills by running an external camera tool.
type CommandCapturer struct {
	command string
	timeout time.Duration
}

func NewCommandCapturer(command string, timeout time.Duration) *CommandCapturer {
	if command == "" {
		command = DefaultCaptureCommand
	}
	if timeout <= 0 {
		timeout = DefaultCaptureTimeout
	}
	return &CommandCapturer{command: command, timeout: timeout}
}

// Args returns the command line for a capture into path.
func (c *CommandCapturer) Args(path string) []string {
	return []string{
		"--timeout", "100",
		"--width", "640",
		"--height", "480",
		"--nopreview",
		"--output", path,
	}
}

func (c *CommandCapturer) Capture(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.command, c.Args(path)...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > captureOutput {
			msg = msg[:captureOutput]
		}
		return errors.New().Wrap(ErrCaptureFailed, err).WithMessage(fmt.Sprintf("%s failed: %s", c.command, msg))
	}
	return nil
}

// Camera detects motion by comparing the sizes of consecutive stills.
type Camera struct {
	fs          afero.Fs
	dir         string
	capturer    Capturer
	sensitivity int
	interval    time.Duration
	backoff     time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration)
	logger      logger.Logger

	count    int
	prevSize int64
	havePrev bool
}

// NewCamera prepares the capture directory on fs.
func NewCamera(fs afero.Fs, cfg Config, capturer Capturer, log logger.Logger) (*Camera, error) {
	if err := fs.MkdirAll(cfg.CaptureDir, 0o755); err != nil {
		return nil, errors.New().Wrap(ErrCaptureDir, err).WithMessage(fmt.Sprintf("failed to create %s", cfg.CaptureDir))
	}

	c := &Camera{
		fs:          fs,
		dir:         cfg.CaptureDir,
		capturer:    capturer,
		sensitivity: cfg.Sensitivity,
		interval:    cfg.CameraInterval,
		backoff:     cfg.CaptureBackoff,
		now:         time.Now,
		sleep:       sleepContext,
		logger:      log,
	}
	if c.interval <= 0 {
		c.interval = DefaultCameraInterval
	}
	if c.backoff <= 0 {
		c.backoff = DefaultCaptureBackoff
	}

	return c, nil
}

func (c *Camera) Name() string            { return string(SourceCamera) }
func (c *Camera) Interval() time.Duration { return c.interval }

// Threshold is the minimum size change, in percent, that counts as motion.
func (c *Camera) Threshold() float64 {
	return float64(c.sensitivity) / 10
}

func (c *Camera) framePath(n int) string {
	return filepath.Join(c.dir, fmt.Sprintf("frame_%d.jpg", n%frameSlots))
}

func (c *Camera) Poll(ctx context.Context) (Event, bool) {
	path := c.framePath(c.count)

	if err := c.capturer.Capture(ctx, path); err != nil {
		c.logger.Debug().Err(err).Msg("Camera capture failed")
		c.sleep(ctx, c.backoff)
		return Event{}, false
	}
	c.count++

	info, err := c.fs.Stat(path)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Camera frame unreadable")
		return Event{}, false
	}
	size := info.Size()

	if c.count%cleanupEvery == 0 {
		if err := c.cleanup(framesToKeep); err != nil {
			c.logger.Debug().Err(err).Msg("Frame cleanup failed")
		}
	}

	prev, hadPrev := c.prevSize, c.havePrev
	c.prevSize, c.havePrev = size, true
	if !hadPrev || prev == 0 {
		return Event{}, false
	}

	diff := math.Abs(float64(prev-size)) / float64(prev) * 100
	if diff <= c.Threshold() {
		return Event{}, false
	}

	c.logger.Debug().Float64("diff", diff).Msg("Camera motion detected")
	return Event{Timestamp: c.now(), Source: SourceCamera}, true
}

// cleanup removes all but the keep most recently modified frames.
func (c *Camera) cleanup(keep int) error {
	frames, err := afero.Glob(c.fs, filepath.Join(c.dir, framePattern))
	if err != nil {
		return errors.New().Wrap(ErrCleanupFrames, err)
	}

	type frame struct {
		path string
		mod  time.Time
	}
	infos := make([]frame, 0, len(frames))
	for _, f := range frames {
		info, err := c.fs.Stat(f)
		if err != nil {
			continue
		}
		infos = append(infos, frame{path: f, mod: info.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].mod.After(infos[j].mod) })

	var errs []error
	for i := keep; i < len(infos); i++ {
		if err := c.fs.Remove(infos[i].path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.New().Wrap(ErrCleanupFrames, errors.Join(errs...))
	}
	return nil
}

// Close removes every capture file.
func (c *Camera) Close() error {
	return c.cleanup(0)
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
