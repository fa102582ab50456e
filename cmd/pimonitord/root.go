package main

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/pimonitor/internal/board"
	"codeberg.org/mutker/pimonitor/internal/config"
	"codeberg.org/mutker/pimonitor/internal/display"
	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/fan"
	"codeberg.org/mutker/pimonitor/internal/indicator"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/metrics"
	"codeberg.org/mutker/pimonitor/internal/monitor"
	"codeberg.org/mutker/pimonitor/internal/motion"
	"codeberg.org/mutker/pimonitor/internal/oled"
	"codeberg.org/mutker/pimonitor/internal/pid"
	"codeberg.org/mutker/pimonitor/internal/sensor"
	"codeberg.org/mutker/pimonitor/internal/telemetry"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pimonitord",
		Short:         "Raspberry Pi status, fan and display power daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	config.RegisterFlags(cmd.PersistentFlags())
	cmd.AddCommand(newLEDTestCommand(), newBoardCommand())

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(logger.Options{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		IsService: logger.IsService(),
	})
	logger.Debug().Msg("Config loaded")

	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	pidPath := pid.DefaultPath()
	if err := pid.Write(pidPath); err != nil {
		return err
	}

	m, err := initApp(ctx, cfg, pidPath)
	if err != nil {
		return initFailure(err)
	}

	err = m.Run(ctx)
	if err != nil {
		logFailure(err, "Error in main loop")
		err = errors.New().Wrap(errors.ErrMainLoop, err)
	}

	if cerr := m.Cleanup(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	logger.Info().Msg("Exiting...")

	return err
}

// initApp opens the hardware and wires the components. Anything opened
// before a failure is released again.
func initApp(ctx context.Context, cfg *config.Config, pidPath string) (*monitor.Monitor, error) {
	errFactory := errors.New()
	var cleanups []func() error
	fail := func(err error) (*monitor.Monitor, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if cerr := cleanups[i](); cerr != nil {
				logger.Warn().Err(cerr).Msg("Cleanup after failed init")
			}
		}
		return nil, err
	}
	cleanups = append(cleanups, func() error { return pid.Remove(pidPath) })

	b, err := board.Open(cfg.Board.Bus, uint16(cfg.Board.Address), logger.For("board"))
	if err != nil {
		return fail(errFactory.Wrap(errors.ErrInitFailed, err).WithMessage("expansion board unavailable"))
	}
	cleanups = append(cleanups, b.Close)
	if err := board.Prepare(b, logger.For("board")); err != nil {
		return fail(errFactory.Wrap(errors.ErrInitFailed, err))
	}
	cleanups = append(cleanups, func() error { return board.Reset(b) })

	screen, err := oled.Open(b.Bus(), uint16(cfg.OLED.Address), logger.For("oled"))
	if err != nil {
		return fail(errFactory.Wrap(errors.ErrInitFailed, err).WithMessage("OLED unavailable"))
	}
	cleanups = append(cleanups, screen.Close)

	motionCfg := motion.ConfigFrom(cfg.Motion)
	strategy, err := motion.NewSelector(motionCfg, logger.For("motion")).Select(ctx, motionCfg)
	if err != nil {
		return fail(errFactory.Wrap(errors.ErrInitFailed, err).WithMessage("motion detection unavailable"))
	}
	cleanups = append(cleanups, strategy.Close)

	driver, err := display.NewDriverFromConfig(cfg.Display, logger.For("display"))
	if err != nil {
		return fail(errFactory.Wrap(errors.ErrInitFailed, err))
	}
	machine := display.NewMachine(cfg.Display.Timeout, logger.For("display"))
	displayCtl := display.NewController(machine, driver, logger.For("display"))

	collector, err := metrics.NewService(metrics.FromConfig(cfg.Metrics), logger.For("metrics"))
	if err != nil {
		return fail(errFactory.Wrap(errors.ErrInitFailed, err))
	}
	cleanups = append(cleanups, collector.Close)

	exporter, err := telemetry.NewService(telemetry.FromConfig(cfg.Telemetry), collector.Session(), logger.For("telemetry"))
	if err != nil {
		return fail(errFactory.Wrap(errors.ErrInitFailed, err))
	}

	fanCtl := fan.New(fan.Config{
		High:    cfg.Fan.High,
		Low:     cfg.Fan.Low,
		MinDuty: uint8(cfg.Fan.MinDuty),
		MaxDuty: uint8(cfg.Fan.MaxDuty),
	}, b, logger.For("fan"))

	m, err := monitor.New(cfg.Interval, monitor.Deps{
		Sensors:    sensor.NewSystem(b, sensor.Options{}, logger.For("sensor")),
		Fan:        fanCtl,
		Mapper:     indicator.NewMapper(),
		LEDs:       indicator.NewSink(b),
		Renderer:   screen,
		Display:    displayCtl,
		Motion:     strategy,
		Metrics:    collector,
		Telemetry:  exporter,
		ResetBoard: func() error { return board.Reset(b) },
		Release: []func() error{
			b.Close,
			func() error { return pid.Remove(pidPath) },
		},
	}, logger.For("monitor"))
	if err != nil {
		return fail(err)
	}

	logger.Info().
		Str("motion", strategy.Name()).
		Dur("display_timeout", cfg.Display.Timeout).
		Str("session", collector.Session()).
		Time("started", time.Now()).
		Msg("pimonitord started")

	return m, nil
}

// initFailure maps an initApp error to the command result. A termination
// signal during startup is a clean exit.
func initFailure(err error) error {
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("Interrupted during startup")
		return nil
	}
	logFailure(err, "Failed to initialize")
	return errors.New().Wrap(errors.ErrInitApp, err)
}

func logFailure(err error, msg string) {
	logger.ErrorFrom(logger.Default(), err).Msg(msg)
}
