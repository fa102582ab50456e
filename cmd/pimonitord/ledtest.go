package main

import (
	"os"
	"time"

	"codeberg.org/mutker/pimonitor/internal/board"
	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/ledtest"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/sensor"
	"github.com/spf13/cobra"
)

func newLEDTestCommand() *cobra.Command {
	var (
		individual bool
		stress     bool
		live       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ledtest",
		Short: "Exercise the indicator LEDs on the expansion board",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			b, err := board.Open(cfg.Board.Bus, uint16(cfg.Board.Address), logger.For("board"))
			if err != nil {
				return errors.New().Wrap(errors.ErrInitFailed, err)
			}
			defer b.Close()

			if err := b.SetLEDMode(board.LEDModeRGB); err != nil {
				return err
			}

			r := ledtest.Runner{LEDs: b, Out: os.Stdout}
			defer func() {
				if err := r.Off(); err != nil {
					logger.Warn().Err(err).Msg("Failed to turn LEDs off")
				}
			}()

			if !individual && !stress && live == 0 {
				individual, stress = true, true
			}

			ctx := cmd.Context()
			if individual {
				if err := r.Individual(ctx); err != nil {
					return err
				}
			}
			if stress {
				if err := r.Stress(ctx); err != nil {
					return err
				}
			}
			if live > 0 {
				reader := sensor.NewSystem(b, sensor.Options{}, logger.For("sensor"))
				return r.Monitor(ctx, reader, live)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&individual, "individual", false, "Cycle each LED through a set of colors")
	cmd.Flags().BoolVar(&stress, "stress", false, "Show indicator colors for simulated conditions")
	cmd.Flags().DurationVar(&live, "monitor", 0, "Show live indicator states for this long (e.g. 30s)")

	return cmd
}
