package main

import (
	"fmt"
	"io"

	"codeberg.org/mutker/pimonitor/internal/board"
	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"github.com/spf13/cobra"
)

func newBoardCommand() *cobra.Command {
	var (
		low, high    uint8
		powerOnCheck bool
		save         bool
	)

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the expansion board registers or set its standalone fan behavior",
		Long: "Without flags, prints the board identity and fan registers. " +
			"--threshold-low/--threshold-high and --power-on-check configure the fan " +
			"control the board runs on its own while pimonitord is stopped; --save keeps " +
			"them across power cycles.",
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

			flags := cmd.Flags()
			if flags.Changed("threshold-low") || flags.Changed("threshold-high") ||
				flags.Changed("power-on-check") || save {
				if err := board.Configure(b, board.Settings{
					ThresholdLow:  low,
					ThresholdHigh: high,
					PowerOnCheck:  powerOnCheck,
					Save:          save,
				}); err != nil {
					return err
				}
			}

			info, err := board.ReadInfo(b)
			printInfo(cmd.OutOrStdout(), info)
			return err
		},
	}

	cmd.Flags().Uint8Var(&low, "threshold-low", 30, "Board fan threshold low (°C)")
	cmd.Flags().Uint8Var(&high, "threshold-high", 45, "Board fan threshold high (°C)")
	cmd.Flags().BoolVar(&powerOnCheck, "power-on-check", false, "Enable the board's power-on check")
	cmd.Flags().BoolVar(&save, "save", false, "Save the settings to the board's flash")

	return cmd
}

func printInfo(w io.Writer, info board.Info) {
	fmt.Fprintf(w, "Brand:          %s\n", info.Brand)
	fmt.Fprintf(w, "Version:        %s\n", info.Version)
	fmt.Fprintf(w, "LED mode:       %d\n", info.LEDMode)
	fmt.Fprintf(w, "Fan mode:       %d\n", info.FanMode)
	fmt.Fprintf(w, "Fan frequency:  %d Hz\n", info.FanFrequency)
	fmt.Fprintf(w, "Fan duty:       %d / %d\n", info.FanDuty[0], info.FanDuty[1])
	fmt.Fprintf(w, "Fan threshold:  %d..%d °C\n", info.ThresholdLow, info.ThresholdHigh)
}
