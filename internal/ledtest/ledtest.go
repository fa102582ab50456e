package ledtest

import (
	"context"
	"fmt"
	"io"
	"time"

	"codeberg.org/mutker/pimonitor/internal/indicator"
	"codeberg.org/mutker/pimonitor/internal/sensor"
)

// Pauses between steps, scaled by Runner.Speed.
const (
	colorPause     = 800 * time.Millisecond
	offPause       = 500 * time.Millisecond
	stressPause    = 2 * time.Second
	healthPause    = 3 * time.Second
	monitorPeriod  = 2 * time.Second
	DefaultMonitor = 30 * time.Second
)

type namedColor struct {
	name string
	rgb  indicator.RGB
}

var sweepColors = []namedColor{
	{"Red", indicator.Red},
	{"Green", indicator.Green},
	{"Blue", indicator.Blue},
	{"Yellow", indicator.Yellow},
	{"Purple", indicator.RGB{R: 255, B: 255}},
	{"Cyan", indicator.RGB{G: 255, B: 255}},
	{"White", indicator.White},
}

// HealthCase is a simulated system condition.
type HealthCase struct {
	Name                 string
	Temp, CPU, Mem, Disk float64
}

var (
	StressTemperatures = []float64{35, 45, 55, 65, 75}
	StressLoads        = []float64{15, 35, 60, 85}
	StressHealth       = []HealthCase{
		{"Normal", 45, 20, 50, 70},
		{"Warning", 60, 80, 85, 90},
		{"Critical", 75, 95, 95, 98},
	}
)

// Runner drives the indicator LEDs through test patterns.
type Runner struct {
	LEDs  indicator.LEDSetter
	Out   io.Writer
	Speed float64
}

func (r Runner) pause(ctx context.Context, d time.Duration) error {
	if r.Speed > 0 {
		d = time.Duration(float64(d) / r.Speed)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r Runner) set(ch indicator.Channel, c indicator.RGB) error {
	return r.LEDs.SetLEDColor(uint8(ch), c.R, c.G, c.B)
}

// Individual cycles every LED through the sweep colors, then turns it off.
func (r Runner) Individual(ctx context.Context) error {
	fmt.Fprintln(r.Out, "=== Individual LED control ===")

	for ch := indicator.Channel(0); ch < indicator.ChannelCount; ch++ {
		fmt.Fprintf(r.Out, "LED %d\n", ch)
		for _, c := range sweepColors {
			if err := r.set(ch, c.rgb); err != nil {
				fmt.Fprintf(r.Out, "  %s: %v\n", c.name, err)
			} else {
				fmt.Fprintf(r.Out, "  %s\n", c.name)
			}
			if err := r.pause(ctx, colorPause); err != nil {
				return err
			}
		}

		if err := r.set(ch, indicator.Off); err != nil {
			return err
		}
		fmt.Fprintln(r.Out, "  OFF")
		if err := r.pause(ctx, offPause); err != nil {
			return err
		}
	}
	return nil
}

// Stress shows the indicator colors for simulated temperatures, loads and
// health conditions.
func (r Runner) Stress(ctx context.Context) error {
	fmt.Fprintln(r.Out, "=== Stress simulation ===")

	for _, temp := range StressTemperatures {
		level := indicator.TemperatureLevel(temp)
		if err := r.set(indicator.ChannelTemperature, level.Color()); err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "Temperature %.0f°C: %s\n", temp, level)
		if err := r.pause(ctx, stressPause); err != nil {
			return err
		}
	}

	for _, load := range StressLoads {
		level := indicator.LoadLevel(load)
		if err := r.set(indicator.ChannelLoad, level.Color()); err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "CPU load %.0f%%: %s\n", load, level)
		if err := r.pause(ctx, stressPause); err != nil {
			return err
		}
	}

	for _, c := range StressHealth {
		level, tripped := indicator.HealthLevel(c.Temp, c.CPU, c.Mem, c.Disk)
		if err := r.set(indicator.ChannelHealth, level.Color()); err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "%s condition (T:%.0f C:%.0f M:%.0f D:%.0f): %s %v\n",
			c.Name, c.Temp, c.CPU, c.Mem, c.Disk, level, tripped)
		if err := r.pause(ctx, healthPause); err != nil {
			return err
		}
	}
	return nil
}

// Monitor shows live indicator states for duration.
func (r Runner) Monitor(ctx context.Context, reader sensor.Reader, duration time.Duration) error {
	fmt.Fprintf(r.Out, "=== Live indicators for %s ===\n", duration)

	mapper := indicator.NewMapper()
	sink := indicator.NewSink(r.LEDs)
	deadline := time.Now().Add(duration)

	for time.Now().Before(deadline) {
		states := mapper.Map(reader.Read(ctx))
		if err := sink.Apply(states); err != nil {
			fmt.Fprintf(r.Out, "LED write failed: %v\n", err)
		}
		fmt.Fprintf(r.Out, "temperature=%s load=%s disk=%s health=%s\n",
			states.Temperature, states.Load, states.DiskActivity, states.Health)

		if err := r.pause(ctx, monitorPeriod); err != nil {
			return err
		}
	}
	return nil
}

// Off turns every LED off.
func (r Runner) Off() error {
	for ch := indicator.Channel(0); ch < indicator.ChannelCount; ch++ {
		if err := r.set(ch, indicator.Off); err != nil {
			return err
		}
	}
	return nil
}
