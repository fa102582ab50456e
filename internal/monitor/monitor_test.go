package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/pimonitor/internal/display"
	"codeberg.org/mutker/pimonitor/internal/fan"
	"codeberg.org/mutker/pimonitor/internal/indicator"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/metrics"
	"codeberg.org/mutker/pimonitor/internal/motion"
	"codeberg.org/mutker/pimonitor/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(call string) {
	j.mu.Lock()
	j.calls = append(j.calls, call)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

func (j *journal) count(call string) int {
	n := 0
	for _, c := range j.list() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeSensors struct{ j *journal }

func (f fakeSensors) Read(context.Context) sensor.Snapshot {
	f.j.add("sensors")
	return sensor.Snapshot{Timestamp: time.Now(), CPUTemp: 45, CPUTempOK: true, FanPWM: -1}
}

type fakeFan struct {
	j   *journal
	err error
}

func (f fakeFan) Evaluate(float64, bool) (fan.State, error) {
	f.j.add("fan")
	return fan.State{}, f.err
}

type fakeMapper struct{ j *journal }

func (f fakeMapper) Map(sensor.Snapshot) indicator.States {
	f.j.add("mapper")
	return indicator.States{Health: indicator.HealthCritical, Tripped: []string{"cpu=99.0"}}
}

type fakeLEDs struct{ j *journal }

func (f fakeLEDs) Apply(indicator.States) error {
	f.j.add("leds")
	return nil
}

type fakeRenderer struct {
	j       *journal
	mu      sync.Mutex
	screens []int
}

func (f *fakeRenderer) Render(screen int, _ sensor.Snapshot) error {
	f.j.add("render")
	f.mu.Lock()
	f.screens = append(f.screens, screen)
	f.mu.Unlock()
	return nil
}

func (f *fakeRenderer) Close() error {
	f.j.add("close oled")
	return nil
}

type fakeDisplay struct {
	j      *journal
	mu     sync.Mutex
	events []motion.Event
}

func (f *fakeDisplay) HandleMotion(e motion.Event) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
}

func (f *fakeDisplay) CheckTimeout(time.Time) display.Transition {
	f.j.add("timeout")
	return display.NoChange
}

func (f *fakeDisplay) State() display.State { return display.State{} }

func (f *fakeDisplay) Run(ctx context.Context) {
	f.j.add("applier")
	<-ctx.Done()
}

func (f *fakeDisplay) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeStrategy struct{ j *journal }

func (f fakeStrategy) Name() string            { return "fake" }
func (f fakeStrategy) Interval() time.Duration { return time.Millisecond }

func (f fakeStrategy) Poll(context.Context) (motion.Event, bool) {
	return motion.Event{Timestamp: time.Now(), Source: motion.SourceCamera}, true
}

func (f fakeStrategy) Close() error {
	f.j.add("close motion")
	return nil
}

type fakeMetrics struct{ j *journal }

func (f fakeMetrics) Record(context.Context, *metrics.Sample) error {
	f.j.add("metrics")
	return nil
}
func (f fakeMetrics) Session() string { return "s" }
func (f fakeMetrics) Close() error {
	f.j.add("close metrics")
	return nil
}

type fakeTelemetry struct {
	j       *journal
	mu      sync.Mutex
	motions int
}

func (f *fakeTelemetry) Record(context.Context, *metrics.Sample) error {
	f.j.add("telemetry")
	return nil
}

func (f *fakeTelemetry) ObserveMotion(string) {
	f.mu.Lock()
	f.motions++
	f.mu.Unlock()
}

func (f *fakeTelemetry) Serve(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *fakeTelemetry) Close() error {
	f.j.add("close telemetry")
	return nil
}

type fixture struct {
	j        *journal
	renderer *fakeRenderer
	display  *fakeDisplay
	tele     *fakeTelemetry
	deps     Deps
}

func newFixture() *fixture {
	j := &journal{}
	f := &fixture{
		j:        j,
		renderer: &fakeRenderer{j: j},
		display:  &fakeDisplay{j: j},
		tele:     &fakeTelemetry{j: j},
	}
	f.deps = Deps{
		Sensors:    fakeSensors{j},
		Fan:        fakeFan{j: j},
		Mapper:     fakeMapper{j},
		LEDs:       fakeLEDs{j},
		Renderer:   f.renderer,
		Display:    f.display,
		Motion:     fakeStrategy{j},
		Metrics:    fakeMetrics{j},
		Telemetry:  f.tele,
		ResetBoard: func() error { j.add("reset board"); return nil },
		Release:    []func() error{func() error { j.add("release"); return nil }},
	}
	return f
}

func TestTickOrder(t *testing.T) {
	f := newFixture()
	m, err := New(time.Second, f.deps, logger.Nop())
	require.NoError(t, err)

	m.Tick(context.Background(), time.Now())

	assert.Equal(t, []string{
		"timeout", "sensors", "fan", "mapper", "leds", "render", "metrics", "telemetry",
	}, f.j.list())
}

func TestRenderEveryThirdTick(t *testing.T) {
	f := newFixture()
	m, err := New(time.Second, f.deps, logger.Nop())
	require.NoError(t, err)

	for i := 0; i < 13; i++ {
		m.Tick(context.Background(), time.Now())
	}

	// Ticks 0, 3, 6, 9 and 12 render, cycling through the four screens.
	assert.Equal(t, []int{0, 1, 2, 3, 0}, f.renderer.screens)
	assert.Equal(t, uint64(13), m.Ticks())
	assert.Equal(t, 13, f.j.count("timeout"))
}

func TestFanErrorDoesNotStopTick(t *testing.T) {
	f := newFixture()
	f.deps.Fan = fakeFan{j: f.j, err: errors.New("nack")}
	m, err := New(time.Second, f.deps, logger.Nop())
	require.NoError(t, err)

	m.Tick(context.Background(), time.Now())
	assert.Equal(t, 1, f.j.count("leds"))
	assert.Equal(t, 1, f.j.count("metrics"))
}

func TestNewValidates(t *testing.T) {
	f := newFixture()
	_, err := New(0, f.deps, logger.Nop())
	assert.Error(t, err)

	f.deps.Display = nil
	_, err = New(time.Second, f.deps, logger.Nop())
	assert.Error(t, err)
}

func TestRunUntilCancelled(t *testing.T) {
	f := newFixture()
	m, err := New(5*time.Millisecond, f.deps, logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return m.Ticks() >= 3 && f.display.eventCount() >= 3
	}, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}

	assert.Equal(t, 1, f.j.count("applier"))
	f.tele.mu.Lock()
	assert.GreaterOrEqual(t, f.tele.motions, 3)
	f.tele.mu.Unlock()
}

func TestCleanupRunsOnce(t *testing.T) {
	f := newFixture()
	m, err := New(time.Second, f.deps, logger.Nop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Cleanup())
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{
		"reset board", "close oled", "close motion", "close metrics", "close telemetry", "release",
	}, f.j.list())
}

func TestCleanupContinuesAfterFailure(t *testing.T) {
	f := newFixture()
	f.deps.ResetBoard = func() error { return errors.New("bus gone") }
	m, err := New(time.Second, f.deps, logger.Nop())
	require.NoError(t, err)

	assert.Error(t, m.Cleanup())
	assert.Equal(t, 1, f.j.count("close oled"))
	assert.Equal(t, 1, f.j.count("release"))
}
