package display

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/pimonitor/internal/config"
	apperrors "codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_700_000_000, 0)

func event(at time.Time) motion.Event {
	return motion.Event{Timestamp: at, Source: motion.SourcePIR}
}

func TestMachineOnOffExactlyOnce(t *testing.T) {
	m := NewMachine(60*time.Second, logger.Nop())

	var transitions []Transition
	record := func(tr Transition) {
		if tr != NoChange {
			transitions = append(transitions, tr)
		}
	}

	record(m.OnMotion(event(t0)))
	record(m.OnMotion(event(t0.Add(10 * time.Second))))
	record(m.CheckTimeout(t0.Add(60 * time.Second)))
	record(m.CheckTimeout(t0.Add(70 * time.Second)))
	record(m.CheckTimeout(t0.Add(71 * time.Second)))
	record(m.CheckTimeout(t0.Add(200 * time.Second)))

	assert.Equal(t, []Transition{PowerOn, PowerOff}, transitions)
	assert.False(t, m.State().On)
}

func TestMachineLastActivityNeverMovesBackwards(t *testing.T) {
	m := NewMachine(time.Minute, logger.Nop())

	m.OnMotion(event(t0.Add(5 * time.Second)))
	m.OnMotion(event(t0))

	assert.Equal(t, t0.Add(5*time.Second), m.State().LastActivity)
}

func TestMachineDropsStaleEvents(t *testing.T) {
	m := NewMachine(time.Minute, logger.Nop())

	require.Equal(t, PowerOn, m.OnMotion(event(t0)))
	require.Equal(t, PowerOff, m.CheckTimeout(t0.Add(2*time.Minute)))

	assert.Equal(t, NoChange, m.OnMotion(event(t0.Add(time.Minute))))
	assert.False(t, m.State().On)

	assert.Equal(t, PowerOn, m.OnMotion(event(t0.Add(3*time.Minute))))
}

func TestMachineTimeoutBoundary(t *testing.T) {
	m := NewMachine(time.Minute, logger.Nop())
	m.OnMotion(event(t0))

	assert.Equal(t, NoChange, m.CheckTimeout(t0.Add(time.Minute)))
	assert.Equal(t, PowerOff, m.CheckTimeout(t0.Add(time.Minute+time.Nanosecond)))
}

func TestMachineDefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewMachine(0, logger.Nop()).Timeout())
}

func TestMachineConcurrentInterleaving(t *testing.T) {
	m := NewMachine(time.Millisecond, logger.Nop())

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		ons, offs   int
		countResult = func(tr Transition) {
			mu.Lock()
			defer mu.Unlock()
			switch tr {
			case PowerOn:
				ons++
			case PowerOff:
				offs++
			}
		}
	)

	// A single observer sees LastActivity in linearization order.
	done := make(chan struct{})
	regressions := make(chan State, 1)
	observed := make(chan struct{})
	go func() {
		defer close(observed)
		var last time.Time
		for {
			select {
			case <-done:
				return
			default:
			}
			s := m.State()
			if s.LastActivity.Before(last) {
				select {
				case regressions <- s:
				default:
				}
			}
			last = s.LastActivity
		}
	}()

	const events = 1000
	for i := 0; i < events; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			countResult(m.OnMotion(event(t0.Add(time.Duration(i) * time.Millisecond))))
		}(i)
		go func(i int) {
			defer wg.Done()
			countResult(m.CheckTimeout(t0.Add(time.Duration(i) * time.Millisecond)))
		}(i)
	}
	wg.Wait()
	close(done)
	<-observed

	select {
	case s := <-regressions:
		t.Fatalf("LastActivity moved backwards to %s", s.LastActivity)
	default:
	}

	// The newest event can be neither stale nor timed out, since no check
	// runs later than it.
	newest := t0.Add((events - 1) * time.Millisecond)
	state := m.State()
	require.True(t, state.On)
	assert.Equal(t, newest, state.LastActivity)

	// ON and OFF strictly alternate starting from OFF.
	assert.Equal(t, ons, offs+1)
}

type fakeDriver struct {
	mu    sync.Mutex
	calls []bool
	err   error
}

func (f *fakeDriver) SetPower(_ context.Context, on bool) ([]Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, on)
	return []Attempt{{Method: "fake", Err: f.err}}, f.err
}

func (f *fakeDriver) Calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.calls...)
}

func TestControllerAppliesTransitions(t *testing.T) {
	driver := &fakeDriver{}
	c := NewController(NewMachine(time.Minute, logger.Nop()), driver, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.HandleMotion(event(t0))
	assert.Eventually(t, func() bool { return c.Applied() }, time.Second, time.Millisecond)

	c.HandleMotion(event(t0.Add(time.Second)))
	assert.Equal(t, NoChange, c.CheckTimeout(t0.Add(30*time.Second)))
	assert.Equal(t, PowerOff, c.CheckTimeout(t0.Add(2*time.Minute)))
	assert.Eventually(t, func() bool { return !c.Applied() }, time.Second, time.Millisecond)

	assert.Equal(t, []bool{true, false}, driver.Calls())
}

func TestControllerConvergesOnLatestState(t *testing.T) {
	driver := &fakeDriver{}
	c := NewController(NewMachine(time.Minute, logger.Nop()), driver, logger.Nop())

	// Transitions before the applier starts coalesce into one pending signal.
	c.HandleMotion(event(t0))
	c.CheckTimeout(t0.Add(2 * time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.HandleMotion(event(t0.Add(3 * time.Minute)))
	assert.Eventually(t, func() bool { return c.Applied() }, time.Second, time.Millisecond)
	assert.Equal(t, []bool{true}, driver.Calls())
}

func TestControllerDriverFailureIsNotRetried(t *testing.T) {
	driver := &fakeDriver{err: errors.New("no display")}
	c := NewController(NewMachine(time.Minute, logger.Nop()), driver, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.HandleMotion(event(t0))
	assert.Eventually(t, func() bool { return c.Applied() }, time.Second, time.Millisecond)
	c.HandleMotion(event(t0.Add(time.Second)))

	assert.Equal(t, []bool{true}, driver.Calls())
	assert.True(t, c.State().On)
}

type scriptedRunner struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls [][]string
	envs  [][]string
}

func (r *scriptedRunner) run(_ context.Context, env []string, argv []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, argv)
	r.envs = append(r.envs, env)
	if r.fail[argv[0]] {
		return errors.New(argv[0] + ": not found")
	}
	return nil
}

func newDriver(t *testing.T, policy string, r *scriptedRunner) *CommandDriver {
	t.Helper()
	d, err := NewCommandDriver(DefaultMethods("", ""), policy, time.Second, r.run, logger.Nop())
	require.NoError(t, err)
	return d
}

func TestDriverTryAll(t *testing.T) {
	r := &scriptedRunner{fail: map[string]bool{"xset": true, "tvservice": true}}
	d := newDriver(t, config.PolicyTryAll, r)

	attempts, err := d.SetPower(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, attempts, 4)

	assert.Equal(t, "xset", attempts[0].Method)
	assert.Error(t, attempts[0].Err)
	assert.NoError(t, attempts[1].Err)
	assert.NoError(t, attempts[2].Err)
	assert.Error(t, attempts[3].Err)

	assert.Equal(t, []string{"xrandr", "--output", "DSI-1", "--auto"}, r.calls[1])
	assert.Equal(t, []string{"DISPLAY=:0"}, r.envs[1])
	assert.Nil(t, r.envs[2])
}

func TestDriverFirstSuccess(t *testing.T) {
	r := &scriptedRunner{fail: map[string]bool{"xset": true}}
	d := newDriver(t, config.PolicyFirstSuccess, r)

	attempts, err := d.SetPower(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "xrandr", attempts[1].Method)
	assert.Equal(t, []string{"xrandr", "--output", "DSI-1", "--off"}, r.calls[1])
}

func TestDriverAllFail(t *testing.T) {
	r := &scriptedRunner{fail: map[string]bool{"xset": true, "xrandr": true, "vcgencmd": true, "tvservice": true}}
	d := newDriver(t, config.PolicyTryAll, r)

	attempts, err := d.SetPower(context.Background(), true)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, ErrAllMethodsFailed))
	assert.Len(t, attempts, 4)
	for _, a := range attempts {
		assert.True(t, apperrors.HasCode(a.Err, ErrMethodFailed))
	}
}

func TestDriverCommandTimeout(t *testing.T) {
	slow := func(ctx context.Context, _ []string, _ []string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	d, err := NewCommandDriver(DefaultMethods("", "")[:1], config.PolicyTryAll, 10*time.Millisecond, slow, logger.Nop())
	require.NoError(t, err)

	attempts, err := d.SetPower(context.Background(), true)
	require.Error(t, err)
	assert.ErrorIs(t, attempts[0].Err, context.DeadlineExceeded)
}

func TestNewCommandDriverValidation(t *testing.T) {
	_, err := NewCommandDriver(nil, "", 0, nil, logger.Nop())
	assert.True(t, apperrors.HasCode(err, ErrNoMethods))

	_, err = NewCommandDriver(DefaultMethods("", ""), "random", 0, nil, logger.Nop())
	assert.True(t, apperrors.HasCode(err, ErrUnknownPolicy))
}

func TestExecRunnerReportsCommandFailure(t *testing.T) {
	err := ExecRunner(context.Background(), nil, []string{"pimonitord-missing-power-tool", "--on"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCommandFailed))
	assert.Contains(t, err.Error(), "pimonitord-missing-power-tool failed")
}
