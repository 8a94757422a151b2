package motion

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armctl/pkg/link"
	"github.com/gwillem/armctl/pkg/link/linktest"
	"github.com/gwillem/armctl/pkg/protocol"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *linktest.Recorder, *link.Conn) {
	t.Helper()
	rec := linktest.NewRecorder()
	conn := link.NewConn(rec)
	require.NoError(t, conn.Open("COM3", 115200))
	m, err := NewManager(conn, cfg)
	require.NoError(t, err)
	return m, rec, conn
}

func TestNewManager(t *testing.T) {
	_, err := NewManager(nil, Config{})
	assert.Error(t, err)

	_, err = NewManager(link.NewConn(linktest.NewRecorder()), Config{Speed: -5})
	assert.ErrorIs(t, err, protocol.ErrInvalidParameter)

	m, err := NewManager(link.NewConn(linktest.NewRecorder()), Config{Speed: 70, StepDelay: DefaultStepDelay})
	require.NoError(t, err)
	assert.Equal(t, 70, m.Speed())
	assert.Equal(t, DefaultStepDelay, m.stepDelay)
	assert.Equal(t, Idle, m.State())
}

func TestNewManager_ZeroValuesKept(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})
	assert.Equal(t, 0, m.Speed())
	assert.Equal(t, time.Duration(0), m.stepDelay)

	// No delay between steps: a long ramp finishes right away.
	p, err := NewRampPlan(Vector{X: 1}, 0, 10, 50)
	require.NoError(t, err)
	done, err := m.StartRampAsync(context.Background(), p)
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("zero step delay still waits between steps")
	}
	assert.Len(t, rec.Lines(), 50)
}

func TestManager_SetSpeed(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{Speed: DefaultSpeed})

	for _, bad := range []int{-1, -100} {
		_, err := m.SetSpeed(bad)
		assert.ErrorIs(t, err, protocol.ErrInvalidParameter)
		assert.Equal(t, DefaultSpeed, m.Speed(), "rejected speed must not change the setting")
	}
	assert.Empty(t, rec.Writes())

	for _, good := range []int{0, 50, 250} {
		l, err := m.SetSpeed(good)
		require.NoError(t, err)
		assert.Equal(t, good, m.Speed())
		assert.Equal(t, protocol.OpSpeed, l.Opcode())
	}
	assert.Equal(t, []string{"Speed_0", "Speed_50", "Speed_250"}, rec.Lines())
}

func TestManager_SetSpeedWhileClosed(t *testing.T) {
	rec := linktest.NewRecorder()
	m, err := NewManager(link.NewConn(rec), Config{})
	require.NoError(t, err)

	_, err = m.SetSpeed(50)
	assert.ErrorIs(t, err, link.ErrNotConnected)
	assert.Equal(t, 50, m.Speed())
	assert.Equal(t, 0, rec.Attempts())
}

func TestManager_StartJog(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})

	require.NoError(t, m.StartJog(Jog{Space: protocol.World, Axis: 1, Direction: protocol.Positive}))
	assert.Equal(t, Jogging, m.State())
	j, ok := m.ActiveJog()
	assert.True(t, ok)
	assert.Equal(t, 1, j.Axis)
	assert.Equal(t, []string{"MovStart_1,1,1"}, rec.Lines())
}

func TestManager_JogSupersedesJog(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})

	require.NoError(t, m.StartJog(Jog{Space: protocol.Joint, Axis: 1, Direction: protocol.Positive}))
	require.NoError(t, m.StartJog(Jog{Space: protocol.World, Axis: 3, Direction: protocol.Negative}))

	assert.Equal(t, []string{
		"MovStart_0,1,1",
		"MovStp",
		"MovStart_1,3,0",
	}, rec.Lines())

	j, ok := m.ActiveJog()
	require.True(t, ok)
	assert.Equal(t, Jog{Space: protocol.World, Axis: 3, Direction: protocol.Negative}, j)
}

func TestManager_OverlappingJogPresses(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(axis int) {
			defer wg.Done()
			_ = m.StartJog(Jog{Space: protocol.World, Axis: axis, Direction: protocol.Positive})
		}(i%3 + 1)
	}
	wg.Wait()

	// every start after the first is preceded by exactly one stop
	lines := rec.Lines()
	require.Len(t, lines, 19)
	active := 0
	for i, l := range lines {
		switch {
		case l == "MovStp":
			active--
		default:
			active++
			if i > 0 {
				assert.Equal(t, "MovStp", lines[i-1])
			}
		}
		assert.LessOrEqual(t, active, 1)
		assert.GreaterOrEqual(t, active, 0)
	}
	assert.Equal(t, Jogging, m.State())
}

func TestManager_InvalidJogKeepsCurrent(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})
	require.NoError(t, m.StartJog(Jog{Space: protocol.World, Axis: 2, Direction: protocol.Positive}))

	err := m.StartJog(Jog{Space: protocol.World, Axis: 9, Direction: protocol.Positive})
	assert.ErrorIs(t, err, protocol.ErrInvalidParameter)
	assert.Equal(t, Jogging, m.State())
	assert.Len(t, rec.Lines(), 1)
}

func TestManager_ImplicitStopFailure(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})
	require.NoError(t, m.StartJog(Jog{Space: protocol.World, Axis: 1, Direction: protocol.Positive}))

	rec.FailWriteAt(1, nil, false)
	err := m.StartJog(Jog{Space: protocol.World, Axis: 2, Direction: protocol.Positive})

	var terr *link.TransportError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, []string{"MovStart_1,1,1"}, rec.Lines(), "no start after a failed stop")
}

func TestManager_StopJog(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})

	stopped, err := m.StopJog()
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Equal(t, 0, rec.Attempts(), "stop without a jog must not write")

	require.NoError(t, m.StartJog(Jog{Space: protocol.Joint, Axis: 2, Direction: protocol.Negative}))
	stopped, err = m.StopJog()
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, Idle, m.State())

	stopped, err = m.StopJog()
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Equal(t, []string{"MovStart_0,2,0", "MovStp"}, rec.Lines())
}

func TestManager_StopJogFailureStillClears(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})
	require.NoError(t, m.StartJog(Jog{Space: protocol.Joint, Axis: 1, Direction: protocol.Positive}))

	rec.FailWriteAt(1, nil, false)
	stopped, err := m.StopJog()
	assert.True(t, stopped)
	assert.Error(t, err)
	assert.Equal(t, Idle, m.State())
}

func TestManager_SendWhileClosed(t *testing.T) {
	rec := linktest.NewRecorder()
	m, err := NewManager(link.NewConn(rec), Config{StepDelay: -1})
	require.NoError(t, err)

	assert.ErrorIs(t, m.Send(protocol.Stop()), link.ErrNotConnected)
	assert.ErrorIs(t, m.StartJog(Jog{Space: protocol.World, Axis: 1, Direction: protocol.Positive}), link.ErrNotConnected)
	assert.Equal(t, Idle, m.State())

	p, err := NewRampPlan(Vector{X: 1}, 0, 10, 5)
	require.NoError(t, err)
	err = m.StartRamp(context.Background(), p)
	var serr *StepError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 0, serr.Step)
	assert.ErrorIs(t, err, link.ErrNotConnected)
	assert.Equal(t, 0, rec.Attempts())
}

func TestManager_RampComplete(t *testing.T) {
	var progress []Progress
	m, rec, _ := newTestManager(t, Config{OnProgress: func(p Progress) {
		progress = append(progress, p)
	}})

	p, err := NewRampPlan(Vector{Z: 10}, 0, 100, 100)
	require.NoError(t, err)
	require.NoError(t, m.StartRamp(context.Background(), p))

	lines := rec.Lines()
	require.Len(t, lines, 100)
	for i, l := range lines {
		require.True(t, strings.HasPrefix(l, "DescartesPointOffset_0,0,"), l)
		require.True(t, strings.HasSuffix(l, ","+strconv.Itoa(i)), l)
	}
	assert.Equal(t, Idle, m.State())

	require.Len(t, progress, 100)
	assert.Equal(t, Progress{Step: 99, Total: 100, Speed: 99}, progress[99])
}

func TestManager_RampFailsAtStep(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})
	rec.FailWriteAt(37, nil, true)

	p, err := NewRampPlan(Vector{Z: 10}, 0, 100, 100)
	require.NoError(t, err)
	err = m.StartRamp(context.Background(), p)

	var serr *StepError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 37, serr.Step)
	assert.Equal(t, 100, serr.Total)
	assert.ErrorIs(t, err, linktest.ErrInjected)
	assert.False(t, errors.Is(err, ErrCancelled))

	assert.Len(t, rec.Lines(), 37)
	assert.Equal(t, 38, rec.Attempts(), "no writes after the failing step")
	assert.Equal(t, Idle, m.State())
}

func TestManager_CancelAfterStep(t *testing.T) {
	for _, k := range []int{1, 5, 42} {
		var m *Manager
		m, rec, _ := newTestManager(t, Config{OnProgress: func(p Progress) {
			if p.Step == k-1 {
				assert.True(t, m.CancelRamp())
			}
		}})

		p, err := NewRampPlan(Vector{X: 10}, 10, 20, 100)
		require.NoError(t, err)
		err = m.StartRamp(context.Background(), p)

		assert.ErrorIs(t, err, ErrCancelled)
		var cerr *CancelError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, k, cerr.Sent)
		var serr *StepError
		assert.False(t, errors.As(err, &serr), "cancel is not a transport error")
		assert.Len(t, rec.Lines(), k)
		assert.Equal(t, Idle, m.State())
	}
}

func TestManager_CancelDuringDelay(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{StepDelay: time.Hour})

	p, err := NewRampPlan(Vector{X: 10}, 10, 20, 10)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.StartRamp(context.Background(), p) }()

	require.Eventually(t, func() bool { return len(rec.Lines()) == 1 }, time.Second, time.Millisecond)
	assert.True(t, m.CancelRamp())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("ramp did not stop after cancel")
	}
	assert.Len(t, rec.Lines(), 1)
	assert.False(t, m.CancelRamp())
}

func TestManager_RampContextCancelled(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := NewRampPlan(Vector{X: 10}, 10, 20, 10)
	require.NoError(t, err)
	err = m.StartRamp(ctx, p)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, rec.Lines())
}

func TestManager_SessionBusy(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{StepDelay: time.Hour})

	p, err := NewRampPlan(Vector{X: 10}, 10, 20, 10)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.StartRamp(context.Background(), p) }()
	require.Eventually(t, func() bool { return m.State() == Ramping }, time.Second, time.Millisecond)

	err = m.StartRamp(context.Background(), p)
	assert.ErrorIs(t, err, ErrSessionBusy)

	err = m.StartJog(Jog{Space: protocol.World, Axis: 1, Direction: protocol.Positive})
	assert.ErrorIs(t, err, ErrSessionBusy)

	// stop of a non-existent jog stays a no-op during a ramp
	stopped, err := m.StopJog()
	assert.NoError(t, err)
	assert.False(t, stopped)

	m.CancelRamp()
	assert.ErrorIs(t, <-done, ErrCancelled)
	for _, l := range rec.Lines() {
		assert.NotContains(t, l, "MovStart")
	}
}

func TestManager_RampRejectedWhileJogging(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})
	require.NoError(t, m.StartJog(Jog{Space: protocol.World, Axis: 1, Direction: protocol.Positive}))

	p, err := NewRampPlan(Vector{X: 10}, 10, 20, 10)
	require.NoError(t, err)
	assert.ErrorIs(t, m.StartRamp(context.Background(), p), ErrSessionBusy)
	assert.Equal(t, Jogging, m.State())
	assert.Len(t, rec.Lines(), 1)
}

func TestManager_InvalidRampLeavesIdle(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})
	err := m.StartRamp(context.Background(), RampPlan{Target: Vector{X: 1}})
	assert.ErrorIs(t, err, protocol.ErrInvalidParameter)
	assert.Equal(t, Idle, m.State())
	assert.Empty(t, rec.Lines())
}

func TestManager_StartRampAsync(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})

	p, err := NewRampPlan(Vector{Y: 4}, 5, 45, 4)
	require.NoError(t, err)
	done, err := m.StartRampAsync(context.Background(), p)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ramp did not finish")
	}
	assert.Equal(t, []string{
		"DescartesPointOffset_0,1,0,5",
		"DescartesPointOffset_0,1,0,15",
		"DescartesPointOffset_0,1,0,25",
		"DescartesPointOffset_0,1,0,35",
	}, rec.Lines())

	_, err = m.StartRampAsync(context.Background(), RampPlan{})
	assert.ErrorIs(t, err, protocol.ErrInvalidParameter)
}

func TestManager_Stop(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{})

	cancelled, cleared, err := m.Stop()
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.False(t, cleared)

	require.NoError(t, m.StartJog(Jog{Space: protocol.World, Axis: 1, Direction: protocol.Positive}))
	cancelled, cleared, err = m.Stop()
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.True(t, cleared)
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, []string{"Stop", "MovStart_1,1,1", "Stop"}, rec.Lines())
}

func TestManager_StopDuringRamp(t *testing.T) {
	m, rec, _ := newTestManager(t, Config{StepDelay: time.Hour})
	p, err := NewRampPlan(Vector{X: 1}, 0, 10, 10)
	require.NoError(t, err)
	done, err := m.StartRampAsync(context.Background(), p)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.Lines()) == 1 }, time.Second, time.Millisecond)

	cancelled, _, err := m.Stop()
	require.NoError(t, err)
	assert.True(t, cancelled)

	// The session is free before the ramp goroutine has noticed.
	assert.Equal(t, Idle, m.State())
	require.NoError(t, m.StartJog(Jog{Space: protocol.Joint, Axis: 2, Direction: protocol.Negative}))

	assert.ErrorIs(t, <-done, ErrCancelled)
	assert.Equal(t, Jogging, m.State(), "finished ramp must not clear the new jog")
	assert.Equal(t, []string{
		"DescartesPointOffset_0.1,0,0,0",
		"Stop",
		"MovStart_0,2,0",
	}, rec.Lines())
}

func TestManager_NoRampStepAfterStop(t *testing.T) {
	for i := 0; i < 200; i++ {
		m, rec, _ := newTestManager(t, Config{})
		p, err := NewRampPlan(Vector{Z: 1}, 0, 10, 1000)
		require.NoError(t, err)
		done, err := m.StartRampAsync(context.Background(), p)
		require.NoError(t, err)

		require.Eventually(t, func() bool { return rec.Attempts() >= 2 }, time.Second, 10*time.Microsecond)
		_, _, err = m.Stop()
		require.NoError(t, err)
		<-done

		lines := rec.Lines()
		require.Equal(t, "Stop", lines[len(lines)-1], "iteration %d: step written after Stop", i)
	}
}
