package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScheduler satisfies TimerScheduler and hands control of firing to
// the test
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []fakeTimer
	cancelled int
}

type fakeTimer struct {
	interval time.Duration
	fire     func()
}

func (s *fakeScheduler) Schedule(interval time.Duration, fire func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, fakeTimer{interval: interval, fire: fire})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cancelled++
	}
}

func (s *fakeScheduler) fireAll() {
	s.mu.Lock()
	timers := s.scheduled
	s.scheduled = nil
	s.mu.Unlock()
	for _, ft := range timers {
		ft.fire()
	}
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}

func TestTask_Accessors(t *testing.T) {
	task := NewTask("probe", MultiplexFunc(func(t *Task, run RunType) {}))

	assert.NotEmpty(t, task.ID())
	assert.Equal(t, "probe", task.Name())
	assert.Equal(t, "fresh", task.StateString())
	assert.Nil(t, task.TargetEngine())
	assert.Nil(t, task.CurrentEngine())
	assert.Nil(t, task.DefaultEngine())
}

func TestTask_Run_Twice_Panics(t *testing.T) {
	e := NewEngine("m")
	task := NewTask("once", MultiplexFunc(func(t *Task, run RunType) { t.Finish() }))
	task.Run(WithDefaultEngine(e))

	assert.Panics(t, func() { task.Run(WithDefaultEngine(e)) })
	drain(e)
}

func TestTask_Run_RegistersAndFinishDeregisters(t *testing.T) {
	e := NewEngine("m")
	task := NewTask("reg", MultiplexFunc(func(t *Task, run RunType) { t.Finish() }))
	task.Run(WithDefaultEngine(e))

	got, ok := LookupTask(task.ID())
	require.True(t, ok)
	assert.Same(t, task, got)

	drain(e)

	_, ok = LookupTask(task.ID())
	assert.False(t, ok)
}

func TestTask_WaitAndSignal(t *testing.T) {
	e := NewEngine("m")

	var mu sync.Mutex
	ready := false
	isReady := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ready
	}

	steps := 0
	task := NewTask("waiter", MultiplexFunc(func(t *Task, run RunType) {
		steps++
		if !isReady() {
			t.Wait(isReady)
			return
		}
		t.Finish()
	}))
	task.Run(WithDefaultEngine(e))

	drain(e)

	// parked: dequeued everywhere, waiting for a signal
	assert.True(t, task.IsIdle())
	assert.True(t, task.WaitingForSignal())
	assert.False(t, task.IsActive())
	assert.Nil(t, task.CurrentEngine())
	assert.Equal(t, 0, e.QueueLen())
	assert.Equal(t, 1, steps)

	// flip the condition and signal from another goroutine
	mu.Lock()
	ready = true
	mu.Unlock()
	woken := task.Signal()

	assert.True(t, woken)
	assert.True(t, task.IsActive())
	assert.Equal(t, 1, e.QueueLen(), "signal re-enqueues on the canonical engine")

	drain(e)
	assert.True(t, task.IsFinished())
	assert.Equal(t, 2, steps)
}

func TestTask_Wait_ConditionAlreadyMet_StaysRunnable(t *testing.T) {
	e := NewEngine("m")

	steps := 0
	task := NewTask("eager", MultiplexFunc(func(t *Task, run RunType) {
		steps++
		if steps == 1 {
			t.Wait(func() bool { return true })
			return
		}
		t.Finish()
	}))
	task.Run(WithDefaultEngine(e))

	drain(e)

	assert.True(t, task.IsFinished())
	assert.Equal(t, 2, steps)
}

func TestTask_PendingSignalNotLost(t *testing.T) {
	e := NewEngine("m")

	steps := 0
	task := NewTask("racer", MultiplexFunc(func(t *Task, run RunType) {
		steps++
		if steps == 1 {
			t.Wait(func() bool { return false })
			return
		}
		t.Finish()
	}))
	task.Run(WithDefaultEngine(e))

	// the task is queued but not yet waiting: the signal is recorded as
	// one pending wake
	woken := task.Signal()
	assert.False(t, woken)

	drain(e)

	// the pending wake was consumed when the task tried to park
	assert.True(t, task.IsFinished())
	assert.Equal(t, 2, steps)
}

func TestTask_SignalOnFinishedTask_NoOp(t *testing.T) {
	e := NewEngine("m")
	task := NewTask("done", MultiplexFunc(func(t *Task, run RunType) { t.Finish() }))
	task.Run(WithDefaultEngine(e))
	drain(e)

	assert.False(t, task.Signal())
	assert.Equal(t, 0, e.QueueLen())
}

func TestTask_Abort_TerminatesAtNextStep(t *testing.T) {
	e := NewEngine("m")

	steps := 0
	task := NewTask("doomed", MultiplexFunc(func(t *Task, run RunType) {
		steps++
	}))
	task.Run(WithDefaultEngine(e))

	e.Mainloop()
	require.Equal(t, 1, steps)

	task.Abort()
	drain(e)

	assert.True(t, task.IsFinished())
	assert.True(t, task.IsAborted())
	assert.Equal(t, "aborted", task.StateString())
	assert.Equal(t, 1, steps, "an aborted task is not stepped again")
}

func TestTask_Abort_WakesWaitingTask(t *testing.T) {
	e := NewEngine("m")

	task := NewTask("sleeper", MultiplexFunc(func(t *Task, run RunType) {
		t.Wait(func() bool { return false })
	}))
	task.Run(WithDefaultEngine(e))
	drain(e)
	require.True(t, task.IsIdle())

	task.Abort()
	assert.Equal(t, 1, e.QueueLen(), "abort re-enqueues so the bit is observed")

	drain(e)
	assert.True(t, task.IsFinished())
	assert.True(t, task.IsAborted())
}

func TestTask_Abort_Idempotent(t *testing.T) {
	e := NewEngine("m")
	task := NewTask("twice", MultiplexFunc(func(t *Task, run RunType) {}))
	task.Run(WithDefaultEngine(e))

	task.Abort()
	assert.NotPanics(t, task.Abort)
	drain(e)

	assert.True(t, task.IsFinished())
	assert.NotPanics(t, task.Abort)
	assert.Equal(t, "aborted", task.StateString())
}

type abortSpy struct {
	aborted  int
	finished int
}

func (s *abortSpy) MultiplexImpl(t *Task, run RunType) {}
func (s *abortSpy) OnAbort(t *Task)                    { s.aborted++ }
func (s *abortSpy) OnFinish(t *Task)                   { s.finished++ }

func TestTask_Abort_RunsAbortHook(t *testing.T) {
	e := NewEngine("m")
	spy := &abortSpy{}
	task := NewTask("hooked", spy)
	task.Run(WithDefaultEngine(e))

	task.Abort()
	drain(e)

	assert.Equal(t, 1, spy.aborted)
	assert.Equal(t, 1, spy.finished)
}

func TestTask_OnFinishCallback(t *testing.T) {
	e := NewEngine("m")

	var got *Task
	task := NewTask("cb", MultiplexFunc(func(t *Task, run RunType) { t.Finish() }))
	task.Run(WithDefaultEngine(e), WithOnFinish(func(t *Task) { got = t }))

	drain(e)
	assert.Same(t, task, got)
}

func TestTask_ExternalFinish_OnIdleTask(t *testing.T) {
	e := NewEngine("m")
	task := NewTask("idle", MultiplexFunc(func(t *Task, run RunType) {
		t.Wait(func() bool { return false })
	}))
	task.Run(WithDefaultEngine(e))
	drain(e)
	require.True(t, task.IsIdle())

	task.Finish()
	assert.True(t, task.IsFinished())
	assert.Equal(t, "finished", task.StateString())
}

func TestTask_Kill_SkipsFinishCallbacks(t *testing.T) {
	e := NewEngine("m")
	spy := &abortSpy{}
	task := NewTask("killed", spy)
	var cbRan bool
	task.Run(WithDefaultEngine(e), WithOnFinish(func(*Task) { cbRan = true }))

	task.Kill()

	assert.True(t, task.IsKilled())
	assert.Equal(t, "killed", task.StateString())
	assert.Zero(t, spy.finished)
	assert.False(t, cbRan)

	// the engine drops the dead task on its next pass
	e.Mainloop()
	assert.Equal(t, 0, e.QueueLen())
}

func TestTask_Target_OverridesDefault(t *testing.T) {
	e1 := NewEngine("e1")
	e2 := NewEngine("e2")

	task := NewTask("targeted", MultiplexFunc(func(t *Task, run RunType) { t.Finish() }))
	task.Target(e2)
	task.Run(WithDefaultEngine(e1))

	assert.Equal(t, 0, e1.QueueLen())
	assert.Equal(t, 1, e2.QueueLen())
	assert.Same(t, e2, task.CurrentEngine())

	drain(e2)
	assert.True(t, task.IsFinished())
}

func TestTask_RunWithoutEngines_UsesAuxiliary(t *testing.T) {
	done := make(chan struct{})
	task := NewTask("orphan", MultiplexFunc(func(t *Task, run RunType) { t.Finish() }))
	task.Run(WithOnFinish(func(*Task) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("auxiliary engine did not run the task")
	}
	assert.True(t, task.IsFinished())
}

func TestTask_YieldMs_WithoutBudget_Panics(t *testing.T) {
	SetTimerScheduler(&fakeScheduler{})
	defer SetTimerScheduler(nil)

	e := NewEngine("unbudgeted")
	task := NewTask("sleeper", MultiplexFunc(func(t *Task, run RunType) {
		t.YieldMs(10 * time.Millisecond)
	}))

	assert.Panics(t, func() { task.Run(WithDefaultEngine(e)); e.Mainloop() })
	e.Flush()
}

func TestTask_YieldMs_ParksAndTimerWakes(t *testing.T) {
	sched := &fakeScheduler{}
	SetTimerScheduler(sched)
	defer SetTimerScheduler(nil)

	e := NewEngine("frame")
	e.SetMaxDuration(5 * time.Millisecond)

	steps := 0
	task := NewTask("napper", MultiplexFunc(func(t *Task, run RunType) {
		steps++
		if steps == 1 {
			t.YieldMs(25 * time.Millisecond)
			return
		}
		t.Finish()
	}))
	task.Run(WithDefaultEngine(e))

	e.Mainloop()

	assert.True(t, task.IsIdle())
	assert.Equal(t, 0, e.QueueLen())
	require.Equal(t, 1, sched.count())

	sched.fireAll()

	assert.True(t, task.IsActive())
	assert.Equal(t, 1, e.QueueLen())

	drain(e)
	assert.True(t, task.IsFinished())
	assert.Equal(t, 2, steps)
}

func TestTask_Abort_CancelsPendingTimer(t *testing.T) {
	sched := &fakeScheduler{}
	SetTimerScheduler(sched)
	defer SetTimerScheduler(nil)

	e := NewEngine("frame")
	e.SetMaxDuration(5 * time.Millisecond)

	task := NewTask("napper", MultiplexFunc(func(t *Task, run RunType) {
		t.YieldMs(time.Hour)
	}))
	task.Run(WithDefaultEngine(e))
	e.Mainloop()
	require.True(t, task.IsIdle())

	task.Abort()
	drain(e)

	assert.True(t, task.IsFinished())
	sched.mu.Lock()
	cancelled := sched.cancelled
	sched.mu.Unlock()
	assert.Equal(t, 1, cancelled)
}

func TestTask_YieldFrame_SkipsTicks(t *testing.T) {
	e := NewEngine("frame")
	e.SetMaxDuration(5 * time.Millisecond)

	steps := 0
	task := NewTask("framer", MultiplexFunc(func(t *Task, run RunType) {
		steps++
		if steps == 1 {
			t.YieldFrame(3)
			return
		}
		t.Finish()
	}))
	task.Run(WithDefaultEngine(e))

	drain(e)

	assert.True(t, task.IsFinished())
	assert.Equal(t, 2, steps, "the skipped ticks never reach the multiplexer")
}

func TestTask_YieldFrame_WithoutBudget_Panics(t *testing.T) {
	e := NewEngine("unbudgeted")
	task := NewTask("framer", MultiplexFunc(func(t *Task, run RunType) {
		t.YieldFrame(1)
	}))

	assert.Panics(t, func() { task.Run(WithDefaultEngine(e)); e.Mainloop() })
	e.Flush()
}

func TestTask_Hooks_ObserveTransitions(t *testing.T) {
	defer ResetHooks()

	var mu sync.Mutex
	var seen []Transition
	RegisterHook(func(_ *Task, tr Transition) {
		mu.Lock()
		seen = append(seen, tr)
		mu.Unlock()
	})

	e := NewEngine("m")
	steps := 0
	task := NewTask("observed", MultiplexFunc(func(t *Task, run RunType) {
		steps++
		if steps == 1 {
			t.Wait(func() bool { return false })
			return
		}
		t.Finish()
	}))
	task.Run(WithDefaultEngine(e))
	drain(e)
	task.Signal()
	drain(e)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Transition{TransitionRun, TransitionIdle, TransitionSignalled, TransitionFinished}, seen)
}

func TestTransition_String(t *testing.T) {
	tests := []struct {
		tr       Transition
		expected string
	}{
		{TransitionRun, "run"},
		{TransitionSignalled, "signalled"},
		{TransitionIdle, "idle"},
		{TransitionMigrated, "migrated"},
		{TransitionAborted, "aborted"},
		{TransitionFinished, "finished"},
		{TransitionKilled, "killed"},
		{Transition(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.tr.String())
	}
}

func TestRunType_String(t *testing.T) {
	assert.Equal(t, "initial_run", InitialRun.String())
	assert.Equal(t, "normal_run", NormalRun.String())
	assert.Equal(t, "unknown", RunType(99).String())
}
