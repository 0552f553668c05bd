package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/logger"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/metrics"
)

// RunType tells the multiplex implementation why it is being invoked
type RunType int

const (
	InitialRun RunType = iota // first step after Run
	NormalRun                 // every subsequent step
)

func (r RunType) String() string {
	switch r {
	case InitialRun:
		return "initial_run"
	case NormalRun:
		return "normal_run"
	default:
		return "unknown"
	}
}

// Multiplexer is the user-supplied incremental state machine. The engine
// invokes MultiplexImpl with no locks held; the implementation must return
// promptly and direct the task's next step through the control methods
// (Yield, Wait, YieldMs, Finish, ...).
type Multiplexer interface {
	MultiplexImpl(t *Task, run RunType)
}

// MultiplexFunc adapts a plain function to the Multiplexer interface
type MultiplexFunc func(t *Task, run RunType)

func (f MultiplexFunc) MultiplexImpl(t *Task, run RunType) { f(t, run) }

// AbortHandler is implemented by multiplexers that want a callback when
// their task terminates through Abort
type AbortHandler interface {
	OnAbort(t *Task)
}

// FinishHandler is implemented by multiplexers that want a callback when
// their task reaches a terminal state through Finish or Abort (not Kill);
// on Abort it runs after OnAbort
type FinishHandler interface {
	OnFinish(t *Task)
}

// Activity bits. Held in one atomic word so observers never see a torn
// state; compound transitions additionally hold the task mutex.
const (
	flagActive uint32 = 1 << iota
	flagIdle          // waiting for a signal, dequeued everywhere
	flagAborted
	flagFinished
	flagKilled
)

// pendingOp records what the multiplex implementation asked for during the
// current step; applied after MultiplexImpl returns.
type pendingOp int

const (
	opContinue pendingOp = iota // stay queued, run again next tick
	opWait                      // park until Signal
	opSleep                     // park and schedule a timer
	opFinish                    // terminate normally
)

// TimerScheduler is the collaborator that converts wall-clock expirations
// into task wake-ups. The returned cancel func must be safe to call after
// the timer has fired.
type TimerScheduler interface {
	Schedule(interval time.Duration, fire func()) (cancel func())
}

var (
	timerMu        sync.RWMutex
	timerScheduler TimerScheduler
)

// SetTimerScheduler installs the process-wide timer scheduler used by
// YieldMs. Must be called before any task sleeps.
func SetTimerScheduler(s TimerScheduler) {
	timerMu.Lock()
	defer timerMu.Unlock()
	timerScheduler = s
}

func scheduler() TimerScheduler {
	timerMu.RLock()
	defer timerMu.RUnlock()
	return timerScheduler
}

// Task is the control block of one cooperative state machine. It is
// reference-typed: engines hold the same *Task while it is queued, and the
// registry keeps it reachable until a terminal transition.
type Task struct {
	id   string
	name string
	impl Multiplexer

	state         atomic.Uint32
	signalPending atomic.Bool

	mu         sync.Mutex
	target     *Engine // user's explicit next-engine preference
	current    *Engine // engine the task is queued on right now
	def        *Engine // fixed at Run
	started    bool
	running    bool // inside MultiplexImpl
	op         pendingOp
	waitCond   func() bool
	sleep      time.Duration
	skipFrames int
	cancelTimer func()
	onFinish   func(*Task)

	log zerolog.Logger
}

// NewTask creates a task around the given multiplex implementation. The
// task does nothing until Run is called.
func NewTask(name string, impl Multiplexer) *Task {
	id := uuid.New().String()
	return &Task{
		id:   id,
		name: name,
		impl: impl,
		log:  logger.WithTask(id),
	}
}

func (t *Task) ID() string   { return t.id }
func (t *Task) Name() string { return t.name }

func (t *Task) hasAny(mask uint32) bool { return t.state.Load()&mask != 0 }

func (t *Task) setFlags(mask uint32) {
	for {
		old := t.state.Load()
		if t.state.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

func (t *Task) clearFlags(mask uint32) {
	for {
		old := t.state.Load()
		if t.state.CompareAndSwap(old, old&^mask) {
			return
		}
	}
}

// IsActive reports whether the task is runnable and queued on some engine
func (t *Task) IsActive() bool { return t.hasAny(flagActive) }

// IsIdle reports whether the task is parked waiting for a signal
func (t *Task) IsIdle() bool { return t.hasAny(flagIdle) }

// WaitingForSignal is an alias for IsIdle
func (t *Task) WaitingForSignal() bool { return t.IsIdle() }

func (t *Task) IsAborted() bool  { return t.hasAny(flagAborted) }
func (t *Task) IsFinished() bool { return t.hasAny(flagFinished) }
func (t *Task) IsKilled() bool   { return t.hasAny(flagKilled) }

// StateString renders the activity bits for logs and the admin API
func (t *Task) StateString() string {
	s := t.state.Load()
	switch {
	case s&flagKilled != 0:
		return "killed"
	case s&flagFinished != 0 && s&flagAborted != 0:
		return "aborted"
	case s&flagFinished != 0:
		return "finished"
	case s&flagAborted != 0:
		return "aborting"
	case s&flagIdle != 0:
		return "idle"
	case s&flagActive != 0:
		return "active"
	default:
		return "fresh"
	}
}

// TargetEngine returns the user's explicit next-engine preference, if any
func (t *Task) TargetEngine() *Engine {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// CurrentEngine returns the engine the task is presently queued on, if any
func (t *Task) CurrentEngine() *Engine {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// DefaultEngine returns the engine fixed at Run, if any
func (t *Task) DefaultEngine() *Engine {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.def
}

// canonicalLocked resolves the engine the task should next run on: the
// first non-nil of target, current, default, falling back to the
// process-wide auxiliary engine. Caller holds t.mu.
func (t *Task) canonicalLocked() *Engine {
	switch {
	case t.target != nil:
		return t.target
	case t.current != nil:
		return t.current
	case t.def != nil:
		return t.def
	default:
		return Auxiliary()
	}
}

// RunOption configures Run
type RunOption func(*runOptions)

type runOptions struct {
	def      *Engine
	onFinish func(*Task)
}

// WithDefaultEngine fixes the task's default engine for its whole lifetime
func WithDefaultEngine(e *Engine) RunOption {
	return func(o *runOptions) { o.def = e }
}

// WithOnFinish registers a callback invoked once when the task reaches a
// terminal state through Finish or Abort (not Kill)
func WithOnFinish(fn func(*Task)) RunOption {
	return func(o *runOptions) { o.onFinish = fn }
}

// Run transitions a fresh task to active and enqueues it on its canonical
// engine. A task runs at most once; calling Run again is a programmer
// error.
func (t *Task) Run(opts ...RunOption) {
	if t.hasAny(flagActive | flagIdle | flagFinished | flagKilled) {
		panic(fmt.Sprintf("task %q: Run called on a task that has already run", t.name))
	}

	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	t.mu.Lock()
	t.def = o.def
	t.onFinish = o.onFinish
	t.setFlags(flagActive)
	canon := t.canonicalLocked()
	t.current = canon
	t.mu.Unlock()

	registerTask(t)
	metrics.RecordTaskStart(canon.Name())
	notifyHooks(t, TransitionRun)
	t.log.Debug().Str("engine", canon.Name()).Str("task", t.name).Msg("task started")
	canon.Add(t)
}

// Target records an explicit next-engine preference without yielding
func (t *Task) Target(e *Engine) {
	t.mu.Lock()
	t.target = e
	t.mu.Unlock()
}

// Yield directs the task to continue on the given engine next tick. A nil
// engine means "stay where I am", or the auxiliary engine when the task is
// not queued anywhere. Call from within MultiplexImpl.
func (t *Task) Yield(e *Engine) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e == nil {
		if t.current != nil {
			e = t.current
		} else {
			e = Auxiliary()
		}
	}
	t.target = e
}

// Wait parks the task until Signal arrives. The condition is re-checked
// once when the step ends: if it already holds, the task stays runnable.
// Call from within MultiplexImpl.
func (t *Task) Wait(condition func() bool) {
	t.mu.Lock()
	t.op = opWait
	t.waitCond = condition
	t.mu.Unlock()
}

// YieldMs parks the task and schedules a timer that signals it after d.
// Only engines with a duration budget may host timed sleeps; anything else
// is a programmer error. Call from within MultiplexImpl.
func (t *Task) YieldMs(d time.Duration) {
	if scheduler() == nil {
		panic(fmt.Sprintf("task %q: YieldMs without a timer scheduler installed", t.name))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	canon := t.canonicalLocked()
	if !canon.HasMaxDuration() {
		panic(fmt.Sprintf("task %q: YieldMs needs an engine with a duration budget, %q has none", t.name, canon.Name()))
	}
	t.op = opSleep
	t.sleep = d
}

// YieldFrame makes the engine skip the task for the given number of ticks.
// Like YieldMs it is only meaningful on engines with a duration budget.
// Call from within MultiplexImpl.
func (t *Task) YieldFrame(frames int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	canon := t.canonicalLocked()
	if !canon.HasMaxDuration() {
		panic(fmt.Sprintf("task %q: YieldFrame needs an engine with a duration budget, %q has none", t.name, canon.Name()))
	}
	t.skipFrames = frames
}

// Finish terminates the task normally. Inside MultiplexImpl it takes
// effect when the step returns; from outside it takes effect immediately.
func (t *Task) Finish() {
	t.mu.Lock()
	if t.running {
		t.op = opFinish
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.terminate("finished")
}

// Signal notifies the task that whatever it was waiting for may have
// happened. Safe from any goroutine. A signal to a task that is not
// waiting records one pending wake, so a wake racing the park is never
// lost. Reports whether a waiting task was actually woken.
func (t *Task) Signal() bool {
	if t.hasAny(flagFinished | flagKilled) {
		return false
	}

	t.mu.Lock()
	if t.hasAny(flagIdle) {
		t.clearFlags(flagIdle)
		t.setFlags(flagActive)
		if t.cancelTimer != nil {
			cancel := t.cancelTimer
			t.cancelTimer = nil
			cancel()
		}
		canon := t.canonicalLocked()
		t.current = canon
		t.mu.Unlock()

		metrics.RecordSignal(true)
		notifyHooks(t, TransitionSignalled)
		canon.Add(t)
		return true
	}
	t.mu.Unlock()

	t.signalPending.Store(true)
	metrics.RecordSignal(false)
	return false
}

// Abort requests termination. Level-triggered and idempotent: the next
// multiplex observes the bit and ends the task. A sleeping task is woken
// so the observation is not delayed until its timer fires.
func (t *Task) Abort() {
	if t.hasAny(flagFinished | flagKilled | flagAborted) {
		return
	}
	t.setFlags(flagAborted)
	notifyHooks(t, TransitionAborted)

	t.mu.Lock()
	if t.hasAny(flagIdle) {
		t.clearFlags(flagIdle)
		t.setFlags(flagActive)
		if t.cancelTimer != nil {
			cancel := t.cancelTimer
			t.cancelTimer = nil
			cancel()
		}
		canon := t.canonicalLocked()
		t.current = canon
		t.mu.Unlock()
		canon.Add(t)
		return
	}
	t.mu.Unlock()
}

// Kill drops the task without running finish callbacks. Used by Flush on
// shutdown; the task never runs again.
func (t *Task) Kill() {
	if t.hasAny(flagFinished | flagKilled) {
		return
	}
	t.mu.Lock()
	t.clearFlags(flagActive | flagIdle)
	t.setFlags(flagKilled)
	if t.cancelTimer != nil {
		cancel := t.cancelTimer
		t.cancelTimer = nil
		cancel()
	}
	t.target = nil
	t.current = nil
	t.mu.Unlock()

	deregisterTask(t)
	metrics.RecordTaskFinish("killed")
	notifyHooks(t, TransitionKilled)
}

// multiplex runs one step of the task on behalf of engine e. Invoked with
// no engine lock held; the engine inspects the task state afterwards to
// decide whether it stays queued.
func (t *Task) multiplex(e *Engine) {
	if t.hasAny(flagFinished | flagKilled) {
		return
	}
	if t.hasAny(flagAborted) {
		t.terminateAborted()
		return
	}

	t.mu.Lock()
	if t.skipFrames > 0 {
		t.skipFrames--
		t.mu.Unlock()
		return
	}
	run := NormalRun
	if !t.started {
		t.started = true
		run = InitialRun
	}
	t.running = true
	t.op = opContinue
	t.waitCond = nil
	t.mu.Unlock()

	metrics.RecordMultiplex(e.Name())
	t.impl.MultiplexImpl(t, run)

	t.mu.Lock()
	t.running = false

	// an abort that landed during the step wins over whatever the step
	// asked for
	if t.hasAny(flagAborted) {
		t.mu.Unlock()
		t.terminateAborted()
		return
	}

	switch t.op {
	case opFinish:
		t.mu.Unlock()
		t.terminate("finished")
		return

	case opWait:
		cond := t.waitCond
		if t.signalPending.Swap(false) || (cond != nil && cond()) {
			// the wake already arrived, or the condition holds:
			// stay runnable
		} else {
			t.clearFlags(flagActive)
			t.setFlags(flagIdle)
			t.current = nil
			t.mu.Unlock()
			notifyHooks(t, TransitionIdle)
			return
		}

	case opSleep:
		if t.signalPending.Swap(false) {
			// superseded before parking
		} else {
			t.clearFlags(flagActive)
			t.setFlags(flagIdle)
			t.current = nil
			d := t.sleep
			t.mu.Unlock()

			cancel := scheduler().Schedule(d, t.timerExpired)

			t.mu.Lock()
			if t.hasAny(flagIdle) {
				t.cancelTimer = cancel
				t.mu.Unlock()
			} else {
				// woken between parking and scheduling; the
				// timer is already stale
				t.mu.Unlock()
				cancel()
			}
			notifyHooks(t, TransitionIdle)
			return
		}
	}

	// reconcile: pick where the task runs next
	canon := t.canonicalLocked()
	t.current = canon
	t.mu.Unlock()

	if canon != e {
		metrics.RecordMigration(e.Name(), canon.Name())
		notifyHooks(t, TransitionMigrated)
		canon.Add(t)
	}
}

func (t *Task) timerExpired() {
	t.mu.Lock()
	t.cancelTimer = nil
	t.mu.Unlock()
	t.Signal()
}

func (t *Task) terminate(outcome string) {
	t.mu.Lock()
	if t.hasAny(flagFinished | flagKilled) {
		t.mu.Unlock()
		return
	}
	t.clearFlags(flagActive | flagIdle)
	t.setFlags(flagFinished)
	if t.cancelTimer != nil {
		cancel := t.cancelTimer
		t.cancelTimer = nil
		cancel()
	}
	t.target = nil
	t.current = nil
	cb := t.onFinish
	t.mu.Unlock()

	if fh, ok := t.impl.(FinishHandler); ok {
		fh.OnFinish(t)
	}
	if cb != nil {
		cb(t)
	}

	deregisterTask(t)
	metrics.RecordTaskFinish(outcome)
	notifyHooks(t, TransitionFinished)
	t.log.Debug().Str("task", t.name).Str("outcome", outcome).Msg("task terminated")
}

func (t *Task) terminateAborted() {
	if ah, ok := t.impl.(AbortHandler); ok {
		ah.OnAbort(t)
	}
	t.terminate("aborted")
}

// TaskInfo is a point-in-time snapshot used by the admin API
type TaskInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	State  string `json:"state"`
	Engine string `json:"engine,omitempty"`
}

// Info snapshots the task for external observers
func (t *Task) Info() TaskInfo {
	info := TaskInfo{
		ID:    t.id,
		Name:  t.name,
		State: t.StateString(),
	}
	if e := t.CurrentEngine(); e != nil {
		info.Engine = e.Name()
	}
	return info
}
