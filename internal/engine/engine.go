package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/logger"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/metrics"
)

// Engine multiplexes tasks queued on it onto the single host goroutine
// that calls Mainloop. Any goroutine may Add tasks or WakeUp the host.
type Engine struct {
	name        string
	maxDuration atomic.Duration // zero means no budget

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Task
	queued  map[*Task]struct{}
	waiting bool // host goroutine parked on cond
	kicked  bool // WakeUp arrived while waiting

	running atomic.Bool // Mainloop in flight

	log zerolog.Logger
}

// NewEngine creates an engine with no duration budget
func NewEngine(name string) *Engine {
	e := &Engine{
		name:   name,
		queued: make(map[*Task]struct{}),
		log:    logger.WithEngine(name),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Name returns the construction-time label
func (e *Engine) Name() string { return e.name }

// SetMaxDuration configures the per-Mainloop duration budget. Zero removes
// the budget.
func (e *Engine) SetMaxDuration(d time.Duration) {
	if d < 0 {
		panic(fmt.Sprintf("engine %q: negative max duration %v", e.name, d))
	}
	e.maxDuration.Store(d)
}

// HasMaxDuration reports whether a duration budget is set
func (e *Engine) HasMaxDuration() bool { return e.maxDuration.Load() > 0 }

// MaxDuration returns the configured budget, zero when absent
func (e *Engine) MaxDuration() time.Duration { return e.maxDuration.Load() }

// Add appends the task to the FIFO unless it is already queued here, and
// wakes the host goroutine if it is parked. Safe from any goroutine.
func (e *Engine) Add(t *Task) {
	e.mu.Lock()
	if _, ok := e.queued[t]; ok {
		e.mu.Unlock()
		return
	}
	e.queued[t] = struct{}{}
	e.queue = append(e.queue, t)
	depth := len(e.queue)
	if e.waiting {
		e.cond.Signal()
	}
	e.mu.Unlock()

	metrics.UpdateEngineQueueDepth(e.name, float64(depth))
	e.log.Debug().Str("task_id", t.ID()).Int("depth", depth).Msg("task queued")
}

// WakeUp unparks a Mainloop sleeping on the condition variable. A wake-up
// of an engine that is not waiting is a no-op. Never blocks.
func (e *Engine) WakeUp() {
	e.mu.Lock()
	if e.waiting {
		e.kicked = true
		e.cond.Signal()
	}
	e.mu.Unlock()
}

// Flush removes every queued task and kills it. Intended for shutdown;
// later Add calls are still accepted but the host is assumed gone.
func (e *Engine) Flush() {
	e.mu.Lock()
	tasks := e.queue
	e.queue = nil
	e.queued = make(map[*Task]struct{})
	e.mu.Unlock()

	for _, t := range tasks {
		t.Kill()
	}

	metrics.RecordEngineFlush(e.name)
	metrics.UpdateEngineQueueDepth(e.name, 0)
	e.log.Info().Int("killed", len(tasks)).Msg("engine flushed")
}

// QueueLen returns the number of queued tasks
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// IsWaiting reports whether the host goroutine is parked. Test and admin
// observability only.
func (e *Engine) IsWaiting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waiting
}

// Mainloop dispatches queued tasks in FIFO order. Engines without a
// duration budget make one pass over the queue snapshot and return while
// runnable work remains, so the host can poll I/O between calls; engines
// with a budget keep ticking the queue until the budget is spent. With an
// empty queue Mainloop parks on the condition variable until Add or
// WakeUp; a WakeUp makes it return. A running task is never preempted.
//
// May not be called concurrently with itself on the same engine.
func (e *Engine) Mainloop() {
	if !e.running.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("engine %q: Mainloop called re-entrantly", e.name))
	}
	defer e.running.Store(false)

	start := time.Now()
	defer func() {
		metrics.RecordMainloopDuration(e.name, time.Since(start).Seconds())
	}()
	budget := e.maxDuration.Load()

	for {
		e.mu.Lock()
		snapshot := make([]*Task, len(e.queue))
		copy(snapshot, e.queue)
		e.mu.Unlock()

		if len(snapshot) == 0 {
			e.mu.Lock()
			if len(e.queue) > 0 {
				// raced with Add between snapshot and here
				e.mu.Unlock()
				continue
			}
			e.waiting = true
			for len(e.queue) == 0 && !e.kicked {
				e.cond.Wait()
			}
			e.waiting = false
			kicked := e.kicked
			e.kicked = false
			e.mu.Unlock()
			if kicked {
				return
			}
			continue
		}

		for _, t := range snapshot {
			t.multiplex(e)

			// reconcile the queue with the task's updated state:
			// gone idle, finished, or migrated means it no longer
			// belongs here
			if !t.IsActive() || t.CurrentEngine() != e {
				e.dropIfDetached(t)
			}

			if budget > 0 && time.Since(start) >= budget {
				return
			}
		}

		e.mu.Lock()
		remaining := len(e.queue)
		e.mu.Unlock()

		if remaining == 0 {
			// fully quiescent; the next invocation parks
			return
		}
		if budget == 0 {
			// runnable work remains but the host gets control back
			// between ticks
			return
		}
		// budgeted engine with time left: run another pass
	}
}

// dropIfDetached removes the task unless it still belongs here. The state
// is re-checked under the queue lock: a Signal that re-activated the task
// onto this engine in the meantime found it still in the queued set, so
// its Add was a no-op and removing now would lose the wake-up. Task locks
// are never held while an engine lock is taken, so nesting them this way
// round is safe.
func (e *Engine) dropIfDetached(t *Task) {
	e.mu.Lock()
	if _, ok := e.queued[t]; !ok {
		e.mu.Unlock()
		return
	}
	if t.IsActive() && t.CurrentEngine() == e {
		e.mu.Unlock()
		return
	}
	delete(e.queued, t)
	for i, qt := range e.queue {
		if qt == t {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			break
		}
	}
	depth := len(e.queue)
	e.mu.Unlock()

	metrics.UpdateEngineQueueDepth(e.name, float64(depth))
}
