package statefultask

import (
	"time"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/engine"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/timer"
)

// Core scheduling types
type (
	Engine      = engine.Engine
	Task        = engine.Task
	TaskInfo    = engine.TaskInfo
	RunType     = engine.RunType
	Multiplexer = engine.Multiplexer
	RunOption   = engine.RunOption
	Transition  = engine.Transition
	Hook        = engine.Hook
)

// MultiplexFunc adapts a plain function to the Multiplexer interface
type MultiplexFunc = engine.MultiplexFunc

// Optional multiplexer callbacks
type (
	AbortHandler  = engine.AbortHandler
	FinishHandler = engine.FinishHandler
)

// Timer types
type (
	Timer        = timer.Timer
	TimerQueue   = timer.Queue
	TimerService = timer.Service
)

// Run types passed to MultiplexImpl
const (
	InitialRun = engine.InitialRun
	NormalRun  = engine.NormalRun
)

// NewEngine creates an engine with no duration budget
func NewEngine(name string) *Engine { return engine.NewEngine(name) }

// NewTask creates a task around the given multiplex implementation
func NewTask(name string, impl Multiplexer) *Task { return engine.NewTask(name, impl) }

// Auxiliary returns the process-wide fallback engine
func Auxiliary() *Engine { return engine.Auxiliary() }

// RegisterHook adds a process-wide task transition observer
func RegisterHook(h Hook) { engine.RegisterHook(h) }

// SetTimerScheduler installs the scheduler backing YieldMs sleeps
func SetTimerScheduler(s engine.TimerScheduler) { engine.SetTimerScheduler(s) }

// NewTimerQueue creates an empty per-interval timer queue
func NewTimerQueue() *TimerQueue { return timer.NewQueue() }

// NewTimer creates a timer expiring at the given point
func NewTimer(expiresAt time.Time, fire func()) *Timer { return timer.New(expiresAt, fire) }

// NewTimerService creates the service that hosts timer queues and fires
// due timers; install it with SetTimerScheduler to back YieldMs sleeps
func NewTimerService(granularity time.Duration) *TimerService {
	return timer.NewService(granularity)
}
