package statefultask

import "github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/engine"

// WithDefaultEngine fixes the task's default engine at Run. The default is
// the last fallback before the auxiliary engine when the task has neither
// a target nor a current engine.
func WithDefaultEngine(e *Engine) RunOption {
	return engine.WithDefaultEngine(e)
}

// WithOnFinish registers a callback invoked once when the task terminates
// through Finish or Abort.
func WithOnFinish(fn func(*Task)) RunOption {
	return engine.WithOnFinish(fn)
}
