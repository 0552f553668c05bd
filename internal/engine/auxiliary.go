package engine

import "sync"

var (
	auxOnce sync.Once
	aux     *Engine
)

// Auxiliary returns the process-wide fallback engine, creating it on first
// use. It has no duration budget and hosts its own dispatch goroutine, so
// tasks with no target, current, or default engine always make progress.
// Lifetime is the lifetime of the process.
func Auxiliary() *Engine {
	auxOnce.Do(func() {
		aux = NewEngine("auxiliary")
		go func() {
			for {
				aux.Mainloop()
			}
		}()
	})
	return aux
}
