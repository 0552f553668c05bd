// Package statefultask is the public surface of the cooperative
// stateful-task scheduling runtime.
//
// An Engine multiplexes many long-lived tasks onto the single goroutine
// that drives its Mainloop. A Task wraps a user-supplied incremental state
// machine: each dispatched step runs briefly, then directs its own future
// through Yield, Wait, YieldMs, or Finish. Signals from any goroutine wake
// waiting tasks; Abort requests termination and is observed at the next
// step.
//
//	eng := statefultask.NewEngine("main")
//	go func() {
//		for {
//			eng.Mainloop()
//		}
//	}()
//
//	count := 0
//	t := statefultask.NewTask("counter", statefultask.MultiplexFunc(
//		func(t *statefultask.Task, run statefultask.RunType) {
//			count++
//			if count == 5 {
//				t.Finish()
//			}
//		}))
//	t.Run(statefultask.WithDefaultEngine(eng))
package statefultask
