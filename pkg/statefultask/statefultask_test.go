package statefultask_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/pkg/statefultask"
)

func TestFacade_RunToCompletion(t *testing.T) {
	eng := statefultask.NewEngine("facade")

	count := 0
	task := statefultask.NewTask("counter", statefultask.MultiplexFunc(
		func(t *statefultask.Task, run statefultask.RunType) {
			count++
			if count == 3 {
				t.Finish()
			}
		}))

	var finished *statefultask.Task
	task.Run(
		statefultask.WithDefaultEngine(eng),
		statefultask.WithOnFinish(func(t *statefultask.Task) { finished = t }),
	)

	for eng.QueueLen() > 0 {
		eng.Mainloop()
	}

	assert.Equal(t, 3, count)
	assert.True(t, task.IsFinished())
	assert.Same(t, task, finished)
}

func TestFacade_TimerQueue(t *testing.T) {
	q := statefultask.NewTimerQueue()
	require.True(t, q.Empty())

	seq := q.Push(statefultask.NewTimer(time.Now().Add(time.Second), nil))
	assert.Equal(t, uint64(0), seq)
	assert.True(t, q.IsCurrent(seq))
	assert.Equal(t, 1, q.Size())
}
