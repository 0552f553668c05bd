package events

import (
	"context"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/engine"
)

// BridgeEngineHooks registers an engine debug hook that republishes every
// task state transition on the given publisher. The hook observes only; it
// never mutates the task.
func BridgeEngineHooks(pub Publisher) {
	engine.RegisterHook(func(t *engine.Task, tr engine.Transition) {
		info := t.Info()
		ev := NewEvent(transitionEventType(tr), TaskEventData(info.ID, info.Name, info.State, info.Engine))
		_ = pub.Publish(context.Background(), ev)
	})
}

func transitionEventType(tr engine.Transition) EventType {
	switch tr {
	case engine.TransitionRun:
		return EventTaskStarted
	case engine.TransitionIdle:
		return EventTaskIdle
	case engine.TransitionSignalled:
		return EventTaskSignalled
	case engine.TransitionMigrated:
		return EventTaskMigrated
	case engine.TransitionAborted:
		return EventTaskAborted
	case engine.TransitionFinished:
		return EventTaskFinished
	case engine.TransitionKilled:
		return EventTaskKilled
	default:
		return EventType("task." + tr.String())
	}
}
