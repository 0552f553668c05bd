package events

import (
	"context"
	"encoding/json"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Task events
	EventTaskStarted   EventType = "task.started"
	EventTaskIdle      EventType = "task.idle"
	EventTaskSignalled EventType = "task.signalled"
	EventTaskMigrated  EventType = "task.migrated"
	EventTaskAborted   EventType = "task.aborted"
	EventTaskFinished  EventType = "task.finished"
	EventTaskKilled    EventType = "task.killed"

	// Engine events
	EventEngineFlushed EventType = "engine.flushed"

	// System events
	EventQueueDepth EventType = "queue.depth"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ToJSON serializes the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Publisher defines the interface for event publishers
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error)
	Close() error
}

// TaskEventData creates event data for task events
func TaskEventData(taskID, taskName, state, engine string) map[string]interface{} {
	data := map[string]interface{}{
		"task_id": taskID,
		"name":    taskName,
		"state":   state,
	}
	if engine != "" {
		data["engine"] = engine
	}
	return data
}

// EngineEventData creates event data for engine events
func EngineEventData(engine string, depth int) map[string]interface{} {
	return map[string]interface{}{
		"engine": engine,
		"depth":  depth,
	}
}
