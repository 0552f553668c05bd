package events

import (
	"context"
	"errors"
	"sync"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/logger"
)

const subscriberBuffer = 256

// ErrBusClosed is returned by operations on a closed bus
var ErrBusClosed = errors.New("event bus closed")

// MemoryBus is an in-process Publisher. Subscribers receive events on
// buffered channels; a subscriber that falls behind loses events rather
// than stalling the scheduler.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool
}

type subscription struct {
	ch    chan *Event
	types map[EventType]struct{} // nil means all
}

func (s *subscription) wants(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// NewMemoryBus creates an empty bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*subscription]struct{})}
}

// Publish delivers the event to every interested subscriber. Never blocks.
func (b *MemoryBus) Publish(_ context.Context, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	for sub := range b.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			logger.Warn().Str("type", string(event.Type)).Msg("subscriber buffer full, dropping event")
		}
	}
	return nil
}

// Subscribe returns a channel receiving events of the given types, or all
// events when none are named. The channel is closed when the context ends
// or the bus closes.
func (b *MemoryBus) Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}

	sub := &subscription{ch: make(chan *Event, subscriberBuffer)}
	if len(eventTypes) > 0 {
		sub.types = make(map[EventType]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.types[t] = struct{}{}
		}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.drop(sub)
	}()

	return sub.ch, nil
}

// SubscribeAll returns a channel receiving every event
func (b *MemoryBus) SubscribeAll(ctx context.Context) (<-chan *Event, error) {
	return b.Subscribe(ctx)
}

// Close drops all subscribers and closes their channels
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
	return nil
}

func (b *MemoryBus) drop(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
