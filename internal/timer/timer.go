package timer

import "time"

// Timer is one running timer: an expiration point plus the callback that
// wakes the task it belongs to. The queue does not own it; the service
// that popped it decides when to fire.
type Timer struct {
	expiresAt time.Time
	fire      func()
}

// New creates a timer expiring at the given point
func New(expiresAt time.Time, fire func()) *Timer {
	return &Timer{expiresAt: expiresAt, fire: fire}
}

// ExpiresAt returns the expiration point
func (t *Timer) ExpiresAt() time.Time { return t.expiresAt }

// Fire invokes the wake callback
func (t *Timer) Fire() {
	if t.fire != nil {
		t.fire()
	}
}
