package timer

import (
	"context"
	"sync"
	"time"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/logger"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/metrics"
)

// Service is the platform timer thread: it owns one Queue per distinct
// interval, sleeps until the earliest expiration across all of them, and
// fires due timers. Firing a timer typically signals the task that went to
// sleep on it. Implements the engine's TimerScheduler contract.
type Service struct {
	granularity time.Duration

	mu     sync.Mutex
	queues map[time.Duration]*Queue

	kickCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService creates a timer service. Granularity bounds how long the
// service sleeps when no timer is running.
func NewService(granularity time.Duration) *Service {
	if granularity <= 0 {
		granularity = 100 * time.Millisecond
	}
	return &Service{
		granularity: granularity,
		queues:      make(map[time.Duration]*Queue),
		kickCh:      make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the expiration loop
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)

	logger.Info().
		Dur("granularity", s.granularity).
		Msg("timer service started")
}

// Stop stops the expiration loop. Running timers never fire after Stop
// returns.
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	logger.Info().Msg("timer service stopped")
}

// Schedule starts a timer that fires after the given interval. The
// returned cancel func is safe to call at any time, including after the
// timer fired, and is idempotent.
func (s *Service) Schedule(interval time.Duration, fire func()) (cancel func()) {
	s.mu.Lock()
	q, ok := s.queues[interval]
	if !ok {
		q = NewQueue()
		s.queues[interval] = q
	}
	seq := q.Push(New(time.Now().Add(interval), fire))
	s.mu.Unlock()

	metrics.RecordTimerStart()
	s.kick()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if !q.live(seq) {
				return // already fired or swept
			}
			q.Cancel(seq)
			metrics.RecordTimerCancelled()
		})
	}
}

// Intervals returns the number of distinct intervals with a queue
func (s *Service) Intervals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

func (s *Service) kick() {
	select {
	case s.kickCh <- struct{}{}:
	default:
	}
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		d := s.granularity
		if next, ok := s.nextExpiration(); ok {
			until := time.Until(next)
			if until < 0 {
				until = 0
			}
			if until < d {
				d = until
			}
		}

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-s.stopCh:
			t.Stop()
			return
		case <-s.kickCh:
			// a new timer may expire earlier; recompute the sleep
			t.Stop()
		case <-t.C:
			s.fireDue()
		}
	}
}

func (s *Service) nextExpiration() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	found := false
	for _, q := range s.queues {
		if exp, ok := q.NextExpiration(); ok {
			if !found || exp.Before(earliest) {
				earliest = exp
				found = true
			}
		}
	}
	return earliest, found
}

func (s *Service) fireDue() {
	now := time.Now()

	var due []*Timer
	s.mu.Lock()
	for _, q := range s.queues {
		for {
			exp, ok := q.NextExpiration()
			if !ok || exp.After(now) {
				break
			}
			due = append(due, q.Pop())
		}
	}
	s.mu.Unlock()

	// fire outside the lock: the wake callback re-enters the scheduler
	for _, t := range due {
		metrics.RecordTimerExpired()
		t.Fire()
	}
}
