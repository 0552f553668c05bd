package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/logger"
)

const clientIdleEviction = 5 * time.Minute

// TokenBucket admits up to rps requests per second with bursts up to the
// bucket capacity
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	perSecond  float64
	lastRefill time.Time
}

// NewTokenBucket creates a full bucket refilled at rps tokens per second
func NewTokenBucket(rps int) *TokenBucket {
	if rps <= 0 {
		rps = 1000 // default
	}
	return &TokenBucket{
		tokens:     float64(rps),
		capacity:   float64(rps),
		perSecond:  float64(rps),
		lastRefill: time.Now(),
	}
}

// Allow takes one token, reporting false when the bucket is empty
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (b *TokenBucket) refillLocked() {
	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.perSecond
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// ClientRateLimiter keeps one token bucket per admin client, evicting
// buckets that have been idle for a while
type ClientRateLimiter struct {
	mu      sync.RWMutex
	clients map[string]*clientBucket
	rps     int
}

type clientBucket struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// NewClientRateLimiter creates a per-client rate limiter
func NewClientRateLimiter(rps int) *ClientRateLimiter {
	crl := &ClientRateLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rps,
	}
	go crl.evictLoop()
	return crl
}

func (crl *ClientRateLimiter) evictLoop() {
	ticker := time.NewTicker(clientIdleEviction)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-clientIdleEviction)
		crl.mu.Lock()
		for id, cb := range crl.clients {
			if cb.lastSeen.Before(cutoff) {
				delete(crl.clients, id)
			}
		}
		crl.mu.Unlock()
	}
}

// GetLimiter returns the bucket for a client, creating it on first sight
func (crl *ClientRateLimiter) GetLimiter(clientID string) *TokenBucket {
	now := time.Now()

	crl.mu.RLock()
	cb, exists := crl.clients[clientID]
	crl.mu.RUnlock()

	if exists {
		crl.mu.Lock()
		cb.lastSeen = now
		crl.mu.Unlock()
		return cb.bucket
	}

	crl.mu.Lock()
	defer crl.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, exists = crl.clients[clientID]; exists {
		cb.lastSeen = now
		return cb.bucket
	}

	cb = &clientBucket{bucket: NewTokenBucket(crl.rps), lastSeen: now}
	crl.clients[clientID] = cb
	return cb.bucket
}

// ClientRateLimit returns a middleware that enforces per-client rate
// limiting on the admin surface
func ClientRateLimit(rps int) func(next http.Handler) http.Handler {
	limiter := NewClientRateLimiter(rps)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Use X-Forwarded-For or RemoteAddr as client identifier
			clientID := r.Header.Get("X-Forwarded-For")
			if clientID == "" {
				clientID = r.RemoteAddr
			}

			if !limiter.GetLimiter(clientID).Allow() {
				logger.Warn().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("client", clientID).
					Msg("client rate limit exceeded")

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"Too Many Requests","message":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
