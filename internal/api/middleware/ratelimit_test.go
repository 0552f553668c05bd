package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_Allow(t *testing.T) {
	b := NewTokenBucket(2)

	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "bucket exhausted")
}

func TestTokenBucket_Refills(t *testing.T) {
	b := NewTokenBucket(100)
	for b.Allow() {
	}

	time.Sleep(50 * time.Millisecond)
	assert.True(t, b.Allow(), "tokens come back over time")
}

func TestTokenBucket_DefaultsOnBadRPS(t *testing.T) {
	b := NewTokenBucket(0)
	assert.True(t, b.Allow())
}

func TestClientRateLimiter_PerClientBuckets(t *testing.T) {
	crl := NewClientRateLimiter(1)

	a := crl.GetLimiter("client-a")
	b := crl.GetLimiter("client-b")

	assert.True(t, a.Allow())
	assert.False(t, a.Allow())
	assert.True(t, b.Allow(), "clients have independent buckets")

	// same client gets the same bucket back
	assert.Same(t, a, crl.GetLimiter("client-a"))
}

func TestClientRateLimit_Middleware(t *testing.T) {
	handler := ClientRateLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
