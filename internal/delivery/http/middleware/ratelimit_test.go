package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRateLimiter struct {
	allow      bool
	retryAfter time.Duration
	lastKey    string
}

func (f *fakeRateLimiter) Allow(key string) (bool, time.Duration) {
	f.lastKey = key
	return f.allow, f.retryAfter
}

func TestRateLimit(t *testing.T) {
	t.Run("allowed request passes through", func(t *testing.T) {
		limiter := &fakeRateLimiter{allow: true}
		nextCalled := false
		handler := RateLimit(limiter)(func(w http.ResponseWriter, r *http.Request) {
			nextCalled = true
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/invitations/redeem", nil)
		req.RemoteAddr = "10.1.2.3:54321"
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.True(t, nextCalled)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http:10.1.2.3", limiter.lastKey)
	})

	t.Run("denied request gets 429 with retry-after", func(t *testing.T) {
		limiter := &fakeRateLimiter{allow: false, retryAfter: 42 * time.Second}
		handler := RateLimit(limiter)(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("next must not be called")
		})

		req := httptest.NewRequest(http.MethodPost, "/invitations/redeem", nil)
		req.RemoteAddr = "10.1.2.3:54321"
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "42", rec.Header().Get("Retry-After"))
	})

	t.Run("retry-after is at least one second", func(t *testing.T) {
		limiter := &fakeRateLimiter{allow: false, retryAfter: 100 * time.Millisecond}
		handler := RateLimit(limiter)(func(w http.ResponseWriter, r *http.Request) {})

		req := httptest.NewRequest(http.MethodPost, "/invitations/redeem", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	require.Equal(t, "192.0.2.1", ClientAddr(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 70.41.3.18")
	require.Equal(t, "203.0.113.7", ClientAddr(req))
}
