package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

type rateCounter struct{ routes []string }

func (c *rateCounter) ObserveRateLimited(route string) { c.routes = append(c.routes, route) }

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Minute), Burst: 2}, nil)
	t.Cleanup(rl.Stop)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiter_CleanupDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Minute), Burst: 1, CleanupInterval: time.Minute}, nil)
	t.Cleanup(rl.Stop)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(90 * time.Second)
	rl.Allow("fresh")
	now = now.Add(60 * time.Second)
	rl.cleanup()

	assert.Equal(t, 1, rl.Len())
	assert.True(t, rl.Allow("old"), "a dropped client starts with a full bucket")
}

func TestRateLimiter_Middleware(t *testing.T) {
	obs := &rateCounter{}
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(30 * time.Second), Burst: 1}, obs)
	t.Cleanup(rl.Stop)
	h := rl.Middleware("regular_login")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"regular_login"}, obs.routes)
}

func TestRateLimiter_NilPassesThrough(t *testing.T) {
	var rl *RateLimiter
	rec := httptest.NewRecorder()
	rl.Middleware("x")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 60, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(rate.Limit(5)))
	assert.Equal(t, 6, retryAfterSeconds(rate.Every(6*time.Second)))
}
