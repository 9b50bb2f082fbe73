package ratelimit

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaldziwisz/sygnalista/failure"
)

func TestMain(m *testing.M) {
	failure.Init(log.New(io.Discard, "", 0))
	m.Run()
}

func frozenLimiter(limit int) (*Limiter, *time.Time) {
	now := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	l := New(NewMemoryStore(), limit)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterAllowsExactlyNPerWindow(t *testing.T) {
	const limit = 3
	l, _ := frozenLimiter(limit)

	for i := 0; i < limit; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "request %d should pass", i)
	}
	assert.False(t, l.Allow("1.2.3.4"), "request over the limit must be rejected")
	assert.False(t, l.Allow("1.2.3.4"))
}

func TestLimiterResetsNextMinuteWindow(t *testing.T) {
	l, now := frozenLimiter(2)

	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))

	*now = now.Add(time.Minute)
	assert.True(t, l.Allow("1.2.3.4"), "next minute window starts fresh")
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l, _ := frozenLimiter(1)

	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"))
}

func TestLimiterDisabled(t *testing.T) {
	l, _ := frozenLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("1.2.3.4"))
	}

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow("1.2.3.4"))
}

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Put("k", 4, time.Minute)
	n, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, 4, n)

	s.Put("k", 5, time.Minute)
	n, _ = s.Get("k")
	assert.Equal(t, 5, n)
}

func TestClientIPPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/report", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	assert.Equal(t, "10.0.0.9", ClientIP(req))

	req.Header.Set("x-forwarded-for", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req))

	req.Header.Set("cf-connecting-ip", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(req))
}

func TestMiddlewareRejectsWith429Envelope(t *testing.T) {
	l, _ := frozenLimiter(1)
	handler := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/report", nil)
	req.RemoteAddr = "10.0.0.9:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "too_many_requests")
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
}
