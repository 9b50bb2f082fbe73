// Package ratelimit provides the per-client intake quota: a fixed number
// of requests per one-minute window, counted in a pluggable TTL store.
//
// The check is a read-then-write pair against the store, so concurrent
// requests from the same client can slip past the limit inside one
// window. That makes this an approximate limiter, not a hard guarantee;
// the CounterStore interface is the seam for a backend with stronger
// atomicity if a deployment needs one.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CounterStore is the opaque counter backend: get a bucket's count, or
// replace it with a TTL.
type CounterStore interface {
	Get(key string) (int, bool)
	Put(key string, n int, ttl time.Duration)
}

// Limiter enforces a per-key requests-per-minute quota. A limit of zero
// or less disables it.
type Limiter struct {
	store CounterStore
	limit int

	now func() time.Time
}

func New(store CounterStore, perMinute int) *Limiter {
	return &Limiter{
		store: store,
		limit: perMinute,
		now:   time.Now,
	}
}

// Allow reports whether one more request from key fits in the current
// minute window, and counts it when it does.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	bucket := key + "/" + strconv.FormatInt(l.now().Unix()/60, 10)
	n, _ := l.store.Get(bucket)
	if n >= l.limit {
		return false
	}
	l.store.Put(bucket, n+1, time.Minute)
	return true
}

// ClientIP extracts the client identity for rate limiting: the platform
// header if present, else the first x-forwarded-for entry, else the
// RemoteAddr host.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("cf-connecting-ip"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("x-forwarded-for"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		addr = addr[:idx]
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}
