package ratelimit

import (
	"net/http"

	"github.com/michaldziwisz/sygnalista/failure"
)

// Middleware rejects requests over the quota with a 429 envelope before
// they reach the handler chain.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientIP(r)) {
				failure.SendError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
