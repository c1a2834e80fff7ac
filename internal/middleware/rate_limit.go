package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/PS-Soundwave/virtu/internal/logging"
)

// RateLimit rejects requests with 429 once the caller's IP exceeds limiter
// within scope. A nil limiter disables the check.
func RateLimit(limiter RateLimiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if ok, wait := limiter.Allow(scope + ":" + ip); !ok {
				logging.FromContext(r.Context()).Warn("rate limit exceeded", "scope", scope, "client_ip", ip, "retry_after", wait)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", retryAfter(wait))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter renders wait as whole seconds, rounded up and at least one.
func retryAfter(wait time.Duration) string {
	secs := int64(math.Ceil(wait.Seconds()))
	return strconv.FormatInt(max(secs, 1), 10)
}
