package middleware

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/3leaps/hirelane/internal/errors"
)

// RateLimit rejects requests beyond limiter's budget with 429. A nil
// limiter disables limiting.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Reserve()
			if !res.OK() {
				tooMany(w, r, time.Second)
				return
			}
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				tooMany(w, r, delay)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewLimiter builds a limiter for perSecond requests with burst. A
// non-positive rate returns nil.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func tooMany(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	apperrors.WriteError(w, r, http.StatusTooManyRequests, apperrors.CodeTooManyRequests, "rate limit exceeded", nil)
}
