package middleware

import (
	"net/http"

	"github.com/upb/ticketing-shell/services/ratelimit"
	"github.com/upb/ticketing-shell/utils"
	"go.uber.org/zap"
)

// RateLimiter throttles requests per client address
type RateLimiter struct {
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewRateLimiter creates a new RateLimiter. A disabled limiter lets every
// request through.
func NewRateLimiter(limiter *ratelimit.Limiter, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{limiter: limiter, logger: logger}
}

// Handler enforces the limit
func (m *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		res := m.limiter.Allow("ip:" + ip)
		if !res.Allowed {
			seconds := int(res.RetryAfter.Seconds())
			m.logger.Warn("request blocked by rate limit",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("ip", ip),
				zap.String("path", r.URL.Path),
				zap.Int("retry_after_seconds", seconds))
			_ = utils.WriteTooManyRequests(w, "Too many requests", map[string]interface{}{
				utils.RetryAfterDetail: seconds,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
