package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
)

// Limiter decides whether one request may proceed.
type Limiter interface {
	Allow(ctx context.Context, sessionID, ip string) redis.Decision
}

// RateLimitMetrics records rejected requests.
type RateLimitMetrics interface {
	RateLimitRejected(path string)
}

// RateLimit enforces the per-session and per-IP quotas on the routes it
// wraps.  Denials answer 429 with Retry-After; allowed requests carry the
// remaining daily quota in X-RateLimit-Remaining.
type RateLimit struct {
	limiter Limiter
	metrics RateLimitMetrics
	log     logging.Logger
}

func NewRateLimit(limiter Limiter, metrics RateLimitMetrics, log logging.Logger) *RateLimit {
	return &RateLimit{limiter: limiter, metrics: metrics, log: log.Named("ratelimit_mw")}
}

func (m *RateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := m.limiter.Allow(r.Context(), ContextGetSessionID(r.Context()), ContextGetClientIP(r.Context()))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			if m.metrics != nil {
				m.metrics.RateLimitRejected(r.URL.Path)
			}
			m.log.Warn("request rate limited",
				logging.String("reason", d.Reason),
				logging.String("path", r.URL.Path),
			)
			retryAfter := int(d.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    "COMMON_007",
				"message": "요청 한도를 초과했습니다. 잠시 후 다시 시도해주세요.",
				"reason":  d.Reason,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
