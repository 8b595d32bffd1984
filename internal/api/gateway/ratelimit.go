// Package gateway provides HTTP middleware for the analysis endpoints.
package gateway

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lvonguyen/stagezero/internal/config"
)

// RateLimiter throttles requests per client and endpoint using a Redis
// counter with a one-minute window. When Redis is unavailable the
// limiter fails open so analysis stays possible.
type RateLimiter struct {
	redis  *redis.Client
	cfg    config.RateLimit
	logger *zap.Logger
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(client *redis.Client, cfg config.RateLimit, logger *zap.Logger) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	return &RateLimiter{redis: client, cfg: cfg, logger: logger}
}

var incrScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// Middleware returns the throttling middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled || rl.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("stagezero:ratelimit:%s:%s:minute", clientIP(r), r.URL.Path)
		current, err := incrScript.Run(r.Context(), rl.redis, []string{key}, 60000).Int()
		if err != nil {
			rl.logger.Warn("rate limit check failed, allowing request", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.cfg.RequestsPerMinute - current
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if current > rl.cfg.RequestsPerMinute {
			ttl, _ := rl.redis.TTL(r.Context(), key).Result()
			if ttl <= 0 {
				ttl = time.Minute
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"rate_limit_exceeded","retry_after":%d}`, int(ttl.Seconds()))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
