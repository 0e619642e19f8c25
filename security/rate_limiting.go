package security

import (
	"fmt"
	"net/http"
	"strings"

	"reservation-system/config"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter applies a fixed-window limit per client across all
// server instances sharing the Redis backend.
type RateLimiter struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRateLimiter(redisClient *redis.Client, cfg *config.Config) *RateLimiter {
	return &RateLimiter{redis: redisClient, cfg: cfg}
}

// Middleware limits requests per client IP within the configured
// window. Failing open on Redis errors: a broken limiter should not
// take the booking API down with it.
func (r *RateLimiter) Middleware() func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		ip := e.RealIP()
		key := fmt.Sprintf("ratelimit:%s", ip)

		ctx := e.Request.Context()
		count, err := r.redis.Incr(ctx, key).Result()
		if err == nil {
			if count == 1 {
				r.redis.Expire(ctx, key, r.cfg.RateLimitWindow)
			}
			if count > int64(r.cfg.RateLimitMax) {
				return e.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "Too many requests, please try again later",
				})
			}
		}

		return e.Next()
	}
}

// AntiBotMiddleware rejects obvious scripted clients by user agent.
func (r *RateLimiter) AntiBotMiddleware() func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		userAgent := e.Request.Header.Get("User-Agent")
		if isSuspiciousUserAgent(userAgent) {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error": "Access denied",
			})
		}
		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
