package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kpipulse/api/pkg/response"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit creates a rate limiting middleware keyed per user. Job starts are
// expensive (each spawns data-science worker processes), so the windows
// are deliberately tight.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" {
			return c.Next() // Skip rate limiting if no user (auth middleware should catch this)
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, userID)
		ctx := context.Background()

		// Increment counter
		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// If Redis fails, allow the request
			return c.Next()
		}

		// Set expiration on first request
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// PipelineLimit returns a rate limiter for pipeline runs (default 10 req/hour)
func (rl *RateLimiter) PipelineLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("pipeline", maxPerHour, time.Hour)
}

// AnalysisLimit returns a rate limiter for analysis runs (default 20 req/hour)
func (rl *RateLimiter) AnalysisLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("analysis", maxPerHour, time.Hour)
}

// TrainingLimit returns a rate limiter for training runs (default 10 req/hour)
func (rl *RateLimiter) TrainingLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("training", maxPerHour, time.Hour)
}

// PredictLimit returns a rate limiter for synchronous predictions (default 60 req/min)
func (rl *RateLimiter) PredictLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("predict", maxPerMin, time.Minute)
}
