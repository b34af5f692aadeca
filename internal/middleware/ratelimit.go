package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimit caps requests per principal (or client IP when anonymous) in a
// fixed window counted in Redis. Cache failures let the request through.
func RateLimit(cache *redis.Client, prefix string, limit int, window time.Duration, logger *slog.Logger) fiber.Handler {
	if limit <= 0 {
		limit = 60
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := principalID(c)
		if subject == "" {
			subject = c.IP()
		}
		key := prefix + subject

		ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
		defer cancel()

		count, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limit lookup failed", slog.String("key", key), slog.Any("error", err))
			return c.Next()
		}
		if count == 1 {
			cache.Expire(ctx, key, window)
		}

		remaining := max(int64(limit)-count, 0)
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > int64(limit) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
