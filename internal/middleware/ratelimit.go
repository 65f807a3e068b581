package middleware

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"memberdir/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what a limiter does when Redis cannot be reached.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

var errNoLimiterStore = errors.New("rate limiter has no redis client")

// limitKey is the fixed-window counter for one caller of one resource.
func limitKey(resource, id string) string {
	return "rl:" + resource + ":" + id
}

// limitsEnforced is false in development and test so sign-in can be
// exercised freely.
func limitsEnforced() bool {
	switch os.Getenv("APP_ENV") {
	case "", "development", "test":
		return false
	}
	return true
}

// CheckRateLimit counts one attempt by id against resource and reports
// whether it is still within limit for the current window.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	if !limitsEnforced() {
		return true, nil
	}
	allowed, _, err := hit(ctx, rdb, limitKey(resource, id), limit, window)
	return allowed, err
}

func checkRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	allowed, _, err := hit(ctx, rdb, limitKey(resource, id), limit, window)
	return allowed, err
}

// hit increments key and starts its window on the first attempt. It returns
// the time left in the window alongside the verdict.
func hit(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if rdb == nil {
		return false, 0, errNoLimiterStore
	}

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return incr.Val() <= int64(limit), ttl.Val(), nil
}

// RateLimit limits requests per window, keyed by member when signed in and by
// IP otherwise. It fails open.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy is RateLimit with an explicit FailPolicy.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !limitsEnforced() {
			return c.Next()
		}
		ctx := c.UserContext()

		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}
		caller := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(interface{ String() string }); ok {
			caller = "user:" + uid.String()
		}

		allowed, left, err := hit(ctx, rdb, limitKey(resource, caller), limit, window)
		switch {
		case err != nil && policy == FailClosed:
			Logger.WarnContext(ctx, "rate limiter unavailable, rejecting",
				slog.String("resource", resource),
				slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusServiceUnavailable,
				models.NewInternalError(err))
		case err != nil:
			return c.Next()
		case !allowed:
			if left > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(left.Round(time.Second).Seconds())))
			}
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				models.NewRateLimitedError("Too many requests, please try again later."))
		}
		return c.Next()
	}
}
