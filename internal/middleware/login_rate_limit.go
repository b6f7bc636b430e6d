package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const loginFailurePrefix = "rl:login:"

// LoginRateLimit locks a card number, or the client IP when no card is given,
// after maxPerMin rejected logins within a minute. Successful logins are not
// counted. Without Redis it does nothing.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 3
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			CardNumber string `json:"card_number"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.CardNumber)
		if subject == "" {
			subject = c.IP()
		}
		key := loginFailurePrefix + subject

		failures, err := cache.Get(c.UserContext(), key).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return c.Next() // fail open
		}
		if failures >= int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}

		err = c.Next()
		if rejectedLogin(c, err) {
			if cnt, incErr := cache.Incr(c.UserContext(), key).Result(); incErr == nil && cnt == 1 {
				cache.Expire(c.UserContext(), key, time.Minute)
			}
		}
		return err
	}
}

func rejectedLogin(c *fiber.Ctx, err error) bool {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code == http.StatusUnauthorized
	}
	return err == nil && c.Response().StatusCode() == http.StatusUnauthorized
}
