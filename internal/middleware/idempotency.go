package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v1:"
	inProgressMarker     = "__in_progress__"
	idempotencyTimeout   = 2 * time.Second
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// replayStore holds the reservations and recorded responses of one
// Idempotency middleware.
type replayStore struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// reserve claims cacheKey for the current request. It reports false when
// another request already owns the key, in which case the caller answers
// from whatever that request left behind.
func (s replayStore) reserve(ctx context.Context, cacheKey string) (bool, error) {
	return s.cache.SetNX(ctx, cacheKey, inProgressMarker, s.ttl).Result()
}

// answer responds to a request whose key is already taken: 409 while the
// owner is still running, the recorded response once it has finished.
func (s replayStore) answer(ctx context.Context, c *fiber.Ctx, cacheKey, key string) error {
	cached, err := s.cache.Get(ctx, cacheKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// The owner failed and released the key between our SETNX and GET.
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	case err != nil:
		s.logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
		return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
	case cached == inProgressMarker:
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		s.logger.Warn("undecodable idempotent response", slog.String("key", key), slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) {
			continue
		}
		c.Set(header, value)
	}
	return c.Status(stored.Status).SendString(stored.Body)
}

// record replaces the reservation with the response the handler produced.
func (s replayStore) record(c *fiber.Ctx, cacheKey, key string) error {
	stored := storedResponse{
		Status:  c.Response().StatusCode(),
		Body:    string(c.Response().Body()),
		Headers: map[string]string{},
	}
	c.Response().Header.VisitAll(func(k, v []byte) {
		stored.Headers[string(k)] = string(v)
	})

	payload, err := json.Marshal(stored)
	if err != nil {
		s.logger.Error("encode idempotent response", slog.String("key", key), slog.Any("error", err))
		s.release(cacheKey)
		return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
	}

	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, cacheKey, payload, s.ttl).Err(); err != nil {
		s.logger.Error("persist idempotent response", slog.String("key", key), slog.Any("error", err))
		s.release(cacheKey)
		return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
	}
	return nil
}

// release drops a reservation so the client may retry the request.
func (s replayStore) release(cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	if err := s.cache.Del(ctx, cacheKey).Err(); err != nil {
		s.logger.Warn("release idempotency key", slog.String("key", cacheKey), slog.Any("error", err))
	}
}

// Idempotency makes unsafe requests replayable by persisting responses in
// Redis keyed by the Idempotency-Key header and the session account. A
// retried withdrawal returns the original receipt instead of dispensing
// twice, and a concurrent duplicate gets 409 while the first is running.
// Without Redis the header is still required but nothing is stored.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := replayStore{cache: cache, ttl: ttl, logger: logger}
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		if cache == nil {
			return c.Next()
		}

		ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
		defer cancel()

		cacheKey := idempotencyPrefix + AccountID(c) + ":" + key
		owned, err := store.reserve(ctx, cacheKey)
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		if !owned {
			return store.answer(ctx, c, cacheKey, key)
		}

		if err := c.Next(); err != nil {
			store.release(cacheKey)
			return err
		}
		return store.record(c, cacheKey, key)
	}
}
