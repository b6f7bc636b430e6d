package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit writes one structured log line per request. Requests made inside a
// session carry the account id; client errors log at warn, failures at error.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if err != nil {
			status = fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				fe = e
				status = e.Code
			}
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID, _ := c.Locals(requestIDHeader).(string); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if accountID := AccountID(c); accountID != "" {
			attrs = append(attrs, slog.String("account_id", accountID))
		}

		switch {
		case err == nil:
			logger.Info("request completed", attrs...)
		case fe != nil && status < fiber.StatusInternalServerError:
			logger.Warn("request rejected", append(attrs, slog.String("error", fe.Message))...)
		default:
			logger.Error("request failed", append(attrs, slog.Any("error", err))...)
		}
		return err
	}
}
