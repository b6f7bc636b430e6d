package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cash-point/cashpoint/internal/session"
)

const accountIDKey = "account_id"

// SessionVerifier validates session tokens.
type SessionVerifier interface {
	Verify(ctx context.Context, raw string) (session.Claims, error)
}

// SessionAuth rejects requests without a live session token and exposes
// the session account to later handlers.
func SessionAuth(sessions SessionVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, ok := session.BearerToken(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := sessions.Verify(c.UserContext(), raw)
		if err != nil {
			if errors.Is(err, session.ErrRevoked) {
				return fiber.NewError(http.StatusUnauthorized, "session ended")
			}
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(accountIDKey, claims.AccountID())
		return c.Next()
	}
}

// AccountID returns the account bound to the request session, if any.
func AccountID(c *fiber.Ctx) string {
	id, _ := c.Locals(accountIDKey).(string)
	return id
}
