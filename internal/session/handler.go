package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Authenticator resolves a card and PIN to an account id.
type Authenticator interface {
	Login(ctx context.Context, card, pin string) (string, error)
}

// Handler exposes login and logout endpoints.
type Handler struct {
	auth     Authenticator
	sessions *Service
}

// NewHandler builds a session HTTP handler.
func NewHandler(auth Authenticator, sessions *Service) *Handler {
	return &Handler{auth: auth, sessions: sessions}
}

type loginRequest struct {
	CardNumber string `json:"card_number"`
	PIN        string `json:"pin"`
}

// Login exchanges a card number and PIN for a session token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.CardNumber) == "" || req.PIN == "" {
		return fiber.NewError(http.StatusBadRequest, "card_number and pin are required")
	}

	accountID, err := h.auth.Login(c.UserContext(), req.CardNumber, req.PIN)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	token, err := h.sessions.Issue(accountID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"access_token": token.Value,
		"token_type":   "Bearer",
		"expires_at":   token.ExpiresAt,
		"account_id":   token.AccountID,
	})
}

// Logout revokes the bearer token of the request.
func (h *Handler) Logout(c *fiber.Ctx) error {
	raw, ok := BearerToken(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
	}
	if err := h.sessions.Revoke(c.UserContext(), raw); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *fiber.Ctx) (string, bool) {
	authz := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authz[len("Bearer "):])
	return token, token != ""
}
