package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cash-point/cashpoint/internal/session"
)

// RegisterSessionRoutes wires card login and logout.
func RegisterSessionRoutes(r fiber.Router, h *session.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/session")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/logout", h.Logout)
}
