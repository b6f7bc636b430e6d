package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cash-point/cashpoint/internal/atm"
)

// RegisterAccountRoutes wires the operations available during a session.
// Deposits and withdrawals move cash and must carry an Idempotency-Key.
func RegisterAccountRoutes(r fiber.Router, h *atm.Handler, idempotent fiber.Handler) {
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	r.Get("/limits", h.Limits)
	r.Post("/deposits", idempotent, h.Deposit)
	r.Post("/withdrawals", idempotent, h.Withdraw)
	r.Post("/pin", h.ChangePIN)
}
