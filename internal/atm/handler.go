package atm

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/cash-point/cashpoint/internal/dispenser"
	"github.com/cash-point/cashpoint/internal/ledger"
	"github.com/cash-point/cashpoint/internal/middleware"
)

// Handler exposes terminal HTTP endpoints.
type Handler struct {
	service     *Service
	recentCount int
}

// NewHandler builds a terminal HTTP handler. recentCount is the history
// length used when a request does not ask for one.
func NewHandler(service *Service, recentCount int) *Handler {
	if recentCount <= 0 {
		recentCount = 5
	}
	return &Handler{service: service, recentCount: recentCount}
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type changePINRequest struct {
	CardNumber string `json:"card_number"`
	OldPIN     string `json:"old_pin"`
	NewPIN     string `json:"new_pin"`
}

type transactionResponse struct {
	ID        string          `json:"id"`
	Type      ledger.Kind     `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

type dispenseResponse struct {
	Requested decimal.Decimal  `json:"requested"`
	Dispensed decimal.Decimal  `json:"dispensed"`
	Residue   decimal.Decimal  `json:"residue"`
	Notes     []dispenser.Note `json:"notes"`
}

func toTransactionResponse(tx ledger.Transaction) transactionResponse {
	return transactionResponse{ID: tx.ID, Type: tx.Kind, Amount: tx.Amount, Timestamp: tx.Timestamp}
}

// Open creates an account with a generated card number and PIN.
func (h *Handler) Open(c *fiber.Ctx) error {
	acct, pin, err := h.service.OpenAccount(c.UserContext())
	if err != nil {
		return errorStatus(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"account_id":  acct.ID,
		"card_number": acct.CardNumber,
		"pin":         pin,
		"balance":     acct.Balance,
		"created_at":  acct.CreatedAt,
	})
}

// Balance returns the balance of the session account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	accountID := middleware.AccountID(c)
	if accountID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id": accountID,
		"balance":    h.service.Balance(c.UserContext(), accountID),
		"timestamp":  time.Now().UTC(),
	})
}

// Transactions lists recent transactions of the session account.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	accountID := middleware.AccountID(c)
	if accountID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	count := h.recentCount
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fiber.NewError(http.StatusBadRequest, "count must be a non-negative integer")
		}
		count = n
	}

	txs := h.service.RecentTransactions(c.UserContext(), accountID, count)
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id":   accountID,
		"transactions": out,
	})
}

// Deposit credits the session account.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	accountID := middleware.AccountID(c)
	if accountID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tx, err := h.service.Deposit(c.UserContext(), accountID, req.Amount)
	if err != nil {
		return errorStatus(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction": toTransactionResponse(tx),
		"balance":     h.service.Balance(c.UserContext(), accountID),
	})
}

// Withdraw dispenses cash from the session account. A request that cannot
// be paid in any note answers 200 with outcome nothing_to_dispense.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	accountID := middleware.AccountID(c)
	if accountID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	receipt, err := h.service.Withdraw(c.UserContext(), accountID, req.Amount)
	if err != nil {
		return errorStatus(err)
	}

	body := fiber.Map{
		"outcome": receipt.Outcome,
		"cash": dispenseResponse{
			Requested: receipt.Requested,
			Dispensed: receipt.Dispensed,
			Residue:   receipt.Residue,
			Notes:     receipt.Breakdown.Notes(),
		},
		"balance": h.service.Balance(c.UserContext(), accountID),
	}
	status := http.StatusOK
	if receipt.Committed() {
		body["transaction"] = toTransactionResponse(receipt.Transaction)
		status = http.StatusCreated
	}
	return c.Status(status).JSON(body)
}

// ChangePIN replaces the PIN of the card presented in the request.
func (h *Handler) ChangePIN(c *fiber.Ctx) error {
	var req changePINRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	accountID := middleware.AccountID(c)
	acct, ok := h.service.AccountByCard(c.UserContext(), req.CardNumber)
	if !ok || (accountID != "" && acct.ID != accountID) {
		return fiber.NewError(http.StatusUnauthorized, ErrInvalidCredentials.Error())
	}
	if err := h.service.ChangePIN(c.UserContext(), req.CardNumber, req.OldPIN, req.NewPIN); err != nil {
		return errorStatus(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Denominations previews the notes a withdrawal of amount would produce.
func (h *Handler) Denominations(c *fiber.Ctx) error {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a decimal number")
	}
	res := h.service.CalculateDenominations(amount)
	return c.Status(http.StatusOK).JSON(dispenseResponse{
		Requested: res.Requested,
		Dispensed: res.Dispensed,
		Residue:   res.Residue,
		Notes:     res.Notes(),
	})
}

// Limits reports what the session account may still withdraw today.
func (h *Handler) Limits(c *fiber.Ctx) error {
	accountID := middleware.AccountID(c)
	if accountID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	allowance, err := h.service.DailyAllowance(c.UserContext(), accountID)
	if err != nil {
		return errorStatus(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"remaining_amount": allowance.Amount,
		"remaining_count":  allowance.Count,
		"max_amount":       allowance.MaxAmount,
		"max_count":        allowance.MaxCount,
		"as_of":            allowance.AsOf,
	})
}

func errorStatus(err error) error {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrDuplicateAccount):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ErrInvalidPIN):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrLimitExceeded):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
