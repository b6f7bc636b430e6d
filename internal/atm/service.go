// Package atm is the entry point for terminal operations: authentication,
// balance and history reads, deposits, withdrawals and PIN changes. Every
// write goes through the account directory, which serialises work per account.
package atm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cash-point/cashpoint/internal/credential"
	"github.com/cash-point/cashpoint/internal/directory"
	"github.com/cash-point/cashpoint/internal/dispenser"
	"github.com/cash-point/cashpoint/internal/ledger"
	"github.com/cash-point/cashpoint/internal/notification"
)

const openAttempts = 5

var (
	// ErrInvalidCredentials is returned when the card is unknown or the PIN
	// does not match.
	ErrInvalidCredentials = errors.New("invalid card number or PIN")

	// ErrInvalidPIN rejects a new PIN that does not satisfy the PIN policy.
	ErrInvalidPIN = errors.New("invalid new PIN")
)

// Service orchestrates the account directory and the ledger.
type Service struct {
	accounts  *directory.Directory
	ledger    *ledger.Ledger
	pins      credential.Scheme
	pinPolicy credential.Policy
	notifier  notification.Notifier
	logger    *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithPINScheme sets how PINs are stored and compared.
func WithPINScheme(scheme credential.Scheme) Option {
	return func(s *Service) {
		if scheme != nil {
			s.pins = scheme
		}
	}
}

// WithPINPolicy constrains PINs chosen through ChangePIN.
func WithPINPolicy(policy credential.Policy) Option {
	return func(s *Service) { s.pinPolicy = policy }
}

// WithNotifier sets where committed operations are announced.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService builds a terminal service over accounts and led.
func NewService(accounts *directory.Directory, led *ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		ledger:   led,
		pins:     credential.PlainScheme{},
		notifier: notification.Discard{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate reports whether card exists and pin matches its PIN.
func (s *Service) Authenticate(ctx context.Context, card, pin string) bool {
	_, err := s.Login(ctx, card, pin)
	return err == nil
}

// Login resolves the account for card once pin has been verified.
func (s *Service) Login(_ context.Context, card, pin string) (string, error) {
	acct, ok := s.accounts.FindByCard(card)
	if !ok || !s.pins.Match(acct.PIN, pin) {
		return "", ErrInvalidCredentials
	}
	return acct.ID, nil
}

// ChangePIN replaces the PIN of card when oldPIN matches the current one.
func (s *Service) ChangePIN(ctx context.Context, card, oldPIN, newPIN string) error {
	if err := s.pinPolicy.Validate(newPIN); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPIN, err)
	}
	acct, ok := s.accounts.FindByCard(card)
	if !ok {
		return ErrInvalidCredentials
	}
	sealed, err := s.pins.Seal(newPIN)
	if err != nil {
		return fmt.Errorf("seal PIN: %w", err)
	}

	_, err = s.accounts.Mutate(ctx, acct.ID, func(a *ledger.Account) error {
		if !s.pins.Match(a.PIN, oldPIN) {
			return ErrInvalidCredentials
		}
		a.PIN = sealed
		return nil
	})
	if err != nil {
		s.logger.Warn("pin change rejected", "account_id", acct.ID, "error", err)
		return err
	}

	s.logger.Info("pin changed", "account_id", acct.ID)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindPINChanged,
		Destination: acct.ID,
		Body:        "PIN changed",
	})
	return nil
}

// Balance returns the balance of the account, or zero if it does not exist.
func (s *Service) Balance(_ context.Context, accountID string) decimal.Decimal {
	acct, ok := s.accounts.FindByID(accountID)
	if !ok {
		return ledger.BalanceOf(nil)
	}
	return ledger.BalanceOf(&acct)
}

// RecentTransactions returns up to count transactions of the account, newest first.
func (s *Service) RecentTransactions(_ context.Context, accountID string, count int) []ledger.Transaction {
	acct, ok := s.accounts.FindByID(accountID)
	if !ok {
		return ledger.RecentTransactions(nil, count)
	}
	return ledger.RecentTransactions(&acct, count)
}

// Deposit credits amount to the account.
func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (ledger.Transaction, error) {
	var tx ledger.Transaction
	acct, err := s.accounts.Mutate(ctx, accountID, func(a *ledger.Account) error {
		var err error
		tx, err = s.ledger.Deposit(a, amount)
		return err
	})
	if err != nil {
		s.logger.Warn("deposit rejected", "account_id", accountID, "amount", amount.String(), "error", err)
		return ledger.Transaction{}, err
	}

	s.logger.Info("deposit committed", "account_id", accountID, "amount", amount.String(), "transaction_id", tx.ID)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindDeposit,
		Destination: accountID,
		Body:        fmt.Sprintf("deposited %s", amount),
		Attributes: map[string]string{
			"transaction_id": tx.ID,
			"amount":         amount.String(),
			"balance":        acct.Balance.String(),
		},
		OccurredAt: tx.Timestamp,
	})
	return tx, nil
}

// Withdraw dispenses as much of requested as the available notes allow. A
// receipt with OutcomeNothingToDispense and a nil error means the account
// was not touched.
func (s *Service) Withdraw(ctx context.Context, accountID string, requested decimal.Decimal) (ledger.Receipt, error) {
	var receipt ledger.Receipt
	acct, err := s.accounts.Mutate(ctx, accountID, func(a *ledger.Account) error {
		var err error
		receipt, err = s.ledger.Withdraw(a, requested)
		if err != nil {
			return err
		}
		if !receipt.Committed() {
			return directory.ErrNoChange
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("withdrawal rejected", "account_id", accountID, "amount", requested.String(), "error", err)
		return ledger.Receipt{}, err
	}
	if !receipt.Committed() {
		s.logger.Info("nothing to dispense", "account_id", accountID, "amount", requested.String())
		return receipt, nil
	}

	s.logger.Info("withdrawal committed",
		"account_id", accountID,
		"requested", requested.String(),
		"dispensed", receipt.Dispensed.String(),
		"transaction_id", receipt.Transaction.ID,
	)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindWithdrawal,
		Destination: accountID,
		Body:        fmt.Sprintf("dispensed %s", receipt.Dispensed),
		Attributes: map[string]string{
			"transaction_id": receipt.Transaction.ID,
			"requested":      requested.String(),
			"amount":         receipt.Dispensed.String(),
			"balance":        acct.Balance.String(),
		},
		OccurredAt: receipt.Transaction.Timestamp,
	})
	return receipt, nil
}

// CreateAccount registers acct. Missing ids and creation times are filled
// in and the PIN is sealed with the configured scheme.
func (s *Service) CreateAccount(ctx context.Context, acct ledger.Account) (ledger.Account, error) {
	if acct.Balance.IsNegative() {
		return ledger.Account{}, ledger.ErrInvalidAmount
	}
	if acct.PIN == "" {
		return ledger.Account{}, ErrInvalidPIN
	}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = s.ledger.Now().UTC()
	}
	if acct.Transactions == nil {
		acct.Transactions = []ledger.Transaction{}
	}
	sealed, err := s.pins.Seal(acct.PIN)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("seal PIN: %w", err)
	}
	acct.PIN = sealed
	acct.Rebase()

	if err := s.accounts.Add(ctx, acct); err != nil {
		return ledger.Account{}, err
	}
	s.logger.Info("account created", "account_id", acct.ID)
	return acct.Clone(), nil
}

// OpenAccount creates a zero balance account with a generated card number
// and PIN. The PIN is returned in clear only here.
func (s *Service) OpenAccount(ctx context.Context) (ledger.Account, string, error) {
	pin, err := credential.GeneratePIN()
	if err != nil {
		return ledger.Account{}, "", err
	}

	for attempt := 0; attempt < openAttempts; attempt++ {
		card, err := credential.GenerateCardNumber()
		if err != nil {
			return ledger.Account{}, "", err
		}
		acct, err := s.CreateAccount(ctx, ledger.Account{CardNumber: card, PIN: pin, Balance: decimal.Zero})
		if errors.Is(err, ledger.ErrDuplicateAccount) {
			continue
		}
		if err != nil {
			return ledger.Account{}, "", err
		}
		s.notify(ctx, notification.Message{
			Kind:        notification.KindAccountOpened,
			Destination: acct.ID,
			Body:        "account opened",
			OccurredAt:  acct.CreatedAt,
		})
		return acct, pin, nil
	}
	return ledger.Account{}, "", fmt.Errorf("open account: %w", ledger.ErrDuplicateAccount)
}

// AccountByCard looks up the account bound to card.
func (s *Service) AccountByCard(_ context.Context, card string) (ledger.Account, bool) {
	return s.accounts.FindByCard(card)
}

// CalculateDenominations shows how requested would be paid out.
func (s *Service) CalculateDenominations(requested decimal.Decimal) dispenser.Result {
	return dispenser.Compute(requested)
}

// Allowance is what an account may still withdraw today.
type Allowance struct {
	Amount    decimal.Decimal
	Count     int
	MaxAmount decimal.Decimal
	MaxCount  int
	AsOf      time.Time
}

// DailyAllowance reports the unused part of today's withdrawal cap.
func (s *Service) DailyAllowance(_ context.Context, accountID string) (Allowance, error) {
	acct, ok := s.accounts.FindByID(accountID)
	if !ok {
		return Allowance{}, ledger.ErrAccountNotFound
	}
	now := s.ledger.Now()
	limits := s.ledger.Limits()
	amount, count := limits.Remaining(&acct, now)
	return Allowance{
		Amount:    amount,
		Count:     count,
		MaxAmount: limits.MaxAmount,
		MaxCount:  limits.MaxCount,
		AsOf:      now,
	}, nil
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = s.ledger.Now()
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", "kind", msg.Kind, "account_id", msg.Destination, "error", err)
	}
}
