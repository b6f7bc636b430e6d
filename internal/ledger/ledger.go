package ledger

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cash-point/cashpoint/internal/dispenser"
)

var (
	// ErrAccountNotFound is returned when an operation targets an unknown account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateAccount indicates the account identifier or card number is
	// already registered.
	ErrDuplicateAccount = errors.New("duplicate account")

	// ErrInvalidAmount rejects deposits that are not a positive multiple of the
	// smallest bill, and negative opening balances.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds occurs when the balance does not cover the requested
	// withdrawal.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLimitExceeded occurs when a withdrawal would break the daily cap.
	ErrLimitExceeded = errors.New("daily withdrawal limit exceeded")
)

// Outcome distinguishes a committed withdrawal from one that had nothing to dispense.
type Outcome string

const (
	// OutcomeDispensed means cash left the terminal and the account was debited.
	OutcomeDispensed Outcome = "dispensed"
	// OutcomeNothingToDispense means no bill could represent the request. The
	// account is untouched.
	OutcomeNothingToDispense Outcome = "nothing_to_dispense"
)

// Receipt describes the result of a withdrawal.
type Receipt struct {
	Outcome     Outcome
	Requested   decimal.Decimal
	Dispensed   decimal.Decimal
	Residue     decimal.Decimal
	Breakdown   dispenser.Breakdown
	Transaction Transaction
}

// Committed reports whether cash was dispensed and the account debited.
func (r Receipt) Committed() bool {
	return r.Outcome == OutcomeDispensed
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used to stamp transactions and
// evaluate the daily limit.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides transaction identifier generation.
func WithIDGenerator(next func() string) Option {
	return func(l *Ledger) {
		if next != nil {
			l.newID = next
		}
	}
}

// WithLimitPolicy overrides the daily withdrawal cap.
func WithLimitPolicy(policy LimitPolicy) Option {
	return func(l *Ledger) {
		l.limits = policy
	}
}

// Ledger applies deposits and withdrawals to accounts. It holds no account
// state itself; callers serialise access to each account.
type Ledger struct {
	limits LimitPolicy
	now    func() time.Time
	newID  func() string
}

// New builds a Ledger with the default daily limit.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		limits: DefaultLimitPolicy(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limits returns the daily limit the ledger enforces.
func (l *Ledger) Limits() LimitPolicy {
	return l.limits
}

// Now returns the ledger's current time.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// Deposit credits amount to acct and appends a deposit transaction.
func (l *Ledger) Deposit(acct *Account, amount decimal.Decimal) (Transaction, error) {
	if acct == nil {
		return Transaction{}, ErrAccountNotFound
	}
	if !amount.IsPositive() || !amount.Mod(decimal.NewFromInt(dispenser.Smallest)).IsZero() {
		return Transaction{}, ErrInvalidAmount
	}

	tx := Transaction{
		ID:        l.newID(),
		Timestamp: l.now(),
		Amount:    amount,
		Kind:      KindDeposit,
	}
	acct.Balance = acct.Balance.Add(amount)
	acct.Transactions = append(acct.Transactions, tx)
	return tx, nil
}

// Withdraw debits acct by the dispensable part of requested. The balance is
// checked against the requested amount, the daily limit against the amount
// actually dispensed. When nothing can be dispensed the receipt carries
// OutcomeNothingToDispense and acct is left untouched.
func (l *Ledger) Withdraw(acct *Account, requested decimal.Decimal) (Receipt, error) {
	if acct == nil {
		return Receipt{}, ErrAccountNotFound
	}
	if acct.Balance.LessThan(requested) {
		return Receipt{}, ErrInsufficientFunds
	}

	cash := dispenser.Compute(requested)
	now := l.now()
	if l.limits.Exceeded(acct, cash.Dispensed, now) {
		return Receipt{}, ErrLimitExceeded
	}

	receipt := Receipt{
		Outcome:   OutcomeNothingToDispense,
		Requested: requested,
		Dispensed: cash.Dispensed,
		Residue:   cash.Residue,
		Breakdown: cash.Breakdown,
	}
	if cash.Dispensed.IsZero() {
		return receipt, nil
	}

	tx := Transaction{
		ID:        l.newID(),
		Timestamp: now,
		Amount:    cash.Dispensed.Neg(),
		Kind:      KindWithdrawal,
	}
	acct.Balance = acct.Balance.Sub(cash.Dispensed)
	acct.Transactions = append(acct.Transactions, tx)

	receipt.Outcome = OutcomeDispensed
	receipt.Transaction = tx
	return receipt, nil
}

// RecentTransactions returns up to count transactions, newest first. Entries
// with equal timestamps keep reverse insertion order.
func RecentTransactions(acct *Account, count int) []Transaction {
	if acct == nil || count <= 0 {
		return []Transaction{}
	}

	out := make([]Transaction, len(acct.Transactions))
	for i, tx := range acct.Transactions {
		out[len(out)-1-i] = tx
	}
	slices.SortStableFunc(out, func(a, b Transaction) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	if len(out) > count {
		out = out[:count]
	}
	return out
}

// BalanceOf returns the balance of acct, or zero when acct is nil.
func BalanceOf(acct *Account) decimal.Decimal {
	if acct == nil {
		return decimal.Zero
	}
	return acct.Balance
}
