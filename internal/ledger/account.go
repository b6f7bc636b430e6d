package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a transaction in an account log.
type Kind string

const (
	// KindDeposit marks cash accepted into the account.
	KindDeposit Kind = "Deposit"
	// KindWithdrawal marks cash dispensed from the account.
	KindWithdrawal Kind = "Withdrawal"
)

// Valid reports whether k is a known transaction kind.
func (k Kind) Valid() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// Transaction is a single committed monetary event. Amount is positive for
// deposits and negative for withdrawals.
type Transaction struct {
	ID        string
	Timestamp time.Time
	Amount    decimal.Decimal
	Kind      Kind
}

// Magnitude returns the cash moved by the transaction.
func (t Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

// Account is a cash account with its append-only transaction log.
type Account struct {
	ID           string
	CardNumber   string
	PIN          string
	Balance      decimal.Decimal
	Transactions []Transaction
	CreatedAt    time.Time

	// OpeningBalance is the balance the transaction log is reconciled
	// against. It is zero for accounts opened in this process and rebased
	// when accounts are loaded from storage.
	OpeningBalance decimal.Decimal
}

// Clone returns a copy that shares no mutable state with a.
func (a Account) Clone() Account {
	cp := a
	if a.Transactions != nil {
		cp.Transactions = make([]Transaction, len(a.Transactions))
		copy(cp.Transactions, a.Transactions)
	}
	return cp
}

// LogTotal sums the signed amounts of every transaction in the log.
func (a Account) LogTotal() decimal.Decimal {
	total := decimal.Zero
	for _, tx := range a.Transactions {
		total = total.Add(tx.Amount)
	}
	return total
}

// Reconciled reports whether the log accounts for every change to the
// balance since OpeningBalance.
func (a Account) Reconciled() bool {
	return a.LogTotal().Equal(a.Balance.Sub(a.OpeningBalance))
}

// Rebase sets OpeningBalance so that the current log reconciles to the
// current balance.
func (a *Account) Rebase() {
	a.OpeningBalance = a.Balance.Sub(a.LogTotal())
}
