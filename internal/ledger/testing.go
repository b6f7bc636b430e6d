package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SeedWithdrawals is a test helper that appends withdrawals stamped at the
// given time and debits the balance accordingly.
func SeedWithdrawals(acct *Account, at time.Time, amounts ...int64) {
	for _, amount := range amounts {
		value := decimal.NewFromInt(amount)
		acct.Balance = acct.Balance.Sub(value)
		acct.Transactions = append(acct.Transactions, Transaction{
			ID:        fmt.Sprintf("seed-%d", len(acct.Transactions)+1),
			Timestamp: at,
			Amount:    value.Neg(),
			Kind:      KindWithdrawal,
		})
	}
}

// FixedClock returns a time source frozen at t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
