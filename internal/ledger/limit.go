package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultDailyAmount is the most cash an account may withdraw per calendar day.
	DefaultDailyAmount = 1000
	// DefaultDailyCount is the number of withdrawals allowed per calendar day.
	DefaultDailyCount = 10
)

// LimitPolicy caps withdrawals per calendar day, both by total amount and by
// number of withdrawals.
type LimitPolicy struct {
	MaxAmount decimal.Decimal
	MaxCount  int
}

// DefaultLimitPolicy returns the standard 1000 / 10 per day cap.
func DefaultLimitPolicy() LimitPolicy {
	return LimitPolicy{
		MaxAmount: decimal.NewFromInt(DefaultDailyAmount),
		MaxCount:  DefaultDailyCount,
	}
}

// Usage sums the withdrawals recorded on the calendar day of asOf.
func (p LimitPolicy) Usage(acct *Account, asOf time.Time) (decimal.Decimal, int) {
	total := decimal.Zero
	count := 0
	if acct == nil {
		return total, count
	}
	for _, tx := range acct.Transactions {
		if tx.Kind != KindWithdrawal || !sameDay(tx.Timestamp, asOf) {
			continue
		}
		total = total.Add(tx.Magnitude())
		count++
	}
	return total, count
}

// Exceeded reports whether withdrawing candidate on the day of asOf would
// break the cap. candidate must be the amount that would actually be dispensed.
func (p LimitPolicy) Exceeded(acct *Account, candidate decimal.Decimal, asOf time.Time) bool {
	total, count := p.Usage(acct, asOf)
	return total.Add(candidate).GreaterThan(p.MaxAmount) || count >= p.MaxCount
}

// Remaining returns the amount and number of withdrawals still available on
// the day of asOf.
func (p LimitPolicy) Remaining(acct *Account, asOf time.Time) (decimal.Decimal, int) {
	total, count := p.Usage(acct, asOf)
	amount := p.MaxAmount.Sub(total)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	left := p.MaxCount - count
	if left < 0 {
		left = 0
	}
	return amount, left
}

// sameDay compares calendar dates in the location of ref.
func sameDay(t, ref time.Time) bool {
	y1, m1, d1 := t.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
