package dispenser

import (
	"slices"

	"github.com/shopspring/decimal"
)

var denominations = []int64{100, 50, 20, 10, 5}

// Denominations lists the bill values the terminal can dispense, largest
// first. The returned slice is a copy.
func Denominations() []int64 {
	return slices.Clone(denominations)
}

// Smallest is the smallest bill the terminal holds. Deposits and withdrawals
// move cash in multiples of it.
const Smallest int64 = 5

// Breakdown maps a bill value to the number of bills of that value. Counts are
// decimals so arbitrarily large requests stay exact.
type Breakdown map[int64]decimal.Decimal

// Count returns the number of bills of value d, zero when absent.
func (b Breakdown) Count(d int64) decimal.Decimal {
	if count, ok := b[d]; ok {
		return count
	}
	return decimal.Zero
}

// Note is a single line of a breakdown.
type Note struct {
	Denomination int64           `json:"denomination"`
	Count        decimal.Decimal `json:"count"`
}

// Result captures the outcome of a denomination calculation.
type Result struct {
	Requested decimal.Decimal
	Dispensed decimal.Decimal
	Residue   decimal.Decimal
	Breakdown Breakdown
}

// Notes returns the non-empty lines of the breakdown, largest bill first.
func (r Result) Notes() []Note {
	return r.Breakdown.Notes()
}

// Notes returns the non-empty lines of the breakdown, largest bill first.
func (b Breakdown) Notes() []Note {
	notes := make([]Note, 0, len(denominations))
	for _, d := range denominations {
		if count := b.Count(d); count.IsPositive() {
			notes = append(notes, Note{Denomination: d, Count: count})
		}
	}
	return notes
}

// Total returns the cash value of the breakdown.
func (b Breakdown) Total() decimal.Decimal {
	total := decimal.Zero
	for d, count := range b {
		total = total.Add(decimal.NewFromInt(d).Mul(count))
	}
	return total
}

// Compute splits requested into bills using a greedy pass over the
// denominations, largest first. Whatever cannot be represented in bills is
// reported as Residue. A non-positive request dispenses nothing and leaves no
// residue.
func Compute(requested decimal.Decimal) Result {
	breakdown := make(Breakdown, len(denominations))
	for _, d := range denominations {
		breakdown[d] = decimal.Zero
	}

	result := Result{
		Requested: requested,
		Dispensed: decimal.Zero,
		Residue:   decimal.Zero,
		Breakdown: breakdown,
	}
	if !requested.IsPositive() {
		return result
	}

	remaining := requested
	for _, d := range denominations {
		value := decimal.NewFromInt(d)
		count, _ := remaining.QuoRem(value, 0)
		if !count.IsPositive() {
			continue
		}
		taken := count.Mul(value)
		breakdown[d] = count
		remaining = remaining.Sub(taken)
		result.Dispensed = result.Dispensed.Add(taken)
	}
	result.Residue = remaining
	return result
}
