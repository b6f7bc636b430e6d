package ledger

import (
	"errors"
	"testing"
	"time"
)

func TestLimitRejectsEleventhWithdrawal(t *testing.T) {
	l := newTestLedger()
	acct := &Account{ID: "a", Balance: dec("5000")}
	SeedWithdrawals(acct, testNow.Add(-2*time.Hour), 50, 50, 50, 50, 50, 50, 50, 50, 50, 50)

	before := acct.Balance
	if _, err := l.Withdraw(acct, dec("20")); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if !acct.Balance.Equal(before) || len(acct.Transactions) != 10 {
		t.Fatalf("rejected withdrawal mutated account")
	}
}

func TestLimitEvaluatesDispensedAmount(t *testing.T) {
	l := newTestLedger()
	acct := &Account{ID: "a", Balance: dec("5000")}
	SeedWithdrawals(acct, testNow.Add(-time.Hour), 500, 300, 150)

	if _, err := l.Withdraw(acct, dec("100")); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected 950+100 to exceed, got %v", err)
	}
	receipt, err := l.Withdraw(acct, dec("50"))
	if err != nil {
		t.Fatalf("expected 950+50 to pass, got %v", err)
	}
	if !receipt.Committed() {
		t.Fatalf("expected withdrawal to commit")
	}

	// 1000 reached; 54 dispenses 50, which no longer fits.
	if _, err := l.Withdraw(acct, dec("54")); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestLimitUsesDispensedNotRequested(t *testing.T) {
	l := newTestLedger()
	acct := &Account{ID: "a", Balance: dec("5000")}
	SeedWithdrawals(acct, testNow.Add(-time.Hour), 900)

	// Requested 104 dispenses 100: 900+100 == 1000 is within the cap.
	receipt, err := l.Withdraw(acct, dec("104"))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !receipt.Dispensed.Equal(dec("100")) {
		t.Fatalf("expected 100 dispensed, got %s", receipt.Dispensed)
	}
}

func TestLimitWindowIsCalendarDay(t *testing.T) {
	policy := DefaultLimitPolicy()
	acct := &Account{ID: "a", Balance: dec("5000")}

	// Late yesterday: inside a trailing 24h window but not the same calendar day.
	yesterday := time.Date(2024, time.March, 13, 23, 59, 0, 0, time.UTC)
	SeedWithdrawals(acct, yesterday, 500, 500)

	if policy.Exceeded(acct, dec("1000"), testNow) {
		t.Fatalf("withdrawals from the previous day must not count")
	}
	if !policy.Exceeded(acct, dec("1"), yesterday) {
		t.Fatalf("same-day withdrawals must count")
	}
}

func TestLimitIgnoresDeposits(t *testing.T) {
	l := newTestLedger()
	acct := &Account{ID: "a"}
	for i := 0; i < 12; i++ {
		if _, err := l.Deposit(acct, dec("100")); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	if l.Limits().Exceeded(acct, dec("1000"), testNow) {
		t.Fatalf("deposits must not count toward the withdrawal cap")
	}
}

func TestLimitRemaining(t *testing.T) {
	policy := DefaultLimitPolicy()
	acct := &Account{ID: "a", Balance: dec("5000")}
	SeedWithdrawals(acct, testNow, 100, 250)

	amount, count := policy.Remaining(acct, testNow)
	if !amount.Equal(dec("650")) || count != 8 {
		t.Fatalf("expected 650 / 8 remaining, got %s / %d", amount, count)
	}

	SeedWithdrawals(acct, testNow, 100, 100, 100, 100, 100, 100, 100, 100, 100)
	amount, count = policy.Remaining(acct, testNow)
	if !amount.IsZero() || count != 0 {
		t.Fatalf("expected nothing remaining, got %s / %d", amount, count)
	}
}
