package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cash-point/cashpoint/internal/ledger"
	"github.com/cash-point/cashpoint/internal/storage"
)

func newAccount(id, card string, balance int64) ledger.Account {
	return ledger.Account{
		ID:           id,
		CardNumber:   card,
		PIN:          "1234",
		Balance:      decimal.NewFromInt(balance),
		Transactions: []ledger.Transaction{},
		CreatedAt:    time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
}

type failingRepository struct {
	Repository
	fail bool
}

func (f *failingRepository) Save(ctx context.Context, a ledger.Account) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Repository.Save(ctx, a)
}

func TestAddRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	dir := New(nil)

	if err := dir.Add(ctx, newAccount("a1", "1111", 0)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := dir.Add(ctx, newAccount("a1", "2222", 0)); !errors.Is(err, ledger.ErrDuplicateAccount) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
	if err := dir.Add(ctx, newAccount("a2", "1111", 0)); !errors.Is(err, ledger.ErrDuplicateAccount) {
		t.Fatalf("expected duplicate card error, got %v", err)
	}
	if len(dir.All()) != 1 {
		t.Fatalf("expected one account, got %d", len(dir.All()))
	}
}

func TestFindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	dir := New(nil)
	if err := dir.Add(ctx, newAccount("a1", "1111", 100)); err != nil {
		t.Fatalf("add: %v", err)
	}

	a, ok := dir.FindByCard("1111")
	if !ok {
		t.Fatalf("account not found by card")
	}
	a.Balance = decimal.NewFromInt(1_000_000)
	a.Transactions = append(a.Transactions, ledger.Transaction{ID: "forged"})

	stored, _ := dir.FindByID("a1")
	if !stored.Balance.Equal(decimal.NewFromInt(100)) || len(stored.Transactions) != 0 {
		t.Fatalf("caller mutation leaked into directory: %+v", stored)
	}
	if _, ok := dir.FindByID("missing"); ok {
		t.Fatalf("expected missing account")
	}
}

func TestUpdateNeverCreates(t *testing.T) {
	dir := New(nil)
	err := dir.Update(context.Background(), newAccount("ghost", "0000", 0))
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(dir.All()) != 0 {
		t.Fatalf("update created an account")
	}
}

func TestUpdateRejectsCardChange(t *testing.T) {
	ctx := context.Background()
	dir := New(nil)
	if err := dir.Add(ctx, newAccount("a1", "1111", 0)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := dir.Update(ctx, newAccount("a1", "9999", 0)); !errors.Is(err, ErrImmutableField) {
		t.Fatalf("expected immutable field error, got %v", err)
	}
	if _, ok := dir.FindByCard("1111"); !ok {
		t.Fatalf("original card binding lost")
	}
}

func TestMutateLeavesAccountOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepository{Repository: NewMemoryRepository()}
	dir := New(repo)
	if err := dir.Add(ctx, newAccount("a1", "1111", 100)); err != nil {
		t.Fatalf("add: %v", err)
	}

	boom := errors.New("boom")
	_, err := dir.Mutate(ctx, "a1", func(a *ledger.Account) error {
		a.Balance = decimal.Zero
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	repo.fail = true
	_, err = dir.Mutate(ctx, "a1", func(a *ledger.Account) error {
		a.Balance = decimal.Zero
		return nil
	})
	if err == nil {
		t.Fatalf("expected persistence error")
	}

	a, _ := dir.FindByID("a1")
	if !a.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance changed after failed mutation: %s", a.Balance)
	}
}

func TestMutateNoChangeSkipsPersistence(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepository{Repository: NewMemoryRepository()}
	dir := New(repo)
	if err := dir.Add(ctx, newAccount("a1", "1111", 100)); err != nil {
		t.Fatalf("add: %v", err)
	}

	repo.fail = true
	got, err := dir.Mutate(ctx, "a1", func(a *ledger.Account) error {
		return ErrNoChange
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	dir := New(nil)
	if err := dir.Add(ctx, newAccount("a1", "1111", 500)); err != nil {
		t.Fatalf("add: %v", err)
	}

	now := time.Date(2024, time.March, 14, 12, 0, 0, 0, time.UTC)
	var seq int
	var seqMu sync.Mutex
	led := ledger.New(ledger.WithClock(ledger.FixedClock(now)), ledger.WithIDGenerator(func() string {
		seqMu.Lock()
		defer seqMu.Unlock()
		seq++
		return fmt.Sprintf("tx-%d", seq)
	}))

	var wg sync.WaitGroup
	var okMu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := dir.Mutate(ctx, "a1", func(a *ledger.Account) error {
				_, err := led.Withdraw(a, decimal.NewFromInt(100))
				return err
			})
			if err == nil {
				okMu.Lock()
				succeeded++
				okMu.Unlock()
			}
		}()
	}
	wg.Wait()

	a, _ := dir.FindByID("a1")
	if succeeded != 5 {
		t.Fatalf("expected 5 successful withdrawals, got %d", succeeded)
	}
	if !a.Balance.IsZero() || len(a.Transactions) != 5 {
		t.Fatalf("unexpected final state: balance %s, %d transactions", a.Balance, len(a.Transactions))
	}
	if !a.Reconciled() {
		t.Fatalf("log does not reconcile with balance")
	}
}

func TestFileRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.json")

	dir := New(NewFileRepository(path))
	if err := dir.Load(ctx); err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if err := dir.Add(ctx, newAccount("a1", "1111", 0)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := dir.Add(ctx, newAccount("a2", "2222", 40)); err != nil {
		t.Fatalf("add: %v", err)
	}

	led := ledger.New(ledger.WithClock(ledger.FixedClock(time.Date(2024, time.March, 14, 12, 0, 0, 0, time.UTC))))
	if _, err := dir.Mutate(ctx, "a1", func(a *ledger.Account) error {
		_, err := led.Deposit(a, decimal.NewFromInt(250))
		return err
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	reloaded := New(NewFileRepository(path))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	all := reloaded.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(all))
	}
	a1, ok := reloaded.FindByCard("1111")
	if !ok {
		t.Fatalf("a1 missing after reload")
	}
	if !a1.Balance.Equal(decimal.NewFromInt(250)) || len(a1.Transactions) != 1 {
		t.Fatalf("unexpected a1 after reload: %+v", a1)
	}
	if a1.Transactions[0].Kind != ledger.KindDeposit {
		t.Fatalf("expected deposit, got %s", a1.Transactions[0].Kind)
	}

	if err := reloaded.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestLoadRejectsDuplicateCards(t *testing.T) {
	repo := NewMemoryRepository(newAccount("a1", "1111", 0), newAccount("a2", "1111", 0))
	dir := New(repo)
	if err := dir.Load(context.Background()); !errors.Is(err, ledger.ErrDuplicateAccount) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestFileRepositorySaveKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.json")
	repo := NewFileRepository(path)

	for _, a := range []ledger.Account{newAccount("b", "2222", 0), newAccount("a", "1111", 0), newAccount("b", "2222", 35)} {
		if err := repo.Save(ctx, a); err != nil {
			t.Fatalf("save %s: %v", a.ID, err)
		}
	}

	stored, err := storage.Load(path)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(stored) != 2 || stored[0].ID != "b" || stored[1].ID != "a" {
		t.Fatalf("unexpected snapshot order: %+v", stored)
	}
	if !stored[0].Balance.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("expected updated balance, got %s", stored[0].Balance)
	}
}

func TestFileRepositoryFailedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	repo := NewFileRepository(filepath.Join(blocker, "accounts.json"))
	if err := repo.Save(ctx, newAccount("a1", "1111", 0)); err == nil {
		t.Fatalf("expected write error")
	}
	if len(repo.cache.order) != 0 {
		t.Fatalf("cache changed after failed write: %v", repo.cache.order)
	}
}
