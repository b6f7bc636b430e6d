package directory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/cash-point/cashpoint/internal/ledger"
)

var (
	// ErrImmutableField rejects updates that change an account id or card number.
	ErrImmutableField = errors.New("account id and card number are immutable")

	// ErrNoChange may be returned by a Mutate callback to release the account
	// without persisting anything.
	ErrNoChange = errors.New("no change")
)

// Directory owns the authoritative copy of every account. Reads return
// copies; all writes go through Add, Update or Mutate, which persist through
// the Repository before the in-memory state changes.
type Directory struct {
	repo Repository

	mu     sync.RWMutex
	byID   map[string]ledger.Account
	byCard map[string]string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds an empty directory persisting through repo.
func New(repo Repository) *Directory {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	return &Directory{
		repo:   repo,
		byID:   make(map[string]ledger.Account),
		byCard: make(map[string]string),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Load replaces the directory contents with the accounts stored in the repository.
func (d *Directory) Load(ctx context.Context) error {
	accounts, err := d.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	byID := make(map[string]ledger.Account, len(accounts))
	byCard := make(map[string]string, len(accounts))
	for _, a := range accounts {
		if _, exists := byID[a.ID]; exists {
			return fmt.Errorf("account %s: %w", a.ID, ledger.ErrDuplicateAccount)
		}
		if _, exists := byCard[a.CardNumber]; exists {
			return fmt.Errorf("card %s: %w", maskCard(a.CardNumber), ledger.ErrDuplicateAccount)
		}
		byID[a.ID] = a.Clone()
		byCard[a.CardNumber] = a.ID
	}

	d.mu.Lock()
	d.byID = byID
	d.byCard = byCard
	d.mu.Unlock()
	return nil
}

// FindByID returns a copy of the account with the given id.
func (d *Directory) FindByID(id string) (ledger.Account, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.byID[id]
	if !ok {
		return ledger.Account{}, false
	}
	return a.Clone(), true
}

// FindByCard returns a copy of the account bound to card.
func (d *Directory) FindByCard(card string) (ledger.Account, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byCard[card]
	if !ok {
		return ledger.Account{}, false
	}
	return d.byID[id].Clone(), true
}

// All returns a copy of every account, oldest first.
func (d *Directory) All() []ledger.Account {
	d.mu.RLock()
	out := make([]ledger.Account, 0, len(d.byID))
	for _, a := range d.byID {
		out = append(out, a.Clone())
	}
	d.mu.RUnlock()

	slices.SortFunc(out, func(a, b ledger.Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Add registers a new account. Both the id and the card number must be unused.
func (d *Directory) Add(ctx context.Context, acct ledger.Account) error {
	if acct.ID == "" || acct.CardNumber == "" {
		return fmt.Errorf("account id and card number are required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byID[acct.ID]; exists {
		return fmt.Errorf("account %s: %w", acct.ID, ledger.ErrDuplicateAccount)
	}
	if _, exists := d.byCard[acct.CardNumber]; exists {
		return fmt.Errorf("card %s: %w", maskCard(acct.CardNumber), ledger.ErrDuplicateAccount)
	}

	stored := acct.Clone()
	if err := d.repo.Save(ctx, stored); err != nil {
		return fmt.Errorf("persist account %s: %w", acct.ID, err)
	}
	d.byID[stored.ID] = stored
	d.byCard[stored.CardNumber] = stored.ID
	return nil
}

// Update replaces the stored record with the same id. It never creates
// accounts.
func (d *Directory) Update(ctx context.Context, acct ledger.Account) error {
	_, err := d.Mutate(ctx, acct.ID, func(current *ledger.Account) error {
		*current = acct.Clone()
		return nil
	})
	return err
}

// Mutate runs fn against a copy of the account while holding the account's
// lock, persists the result and publishes it. Concurrent Mutate calls for
// the same account are serialised, so fn observes every earlier commit. If
// fn or persistence fails the stored account is unchanged.
func (d *Directory) Mutate(ctx context.Context, id string, fn func(*ledger.Account) error) (ledger.Account, error) {
	lock := d.accountLock(id)
	lock.Lock()
	defer lock.Unlock()

	current, ok := d.FindByID(id)
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}

	next := current.Clone()
	if err := fn(&next); err != nil {
		if errors.Is(err, ErrNoChange) {
			return current, nil
		}
		return current, err
	}
	if next.ID != current.ID || next.CardNumber != current.CardNumber {
		return current, ErrImmutableField
	}

	if err := d.repo.Save(ctx, next); err != nil {
		return current, fmt.Errorf("persist account %s: %w", id, err)
	}

	d.mu.Lock()
	d.byID[id] = next
	d.mu.Unlock()
	return next.Clone(), nil
}

// Flush writes every account back to the repository.
func (d *Directory) Flush(ctx context.Context) error {
	accounts := d.All()
	if s, ok := d.repo.(Snapshotter); ok {
		return s.SaveAll(ctx, accounts)
	}
	for _, a := range accounts {
		if err := d.repo.Save(ctx, a); err != nil {
			return fmt.Errorf("persist account %s: %w", a.ID, err)
		}
	}
	return nil
}

func (d *Directory) accountLock(id string) *sync.Mutex {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()
	if _, exists := d.locks[id]; !exists {
		d.locks[id] = &sync.Mutex{}
	}
	return d.locks[id]
}

func maskCard(card string) string {
	if len(card) <= 4 {
		return "****"
	}
	return "****" + card[len(card)-4:]
}
