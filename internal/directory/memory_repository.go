package directory

import (
	"context"
	"sync"

	"github.com/cash-point/cashpoint/internal/ledger"
	"github.com/cash-point/cashpoint/internal/storage"
)

type memoryRepository struct {
	mu       sync.RWMutex
	order    []string
	accounts map[string]ledger.Account
}

// NewMemoryRepository constructs an in-memory repository for tests and
// throwaway development runs.
func NewMemoryRepository(seed ...ledger.Account) Repository {
	r := &memoryRepository{accounts: make(map[string]ledger.Account)}
	for _, a := range seed {
		r.put(a)
	}
	return r
}

func (r *memoryRepository) Load(_ context.Context) ([]ledger.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.ordered()
	for i := range out {
		out[i].Rebase()
	}
	return out, nil
}

// ordered returns copies of the stored accounts in insertion order. Callers
// hold mu or own r exclusively.
func (r *memoryRepository) ordered() []ledger.Account {
	out := make([]ledger.Account, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.accounts[id].Clone())
	}
	return out
}

func (r *memoryRepository) Save(_ context.Context, account ledger.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(account)
	return nil
}

func (r *memoryRepository) put(account ledger.Account) {
	if _, exists := r.accounts[account.ID]; !exists {
		r.order = append(r.order, account.ID)
	}
	r.accounts[account.ID] = account.Clone()
}

// FileRepository keeps accounts in a JSON snapshot file. Every Save rewrites
// the whole snapshot.
type FileRepository struct {
	path string

	mu    sync.Mutex
	cache *memoryRepository
}

// NewFileRepository builds a repository persisting to path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path, cache: &memoryRepository{accounts: make(map[string]ledger.Account)}}
}

// Load reads the snapshot file. A missing file is an empty directory.
func (r *FileRepository) Load(ctx context.Context) ([]ledger.Account, error) {
	accounts, err := storage.Load(r.path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = &memoryRepository{accounts: make(map[string]ledger.Account)}
	for _, a := range accounts {
		r.cache.put(a)
	}
	return r.cache.Load(ctx)
}

// Save records account and rewrites the snapshot. The in-memory copy only
// changes once the file has been written.
func (r *FileRepository) Save(_ context.Context, account ledger.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := &memoryRepository{accounts: make(map[string]ledger.Account, len(r.cache.accounts)+1)}
	for _, id := range r.cache.order {
		next.put(r.cache.accounts[id])
	}
	next.put(account)

	if err := storage.Save(r.path, next.ordered()); err != nil {
		return err
	}
	r.cache = next
	return nil
}

// SaveAll replaces the snapshot with accounts.
func (r *FileRepository) SaveAll(_ context.Context, accounts []ledger.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := storage.Save(r.path, accounts); err != nil {
		return err
	}
	next := &memoryRepository{accounts: make(map[string]ledger.Account, len(accounts))}
	for _, a := range accounts {
		next.put(a)
	}
	r.cache = next
	return nil
}
