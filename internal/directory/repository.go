package directory

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cash-point/cashpoint/internal/ledger"
)

// Repository persists committed account state.
type Repository interface {
	Load(ctx context.Context) ([]ledger.Account, error)
	Save(ctx context.Context, account ledger.Account) error
}

// Snapshotter is implemented by repositories that can write every account in
// one step.
type Snapshotter interface {
	SaveAll(ctx context.Context, accounts []ledger.Account) error
}

//go:embed schema.sql
var schema string

// PostgresRepository stores accounts and their transaction logs in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the account tables when they do not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Load reads every account with its transactions in log order.
func (r *PostgresRepository) Load(ctx context.Context) ([]ledger.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, card_number, pin, balance::text, created_at
        FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []ledger.Account
	index := make(map[string]int)
	for rows.Next() {
		var (
			a         ledger.Account
			balance   string
			createdAt time.Time
		)
		if err := rows.Scan(&a.ID, &a.CardNumber, &a.PIN, &balance, &createdAt); err != nil {
			return nil, err
		}
		if a.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("account %s balance: %w", a.ID, err)
		}
		a.CreatedAt = createdAt.UTC()
		a.Transactions = []ledger.Transaction{}
		index[a.ID] = len(accounts)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	txRows, err := r.db.Query(ctx, `SELECT account_id, id, kind, amount::text, occurred_at
        FROM account_transactions ORDER BY account_id, seq`)
	if err != nil {
		return nil, err
	}
	defer txRows.Close()

	for txRows.Next() {
		var (
			accountID string
			tx        ledger.Transaction
			kind      string
			amount    string
			at        time.Time
		)
		if err := txRows.Scan(&accountID, &tx.ID, &kind, &amount, &at); err != nil {
			return nil, err
		}
		i, ok := index[accountID]
		if !ok {
			continue
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", tx.ID, err)
		}
		tx.Kind = ledger.Kind(kind)
		tx.Timestamp = at.UTC()
		accounts[i].Transactions = append(accounts[i].Transactions, tx)
	}
	if err := txRows.Err(); err != nil {
		return nil, err
	}

	for i := range accounts {
		accounts[i].Rebase()
	}
	return accounts, nil
}

// Save upserts the account row and appends transactions not stored yet.
func (r *PostgresRepository) Save(ctx context.Context, account ledger.Account) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := saveAccount(ctx, tx, account); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveAll writes every account in a single transaction.
func (r *PostgresRepository) SaveAll(ctx context.Context, accounts []ledger.Account) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, a := range accounts {
		if err := saveAccount(ctx, tx, a); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func saveAccount(ctx context.Context, tx pgx.Tx, account ledger.Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := tx.Exec(ctx, `INSERT INTO accounts (id, card_number, pin, balance, created_at)
        VALUES ($1, $2, $3, $4::numeric, $5)
        ON CONFLICT (id) DO UPDATE SET pin = EXCLUDED.pin, balance = EXCLUDED.balance`,
		account.ID, account.CardNumber, account.PIN, account.Balance.String(), createdAt.UTC()); err != nil {
		return fmt.Errorf("upsert account %s: %w", account.ID, err)
	}

	var stored int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM account_transactions WHERE account_id = $1`, account.ID).Scan(&stored); err != nil {
		return err
	}

	for seq := stored; seq < len(account.Transactions); seq++ {
		t := account.Transactions[seq]
		if _, err := tx.Exec(ctx, `INSERT INTO account_transactions (id, account_id, seq, kind, amount, occurred_at)
            VALUES ($1, $2, $3, $4, $5::numeric, $6)`,
			t.ID, account.ID, seq, string(t.Kind), t.Amount.String(), t.Timestamp.UTC()); err != nil {
			return fmt.Errorf("append transaction %s: %w", t.ID, err)
		}
	}
	return nil
}
