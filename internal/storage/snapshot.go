// Package storage encodes account snapshots as JSON files. The record layout
// matches the accounts.json files written by earlier terminal builds, so
// those files load unchanged.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cash-point/cashpoint/internal/ledger"
)

// AccountRecord is the persisted form of an account.
type AccountRecord struct {
	ID           string              `json:"Id"`
	CardNumber   string              `json:"CardNumber"`
	PIN          string              `json:"Pin"`
	Balance      decimal.Decimal     `json:"Balance"`
	Transactions []TransactionRecord `json:"Transactions"`
	CreatedAt    *Timestamp          `json:"CreatedAt,omitempty"`
}

// TransactionRecord is the persisted form of a transaction.
type TransactionRecord struct {
	ID     string          `json:"Id"`
	Date   Timestamp       `json:"Date"`
	Amount decimal.Decimal `json:"Amount"`
	Type   ledger.Kind     `json:"Type"`
}

// legacyLayout is the zone-less timestamp format found in older snapshots.
const legacyLayout = "2006-01-02T15:04:05.9999999"

// Timestamp marshals as RFC 3339 and also accepts zone-less timestamps,
// which are read in the local zone.
type Timestamp struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(legacyLayout, raw, time.Local)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}

// Encode converts accounts to records, preserving transaction order.
func Encode(accounts []ledger.Account) []AccountRecord {
	records := make([]AccountRecord, 0, len(accounts))
	for _, a := range accounts {
		rec := AccountRecord{
			ID:           a.ID,
			CardNumber:   a.CardNumber,
			PIN:          a.PIN,
			Balance:      a.Balance,
			Transactions: make([]TransactionRecord, 0, len(a.Transactions)),
		}
		if !a.CreatedAt.IsZero() {
			rec.CreatedAt = &Timestamp{Time: a.CreatedAt}
		}
		for _, tx := range a.Transactions {
			rec.Transactions = append(rec.Transactions, TransactionRecord{
				ID:     tx.ID,
				Date:   Timestamp{Time: tx.Timestamp},
				Amount: tx.Amount,
				Type:   tx.Kind,
			})
		}
		records = append(records, rec)
	}
	return records
}

// Decode converts records back to accounts. Each account is rebased so its
// log reconciles against the loaded balance.
func Decode(records []AccountRecord) ([]ledger.Account, error) {
	accounts := make([]ledger.Account, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			return nil, errors.New("account record without id")
		}
		a := ledger.Account{
			ID:           rec.ID,
			CardNumber:   rec.CardNumber,
			PIN:          rec.PIN,
			Balance:      rec.Balance,
			Transactions: make([]ledger.Transaction, 0, len(rec.Transactions)),
		}
		if rec.CreatedAt != nil {
			a.CreatedAt = rec.CreatedAt.Time
		}
		for _, tr := range rec.Transactions {
			if !tr.Type.Valid() {
				return nil, fmt.Errorf("account %s: transaction %s has unknown type %q", rec.ID, tr.ID, tr.Type)
			}
			a.Transactions = append(a.Transactions, ledger.Transaction{
				ID:        tr.ID,
				Timestamp: tr.Date.Time,
				Amount:    tr.Amount,
				Kind:      tr.Type,
			})
		}
		a.Rebase()
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// Load reads a snapshot file. A missing file yields an empty set of accounts.
func Load(path string) ([]ledger.Account, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []ledger.Account{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []ledger.Account{}, nil
	}

	var records []AccountRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return Decode(records)
}

// Save writes accounts to path. The file is written to path+".tmp" first and
// renamed into place, so readers never observe a partial snapshot.
func Save(path string, accounts []ledger.Account) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Encode(accounts)); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}

	return os.Rename(tmp, path)
}
