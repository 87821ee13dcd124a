package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Schema for the quota store. Usage events are append-only and pruned once
// they age out of the rolling window; selector_state holds the single
// rotation pointer.
const Schema = `
CREATE TABLE IF NOT EXISTS usage_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_events_account_ts ON usage_events(account_id, ts);
CREATE TABLE IF NOT EXISTS selector_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const currentAccountKey = "current_account_id"

// Store is the durable, transactional quota store. All selection reads and
// writes happen inside one transaction obtained from Begin.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database. Call Init once at startup.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the quota tables if they don't exist.
func (s *Store) Init() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("accounts: init store: %w", err)
	}
	return nil
}

func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("accounts: begin: %w", err)
	}
	return tx, nil
}

// prune deletes usage events older than cutoff. It is the first statement
// of every selection transaction: the write promotes the transaction to an
// exclusive one, serializing concurrent selections.
func (s *Store) prune(ctx context.Context, tx *sql.Tx, cutoff time.Time) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM usage_events WHERE ts < ?`, cutoff.UnixMilli())
	return err
}

func (s *Store) current(ctx context.Context, tx *sql.Tx) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT value FROM selector_state WHERE key = ?`, currentAccountKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

func (s *Store) setCurrent(ctx context.Context, tx *sql.Tx, accountID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO selector_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		currentAccountKey, accountID)
	return err
}

func (s *Store) countInWindow(ctx context.Context, tx *sql.Tx, accountID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_events WHERE account_id = ?`, accountID).Scan(&n)
	return n, err
}

// earliestInWindow returns the oldest usage timestamp for an account. The
// bool is false when the account has no events at all.
func (s *Store) earliestInWindow(ctx context.Context, tx *sql.Tx, accountID string) (time.Time, bool, error) {
	var ms sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT MIN(ts) FROM usage_events WHERE account_id = ?`, accountID).Scan(&ms)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms.Int64), true, nil
}

func (s *Store) recordUse(ctx context.Context, tx *sql.Tx, accountID string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO usage_events (account_id, ts) VALUES (?, ?)`,
		accountID, now.UnixMilli())
	return err
}
