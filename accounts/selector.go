package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Selector picks the next capture identity under the sliding-window quota.
// It is stateless apart from the store: the pool order and the persisted
// rotation pointer fully determine the outcome.
type Selector struct {
	store  *Store
	pool   []Account
	limit  int
	window time.Duration
	logger *slog.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) SelectorOption {
	return func(s *Selector) { s.logger = l }
}

// NewSelector creates a Selector over a validated pool. Limit is the
// maximum number of uses per account inside the window.
func NewSelector(store *Store, pool []Account, limit int, window time.Duration, opts ...SelectorOption) (*Selector, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("accounts: selector needs a non-empty pool")
	}
	if limit <= 0 || window <= 0 {
		return nil, fmt.Errorf("accounts: limit and window must be positive (limit=%d window=%s)", limit, window)
	}
	s := &Selector{
		store:  store,
		pool:   pool,
		limit:  limit,
		window: window,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// SelectAndRecord picks an account with remaining quota, records a usage
// event for it at now, persists it as the rotation pointer, and returns it.
// Selection is sticky: the previously selected account is reused while it
// still has quota, minimizing re-authentication. When every account is at
// its limit it returns *ErrQuotaExceeded with a retry hint.
//
// The whole decision runs in one write transaction, so concurrent callers
// serialize on the store and can never double-book the last slot.
func (s *Selector) SelectAndRecord(ctx context.Context, now time.Time) (Account, error) {
	tx, err := s.store.begin(ctx)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback()

	if err := s.store.prune(ctx, tx, now.Add(-s.window)); err != nil {
		return Account{}, fmt.Errorf("accounts: prune: %w", err)
	}

	currentID, err := s.store.current(ctx, tx)
	if err != nil {
		return Account{}, fmt.Errorf("accounts: read pointer: %w", err)
	}

	currentPos := -1
	for i, acct := range s.pool {
		if acct.ID == currentID {
			currentPos = i
			break
		}
	}

	// Sticky reselection of the current account.
	chosen := -1
	if currentPos >= 0 {
		n, err := s.store.countInWindow(ctx, tx, currentID)
		if err != nil {
			return Account{}, fmt.Errorf("accounts: count: %w", err)
		}
		if n < s.limit {
			chosen = currentPos
		}
	}

	// Otherwise scan the pool in configured order, starting just after the
	// current account and wrapping.
	if chosen < 0 {
		for off := 1; off <= len(s.pool); off++ {
			i := (currentPos + off) % len(s.pool)
			if i == currentPos {
				continue
			}
			n, err := s.store.countInWindow(ctx, tx, s.pool[i].ID)
			if err != nil {
				return Account{}, fmt.Errorf("accounts: count: %w", err)
			}
			if n < s.limit {
				chosen = i
				break
			}
		}
	}

	if chosen < 0 {
		qerr, err := s.exhausted(ctx, tx, now)
		if err != nil {
			return Account{}, err
		}
		return Account{}, qerr
	}

	acct := s.pool[chosen]
	if err := s.store.recordUse(ctx, tx, acct.ID, now); err != nil {
		return Account{}, fmt.Errorf("accounts: record use: %w", err)
	}
	if err := s.store.setCurrent(ctx, tx, acct.ID); err != nil {
		return Account{}, fmt.Errorf("accounts: persist pointer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Account{}, fmt.Errorf("accounts: commit: %w", err)
	}

	s.logger.Debug("accounts: selected", "account_id", acct.ID, "sticky", chosen == currentPos)
	return acct, nil
}

// AccountUsage is one row of the usage report.
type AccountUsage struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
}

// Usage reports in-window usage per account without mutating the store.
func (s *Selector) Usage(ctx context.Context, now time.Time) ([]AccountUsage, error) {
	cutoff := now.Add(-s.window).UnixMilli()
	report := make([]AccountUsage, 0, len(s.pool))
	for _, acct := range s.pool {
		var n int
		err := s.store.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM usage_events WHERE account_id = ? AND ts >= ?`,
			acct.ID, cutoff).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("accounts: usage: %w", err)
		}
		report = append(report, AccountUsage{
			AccountID: acct.ID,
			Email:     acct.Email,
			Used:      n,
			Limit:     s.limit,
		})
	}
	return report, nil
}

// exhausted computes the retry hint: the earliest in-window event across
// the pool ages out first, and its expiry is the earliest moment a slot
// can free up.
func (s *Selector) exhausted(ctx context.Context, tx *sql.Tx, now time.Time) (*ErrQuotaExceeded, error) {
	var earliest time.Time
	found := false
	for _, acct := range s.pool {
		ts, ok, err := s.store.earliestInWindow(ctx, tx, acct.ID)
		if err != nil {
			return nil, fmt.Errorf("accounts: earliest: %w", err)
		}
		if ok && (!found || ts.Before(earliest)) {
			earliest = ts
			found = true
		}
	}
	if !found {
		return &ErrQuotaExceeded{}, nil
	}
	return &ErrQuotaExceeded{
		RetryAfter: earliest.Add(s.window).Sub(now),
		KnownRetry: true,
	}, nil
}
