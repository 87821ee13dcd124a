package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// PoolSource describes where the account pool comes from. The three sources
// are mutually exclusive and priority-ordered: a secrets file wins over an
// inline blob, which wins over the legacy single email/password pair.
type PoolSource struct {
	File     string // path to a JSON secrets file
	Inline   string // the same JSON document, inline
	Email    string // legacy single identity
	Password string
}

type poolDocument struct {
	DefaultPassword string      `json:"default_password"`
	Accounts        []poolEntry `json:"accounts"`
}

type poolEntry struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ID       string `json:"id"`
}

// LoadPool resolves a PoolSource into a validated account pool, preserving
// the configured order. Validation failures are configuration errors.
func LoadPool(src PoolSource) ([]Account, error) {
	switch {
	case src.File != "":
		data, err := os.ReadFile(src.File)
		if err != nil {
			return nil, fmt.Errorf("accounts: read pool file: %w", err)
		}
		return parsePool(data, src.Password)

	case src.Inline != "":
		return parsePool([]byte(src.Inline), src.Password)

	case src.Email != "":
		if src.Password == "" {
			return nil, fmt.Errorf("accounts: legacy account %s has no password", src.Email)
		}
		return []Account{{
			ID:       AccountID(src.Email),
			Email:    src.Email,
			Password: src.Password,
		}}, nil
	}
	return nil, fmt.Errorf("accounts: no pool source configured")
}

func parsePool(data []byte, legacyPassword string) ([]Account, error) {
	var doc poolDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("accounts: parse pool: %w", err)
	}
	if len(doc.Accounts) == 0 {
		return nil, fmt.Errorf("accounts: pool has no accounts")
	}

	seen := make(map[string]bool, len(doc.Accounts))
	pool := make([]Account, 0, len(doc.Accounts))
	for i, entry := range doc.Accounts {
		email := strings.TrimSpace(entry.Email)
		if email == "" {
			return nil, fmt.Errorf("accounts: entry %d has an empty email", i)
		}
		lower := strings.ToLower(email)
		if seen[lower] {
			return nil, fmt.Errorf("accounts: duplicate email %s", email)
		}
		seen[lower] = true

		password := entry.Password
		if password == "" {
			password = doc.DefaultPassword
		}
		if password == "" {
			password = legacyPassword
		}
		if password == "" {
			return nil, fmt.Errorf("accounts: no password resolvable for %s", email)
		}

		id := entry.ID
		if id == "" {
			id = AccountID(email)
		}
		pool = append(pool, Account{ID: id, Email: email, Password: password})
	}
	return pool, nil
}
