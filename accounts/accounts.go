// Package accounts manages the pool of capture identities and the
// sliding-window usage quota that governs their rotation.
//
// Pool loading and validation are configuration-time concerns: a pool that
// fails validation is a fatal error, never a runtime quota condition.
// Selection is a single atomic transaction against the quota store, so two
// concurrent selections can never both claim the last free slot.
package accounts

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Account is one immutable capture identity.
type Account struct {
	ID       string `json:"account_id"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

// AccountID derives the short, stable digest used to key usage events:
// the first 12 hex characters of sha256 over the lowercased email. Never
// derived from mutable state, so renaming or reordering the pool does not
// orphan recorded usage.
func AccountID(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])[:12]
}
