package accounts

import (
	"fmt"
	"time"
)

// ErrQuotaExceeded is returned when every account in the pool has reached
// its limit inside the rolling window. It is an expected condition, not a
// bug: callers surface the retry hint and try again later.
type ErrQuotaExceeded struct {
	// RetryAfter is how long until the earliest in-window usage event ages
	// out. Only meaningful when KnownRetry is true.
	RetryAfter time.Duration
	KnownRetry bool
}

func (e *ErrQuotaExceeded) Error() string {
	if e.KnownRetry {
		return fmt.Sprintf("accounts: quota exceeded on all accounts, retry in %s", e.RetryAfter.Round(time.Second))
	}
	return "accounts: quota exceeded on all accounts"
}
