package accounts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sift/accounts"
	"github.com/hazyhaar/sift/dbopen"
)

func testStore(t *testing.T) *accounts.Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	store := accounts.NewStore(db)
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	return store
}

func testPool(emails ...string) []accounts.Account {
	pool := make([]accounts.Account, 0, len(emails))
	for _, e := range emails {
		pool = append(pool, accounts.Account{ID: accounts.AccountID(e), Email: e, Password: "pw"})
	}
	return pool
}

func TestRotationUnderLimitOne(t *testing.T) {
	store := testStore(t)
	pool := testPool("a@example.com", "b@example.com")
	sel, err := accounts.NewSelector(store, pool, 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	now := time.Now()

	first, err := sel.SelectAndRecord(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	second, err := sel.SelectAndRecord(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Fatalf("consecutive selections at limit 1 returned the same account %s", first.ID)
	}

	_, err = sel.SelectAndRecord(ctx, now)
	var qerr *accounts.ErrQuotaExceeded
	if !errors.As(err, &qerr) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if !qerr.KnownRetry || qerr.RetryAfter != time.Hour {
		t.Errorf("retry hint = %v (known=%v), want exactly the window", qerr.RetryAfter, qerr.KnownRetry)
	}
}

func TestStickySelection(t *testing.T) {
	store := testStore(t)
	pool := testPool("a@example.com", "b@example.com")
	sel, err := accounts.NewSelector(store, pool, 10, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	first, err := sel.SelectAndRecord(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	second, err := sel.SelectAndRecord(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("selection not sticky under remaining quota: %s then %s", first.ID, second.ID)
	}
}

func TestWindowPruningFreesQuota(t *testing.T) {
	store := testStore(t)
	pool := testPool("a@example.com")
	sel, err := accounts.NewSelector(store, pool, 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	now := time.Now()

	if _, err := sel.SelectAndRecord(ctx, now); err != nil {
		t.Fatal(err)
	}
	if _, err := sel.SelectAndRecord(ctx, now); err == nil {
		t.Fatal("expected quota error inside the window")
	}
	// One window later the event has aged out.
	if _, err := sel.SelectAndRecord(ctx, now.Add(time.Hour+time.Second)); err != nil {
		t.Fatalf("selection after window expiry: %v", err)
	}
}

func TestWrapScanStartsAfterCurrent(t *testing.T) {
	store := testStore(t)
	pool := testPool("a@example.com", "b@example.com", "c@example.com")
	sel, err := accounts.NewSelector(store, pool, 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	now := time.Now()

	var got []string
	for i := 0; i < 3; i++ {
		acct, err := sel.SelectAndRecord(ctx, now)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, acct.Email)
	}
	want := []string{"a@example.com", "b@example.com", "c@example.com"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation order = %v, want %v", got, want)
		}
	}
}

func TestAccountIDStable(t *testing.T) {
	a := accounts.AccountID("User@Example.com")
	b := accounts.AccountID("user@example.com")
	if a != b {
		t.Errorf("digest not case-insensitive: %s vs %s", a, b)
	}
	if len(a) != 12 {
		t.Errorf("digest length = %d, want 12", len(a))
	}
}
