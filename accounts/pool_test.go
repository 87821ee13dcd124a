package accounts_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/sift/accounts"
)

func TestLoadPoolInline(t *testing.T) {
	pool, err := accounts.LoadPool(accounts.PoolSource{
		Inline: `{"default_password":"shared","accounts":[
			{"email":"a@example.com"},
			{"email":"b@example.com","password":"own"},
			{"email":"c@example.com","id":"custom-id"}
		]}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pool) != 3 {
		t.Fatalf("pool size = %d, want 3", len(pool))
	}
	if pool[0].Password != "shared" || pool[1].Password != "own" {
		t.Errorf("password resolution wrong: %+v", pool)
	}
	if pool[2].ID != "custom-id" {
		t.Errorf("explicit id not honored: %q", pool[2].ID)
	}
	if pool[0].ID != accounts.AccountID("a@example.com") {
		t.Errorf("derived id wrong: %q", pool[0].ID)
	}
}

func TestLoadPoolFileWinsOverInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	if err := os.WriteFile(path, []byte(`{"accounts":[{"email":"file@example.com","password":"pw"}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	pool, err := accounts.LoadPool(accounts.PoolSource{
		File:   path,
		Inline: `{"accounts":[{"email":"inline@example.com","password":"pw"}]}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if pool[0].Email != "file@example.com" {
		t.Errorf("file source should take priority, got %s", pool[0].Email)
	}
}

func TestLoadPoolLegacyPair(t *testing.T) {
	pool, err := accounts.LoadPool(accounts.PoolSource{Email: "solo@example.com", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	if len(pool) != 1 || pool[0].ID != accounts.AccountID("solo@example.com") {
		t.Errorf("legacy pool wrong: %+v", pool)
	}
}

func TestLoadPoolValidation(t *testing.T) {
	cases := []struct {
		name   string
		inline string
		want   string
	}{
		{"empty email", `{"accounts":[{"email":"","password":"pw"}]}`, "empty email"},
		{"duplicate email", `{"accounts":[{"email":"a@x.com","password":"p"},{"email":"A@X.COM","password":"p"}]}`, "duplicate"},
		{"missing password", `{"accounts":[{"email":"a@x.com"}]}`, "no password"},
		{"no accounts", `{"accounts":[]}`, "no accounts"},
		{"bad json", `{`, "parse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := accounts.LoadPool(accounts.PoolSource{Inline: tc.inline})
			if err == nil {
				t.Fatal("expected a configuration error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
