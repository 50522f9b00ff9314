package devauth

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/medibook/clinic-gate/internal/ports"
)

func TestProvider_BeginAndExchange(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	prov, err := NewProvider(Config{
		UserID: "dev-admin",
		Email:  "admin@clinic.test",
		Groups: []string{"clinic-admins"},
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	authURL, state, nonce, err := prov.Begin(context.Background(), ports.BeginInput{RedirectURL: "/admin"})
	if err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse authURL: %v", err)
	}
	if u.Path != DefaultCallbackPath {
		t.Fatalf("unexpected callback path: %s", u.Path)
	}
	if u.Query().Get("state") != state || u.Query().Get("code") != "dev" {
		t.Fatalf("unexpected query: %s", u.RawQuery)
	}
	if len(state) != 24 || len(nonce) != 24 {
		t.Fatalf("state/nonce length: %d/%d", len(state), len(nonce))
	}

	id, err := prov.Exchange(context.Background(), ports.ExchangeInput{Code: "dev", State: state, Nonce: nonce})
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if id.UserID != "dev-admin" || id.Email != "admin@clinic.test" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if !id.ExpiresAt.Equal(now.Add(8 * time.Hour)) {
		t.Fatalf("unexpected expiry: %v", id.ExpiresAt)
	}

	id.Groups[0] = "mutated"
	again, _ := prov.Exchange(context.Background(), ports.ExchangeInput{Code: "dev"})
	if again.Groups[0] != "clinic-admins" {
		t.Fatal("identity groups should not be shared with callers")
	}
}

func TestProvider_CustomCallback(t *testing.T) {
	prov, err := NewProvider(Config{UserID: "u", Email: "u@clinic.test", CallbackPath: "/sso/cb"})
	if err != nil {
		t.Fatal(err)
	}
	authURL, _, _, err := prov.Begin(context.Background(), ports.BeginInput{})
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(authURL)
	if u.Path != "/sso/cb" {
		t.Fatalf("unexpected callback: %s", authURL)
	}
}

func TestProvider_Errors(t *testing.T) {
	if _, err := NewProvider(Config{Email: "x@clinic.test"}); err == nil {
		t.Fatal("expected error for missing UserID")
	}
	if _, err := NewProvider(Config{UserID: "x"}); err == nil {
		t.Fatal("expected error for missing Email")
	}
	prov, _ := NewProvider(Config{UserID: "x", Email: "x@clinic.test"})
	if _, err := prov.Exchange(context.Background(), ports.ExchangeInput{}); err == nil {
		t.Fatal("expected error for missing code")
	}
}
