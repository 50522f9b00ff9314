// Package devauth provides a config-driven admin SSO provider for local development.
package devauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/ports"
)

// DefaultCallbackPath is the admin SSO callback served by the auth API.
const DefaultCallbackPath = "/auth/admin/sso/callback"

// Config controls the dev auth provider behavior.
// UserID and Email are required.
type Config struct {
	UserID          string
	Email           string
	FirstName       string
	LastName        string
	Groups          []string
	CallbackPath    string        // default DefaultCallbackPath
	SessionDuration time.Duration // default 8h when zero
	Now             func() time.Time
}

// Provider implements ports.AuthProvider without an IdP.
// Begin redirects straight back to the callback with a locally generated state;
// Exchange ignores the code and returns the configured identity.
type Provider struct {
	mu       sync.Mutex
	identity domainauth.Identity
	callback string
	duration time.Duration
	now      func() time.Time
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	dur := cfg.SessionDuration
	if dur <= 0 {
		dur = 8 * time.Hour
	}
	cb := cfg.CallbackPath
	if cb == "" {
		cb = DefaultCallbackPath
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		identity: domainauth.Identity{
			UserID:    cfg.UserID,
			Email:     cfg.Email,
			FirstName: cfg.FirstName,
			LastName:  cfg.LastName,
			Groups:    append([]string(nil), cfg.Groups...),
		},
		callback: cb,
		duration: dur,
		now:      now,
	}, nil
}

// Begin returns the local callback URL and fresh state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	q := url.Values{}
	q.Set("code", "dev")
	q.Set("state", state)
	return p.callback + "?" + q.Encode(), state, nonce, nil
}

// Exchange returns the dev identity with a fresh expiry. State and nonce are
// checked by the caller.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.identity
	id.Groups = append([]string(nil), p.identity.Groups...)
	id.ExpiresAt = p.now().Add(p.duration)
	return id, nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
