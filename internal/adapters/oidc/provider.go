// Package oidc implements admin-console SSO against an OpenID Connect provider.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/ports"
	"golang.org/x/oauth2"
)

// Provider implements ports.AuthProvider using OIDC authorization code flow.
type Provider struct {
	config   *oauth2.Config
	provider *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
	client   *http.Client
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	// IssuerURL may also be given as the full discovery document URL.
	IssuerURL  string
	HTTPClient *http.Client
}

// NewProvider performs discovery and builds a Provider.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	switch {
	case cfg.ClientID == "":
		return nil, errors.New("client ID is required")
	case cfg.ClientSecret == "":
		return nil, errors.New("client secret is required")
	case cfg.RedirectURL == "":
		return nil, errors.New("redirect URL is required")
	case cfg.IssuerURL == "":
		return nil, errors.New("issuer URL is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	ctx = gooidc.ClientContext(ctx, client)

	issuer := strings.TrimSuffix(cfg.IssuerURL, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, "/")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	scopes := strings.Fields(cfg.Scope)
	if !slices.Contains(scopes, gooidc.ScopeOpenID) {
		scopes = append([]string{gooidc.ScopeOpenID}, scopes...)
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		provider: op,
		verifier: op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		client:   client,
	}, nil
}

// Begin returns the IdP authorization URL with fresh state and nonce.
// The redirect URI sent to the IdP is always the configured one.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	authURL := p.config.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Exchange redeems the code, verifies the ID token and nonce, and returns the identity.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	switch {
	case in.Code == "":
		return domainauth.Identity{}, errors.New("authorization code is required")
	case in.State == "":
		return domainauth.Identity{}, errors.New("state is required")
	case in.Nonce == "":
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.client)
	tok, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}
	rawID, err := idTokenFrom(tok)
	if err != nil {
		return domainauth.Identity{}, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("verify id_token: %w", err)
	}
	if idTok.Nonce != in.Nonce {
		return domainauth.Identity{}, errors.New("invalid nonce")
	}

	var c claims
	if claimsErr := idTok.Claims(&c); claimsErr != nil {
		return domainauth.Identity{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	if c.Email == "" {
		ui, uiErr := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
		if uiErr != nil {
			return domainauth.Identity{}, fmt.Errorf("fetch user info: %w", uiErr)
		}
		var extra claims
		if decodeErr := ui.Claims(&extra); decodeErr != nil {
			return domainauth.Identity{}, fmt.Errorf("decode user info: %w", decodeErr)
		}
		c.merge(extra)
	}

	id, err := c.identity()
	if err != nil {
		return domainauth.Identity{}, err
	}
	id.ExpiresAt = idTok.Expiry
	return id, nil
}

type claims struct {
	Subject       string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified *bool    `json:"email_verified"`
	GivenName     string   `json:"given_name"`
	FamilyName    string   `json:"family_name"`
	Groups        []string `json:"groups"`
}

func (c *claims) merge(o claims) {
	if c.Email == "" {
		c.Email, c.EmailVerified = o.Email, o.EmailVerified
	}
	if c.GivenName == "" {
		c.GivenName = o.GivenName
	}
	if c.FamilyName == "" {
		c.FamilyName = o.FamilyName
	}
	if len(c.Groups) == 0 {
		c.Groups = o.Groups
	}
}

// identity rejects identities whose email the IdP marks as unverified.
func (c claims) identity() (domainauth.Identity, error) {
	if c.Subject == "" {
		return domainauth.Identity{}, errors.New("id_token has no subject")
	}
	if c.Email == "" {
		return domainauth.Identity{}, errors.New("identity has no email")
	}
	if c.EmailVerified != nil && !*c.EmailVerified {
		return domainauth.Identity{}, errors.New("identity email is not verified")
	}
	return domainauth.Identity{
		UserID:    c.Subject,
		Email:     c.Email,
		FirstName: c.GivenName,
		LastName:  c.FamilyName,
		Groups:    c.Groups,
	}, nil
}

func idTokenFrom(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}

// randomString returns a URL-safe random string of exactly n characters.
func randomString(n int) (string, error) {
	b := make([]byte, (n*3+3)/4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
