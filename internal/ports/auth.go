// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.
package ports

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/domain/model"
)

// TokenStore persists the two client-side token kinds. It is a blind cache:
// it never validates against the server. Read reports false for missing,
// unreadable or malformed entries and never fails.
type TokenStore interface {
	Read(ctx context.Context, kind domainauth.TokenKind) (domainauth.Token, bool)
	Write(ctx context.Context, kind domainauth.TokenKind, tok domainauth.Token) error
	Clear(ctx context.Context, kind domainauth.TokenKind) error
}

// SessionVerifier asks the backend whether the current session credential is valid.
// Errors are normalized to unauthorized or network (see internal/errors).
type SessionVerifier interface {
	Verify(ctx context.Context) (domainauth.Principal, error)
}

// SessionGateway is the full client-side surface of the auth backend for one scope.
type SessionGateway interface {
	SessionVerifier
	// Login exchanges credentials for a session. Errors are unauthorized,
	// validation or network.
	Login(ctx context.Context, creds domainauth.Credentials) (domainauth.Principal, error)
	// Logout invalidates the server session. Callers treat failures as best-effort.
	Logout(ctx context.Context) error
}

// ErrSessionNotFound is matched (errors.Is) by SessionStore.Get for missing or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists and retrieves server-side sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// UserRepository is the persistence port for platform accounts.
type UserRepository interface {
	Create(ctx context.Context, req model.CreateUserRequest) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// SessionClaims are the fields carried inside a signed session token.
type SessionClaims struct {
	SessionID string
	UserID    string
	Role      domainauth.Role
	Scope     domainauth.Scope
	ExpiresAt time.Time
}

// TokenIssuer signs and parses session tokens.
type TokenIssuer interface {
	Issue(sess domainauth.Session) (string, error)
	// Parse validates signature, expiry, issuer and scope.
	Parse(token string, scope domainauth.Scope) (SessionClaims, error)
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes an admin SSO flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// RoleMapper maps provider groups to application roles.
// An empty role means the groups grant nothing.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}
