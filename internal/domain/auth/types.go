// Package auth contains domain-level types for authentication, sessions and route gating.
// It is pure and free of framework/adapter concerns.
package auth

import (
	"net/mail"
	"strings"
	"time"

	apperrors "github.com/medibook/clinic-gate/internal/errors"
)

// Role represents an application's authorization role.
// Values are compared case-sensitively and must match exactly.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	default:
		return false
	}
}

// Scope separates admin-console sessions from regular (patient/doctor) sessions.
// Each scope has its own cookie and local-storage keys.
type Scope string

const (
	ScopeRegular Scope = "regular"
	ScopeAdmin   Scope = "admin"
)

// Cookie names are a wire contract shared with the edge filter.
const (
	CookieRegular = "auth_token"
	CookieAdmin   = "admin_token"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool { return s == ScopeRegular || s == ScopeAdmin }

// CookieName returns the session cookie name for the scope.
func (s Scope) CookieName() string {
	if s == ScopeAdmin {
		return CookieAdmin
	}
	return CookieRegular
}

// LocalUserKey returns the local-storage key holding the mirrored principal.
func (s Scope) LocalUserKey() string {
	if s == ScopeAdmin {
		return "admin_user"
	}
	return "auth_user"
}

// LocalTokenKey returns the local-storage key holding the mirrored token value.
func (s Scope) LocalTokenKey() string {
	if s == ScopeAdmin {
		return "admin_token"
	}
	return "auth_token"
}

// Principal identifies the current actor.
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	IsActive    bool   `json:"isActive"`
	DisplayName string `json:"displayName,omitempty"`
}

// Validate rejects principals that cannot be trusted for gating.
// A missing role is an error; it is never defaulted.
func (p Principal) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return apperrors.ValidationField("id", "principal id is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return apperrors.ValidationField("email", "principal email is required")
	}
	if p.Role == "" {
		return apperrors.ValidationField("role", "principal role is required")
	}
	if !p.Role.Valid() {
		return apperrors.ValidationField("role", "principal role must be one of: ADMIN, DOCTOR, PATIENT")
	}
	return nil
}

// HasRole reports whether the principal holds exactly the given role.
func (p Principal) HasRole(r Role) bool { return p.Role == r }

// Credentials are the login form inputs.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks credential shape before any network round trip.
func (c Credentials) Validate() error {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return apperrors.ValidationField("email", "email is required and cannot be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperrors.ValidationField("email", "email must be a valid address")
	}
	if c.Password == "" {
		return apperrors.ValidationField("password", "password is required and cannot be empty")
	}
	return nil
}

// TokenKind selects one of the two token persistence locations.
type TokenKind int

const (
	// TokenLocal is the client-readable mirror; never authoritative.
	TokenLocal TokenKind = iota
	// TokenSession is the server-issued session credential (HTTP-only cookie).
	TokenSession
)

func (k TokenKind) String() string {
	if k == TokenSession {
		return "session"
	}
	return "local"
}

// Token is what a token store holds for one kind.
// Local tokens carry the mirrored principal; session tokens carry only Value.
type Token struct {
	Value     string     `json:"value,omitempty"`
	Principal *Principal `json:"principal,omitempty"`
}

// Identity represents the authenticated principal returned by an SSO IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    string // stable user identifier (e.g., sub)
	FirstName string
	LastName  string
	Email     string
	Groups    []string
	ExpiresAt time.Time // absolute expiry from IdP token
}

// Session is the server-side record we persist for an authenticated user.
// ID is an opaque session identifier.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name,omitempty"`
	Scope       Scope     `json:"scope"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Principal projects the session into the principal returned by verify.
func (s Session) Principal() Principal {
	return Principal{
		ID:          s.UserID,
		Email:       s.Email,
		Role:        s.Role,
		IsActive:    true,
		DisplayName: s.DisplayName,
	}
}
