//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
)

const (
	maxDisplayNameLen = 120
	maxEmailLen       = 254
)

// User is a platform account. PasswordHash holds an encoded argon2id hash and is never serialized.
type User struct {
	ID           string          `json:"id"           db:"id"`
	Email        string          `json:"email"        db:"email"`
	DisplayName  string          `json:"display_name" db:"display_name"`
	Role         domainauth.Role `json:"role"         db:"role"`
	PasswordHash string          `json:"-"            db:"password_hash"`
	IsActive     bool            `json:"is_active"    db:"is_active"`
	CreatedAt    time.Time       `json:"created_at"   db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"   db:"updated_at"`
}

// Principal projects the account into the identity exposed by verify.
func (u User) Principal() domainauth.Principal {
	return domainauth.Principal{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		IsActive:    u.IsActive,
		DisplayName: u.DisplayName,
	}
}

// CreateUserRequest contains fields to create a new account.
// PasswordHash must already be encoded by a PasswordHasher.
type CreateUserRequest struct {
	Email        string          `json:"email"`
	DisplayName  string          `json:"display_name"`
	Role         domainauth.Role `json:"role"`
	PasswordHash string          `json:"-"`
	Inactive     bool            `json:"inactive,omitempty"`
}

// Normalize trims fields and lowercases the email in place.
func (r *CreateUserRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
}

func (r *CreateUserRequest) Validate() error {
	email := NormalizeEmail(r.Email)
	if email == "" {
		return errors.New("email is required and cannot be empty")
	}
	if len(email) > maxEmailLen {
		return errors.New("email cannot exceed 254 characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("email must be a valid address")
	}
	if utf8.RuneCountInString(strings.TrimSpace(r.DisplayName)) > maxDisplayNameLen {
		return errors.New("display_name cannot exceed 120 characters")
	}
	if !r.Role.Valid() {
		return errors.New("role must be one of: ADMIN, DOCTOR, PATIENT")
	}
	if r.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// NormalizeEmail is the canonical form used for lookups; uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
