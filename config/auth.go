package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SSOMode selects the admin-console single sign-on provider.
type SSOMode string

const (
	// SSOModeOff disables admin SSO; admins sign in with a password.
	SSOModeOff SSOMode = "off"
	// SSOModeOAuth uses OAuth/OIDC for admin SSO.
	SSOModeOAuth SSOMode = "oauth"
	// SSOModeMock uses a fixed dev identity (for development only).
	SSOModeMock SSOMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for SSOMode.
func (m *SSOMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "off", "oauth", "mock":
		*m = SSOMode(v)
		return nil
	case "":
		*m = SSOModeOff
		return nil
	default:
		return fmt.Errorf("invalid SSOMode: %q (valid options: off, oauth, mock)", v)
	}
}

const minJWTSecretLen = 32

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/admin/sso/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevAuthConfig controls the mock SSO identity.
// Used when AUTH_SSO_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID    string   `env:"USER_ID"    envDefault:"dev-admin"`
	Email     string   `env:"EMAIL"      envDefault:"admin@clinic.test"`
	FirstName string   `env:"FIRST_NAME" envDefault:"Dev"`
	LastName  string   `env:"LAST_NAME"  envDefault:"Admin"`
	Groups    []string `env:"GROUPS"     envDefault:"clinic-admins" envSeparator:";"`
}

// Argon2Config holds the argon2id cost parameters for password hashes.
type Argon2Config struct {
	MemoryKB    uint32 `env:"MEMORY_KB"   envDefault:"65536"`
	Time        uint32 `env:"TIME"        envDefault:"3"`
	Parallelism uint8  `env:"PARALLELISM" envDefault:"4"`
}

// Sanitize clamps argon2 parameters to values the hasher accepts.
func (a *Argon2Config) Sanitize() {
	if a.MemoryKB < 8*1024 {
		a.MemoryKB = 8 * 1024
	}
	if a.Time < 1 {
		a.Time = 1
	}
	if a.Parallelism < 1 {
		a.Parallelism = 1
	}
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// SessionTTL is the lifetime of a server session and its token.
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"12h"`

	// JWTSecret signs session tokens. At least 32 bytes.
	JWTSecret string `env:"AUTH_JWT_SECRET"`
	JWTIssuer string `env:"AUTH_JWT_ISSUER" envDefault:"clinic-gate"`

	Argon2 Argon2Config `envPrefix:"AUTH_ARGON2_"`

	// SSOMode determines which admin SSO provider to use.
	SSOMode SSOMode `env:"AUTH_SSO_MODE" envDefault:"off"`

	// OAuth configuration (used when SSOMode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when SSOMode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// AdminGroup, when set, additionally requires SSO identities to carry this group.
	AdminGroup string `env:"AUTH_SSO_ADMIN_GROUP"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.SessionTTL < 5*time.Minute {
		a.SessionTTL = 5 * time.Minute
	}
	if a.SessionTTL > 30*24*time.Hour {
		a.SessionTTL = 30 * 24 * time.Hour
	}
	if a.SSOMode == "" {
		a.SSOMode = SSOModeOff
	}
	a.JWTIssuer = strings.TrimSpace(a.JWTIssuer)
	a.AdminGroup = strings.TrimSpace(a.AdminGroup)
	a.Argon2.Sanitize()
}

// Validate checks settings required to issue sessions.
func (a *AuthConfig) Validate(isDev bool) error {
	var errs []error
	if len(a.JWTSecret) < minJWTSecretLen {
		errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes", minJWTSecretLen))
	}
	if a.JWTIssuer == "" {
		errs = append(errs, errors.New("AUTH_JWT_ISSUER is required"))
	}
	switch a.SSOMode {
	case SSOModeMock:
		if !isDev {
			errs = append(errs, errors.New("AUTH_SSO_MODE=mock is only allowed in development"))
		}
	case SSOModeOAuth:
		if a.OAuth.DiscoveryURL == "" || a.OAuth.ClientID == "" || a.OAuth.ClientSecret == "" {
			errs = append(errs, errors.New("AUTH_SSO_MODE=oauth requires OAUTH_DISCOVERY_URL, OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET"))
		}
	}
	return errors.Join(errs...)
}
