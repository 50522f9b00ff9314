// Package sessiontoken signs and parses the session credential carried in the
// auth_token and admin_token cookies.
package sessiontoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
	"github.com/medibook/clinic-gate/internal/ports"
)

const minSecretLen = 32

// Config configures an Issuer.
type Config struct {
	Secret []byte
	Issuer string
	Leeway time.Duration
	Now    func() time.Time
}

type claims struct {
	SessionID string           `json:"sid"`
	Role      domainauth.Role  `json:"role"`
	Scope     domainauth.Scope `json:"scope"`
	jwt.RegisteredClaims
}

// Issuer implements ports.TokenIssuer with HS256 JWTs.
type Issuer struct {
	cfg    Config
	parser *jwt.Parser
}

// NewIssuer validates cfg and builds an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) < minSecretLen {
		return nil, fmt.Errorf("session token secret must be at least %d bytes", minSecretLen)
	}
	if cfg.Issuer == "" {
		return nil, errors.New("session token issuer is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	return &Issuer{cfg: cfg, parser: jwt.NewParser(opts...)}, nil
}

// Issue signs a token for sess. The token expires with the session.
func (i *Issuer) Issue(sess domainauth.Session) (string, error) {
	if sess.ID == "" || sess.UserID == "" {
		return "", errors.New("session id and user id are required")
	}
	c := claims{
		SessionID: sess.ID,
		Role:      sess.Role,
		Scope:     sess.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(i.cfg.Now()),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse validates token and requires it to belong to scope. Every rejection is unauthorized.
func (i *Issuer) Parse(token string, scope domainauth.Scope) (ports.SessionClaims, error) {
	if token == "" {
		return ports.SessionClaims{}, apperrors.Unauthorized("session token missing")
	}
	var c claims
	_, err := i.parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return i.cfg.Secret, nil
	})
	if err != nil {
		return ports.SessionClaims{}, &apperrors.AppError{
			Code:    apperrors.ErrCodeUnauthorized,
			Message: "session token invalid",
			Cause:   err,
		}
	}
	if c.Scope != scope {
		return ports.SessionClaims{}, apperrors.Unauthorized("session token scope mismatch")
	}
	if c.SessionID == "" || c.Subject == "" {
		return ports.SessionClaims{}, apperrors.Unauthorized("session token incomplete")
	}
	return ports.SessionClaims{
		SessionID: c.SessionID,
		UserID:    c.Subject,
		Role:      c.Role,
		Scope:     c.Scope,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
