package service

import (
	"context"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
	"github.com/medibook/clinic-gate/internal/ports"
)

// LocalGateway is a ports.SessionGateway that calls AuthService in process,
// for a portal running alongside the auth API.
type LocalGateway struct {
	auth   *AuthService
	scope  domainauth.Scope
	tokens ports.TokenStore
}

var _ ports.SessionGateway = (*LocalGateway)(nil)

// NewLocalGateway binds auth to one scope. tokens supplies and receives the session token.
func NewLocalGateway(auth *AuthService, scope domainauth.Scope, tokens ports.TokenStore) *LocalGateway {
	if scope == "" {
		scope = domainauth.ScopeRegular
	}
	return &LocalGateway{auth: auth, scope: scope, tokens: tokens}
}

func (g *LocalGateway) Verify(ctx context.Context) (domainauth.Principal, error) {
	tok, ok := g.tokens.Read(ctx, domainauth.TokenSession)
	if !ok || tok.Value == "" {
		return domainauth.Principal{}, apperrors.Unauthorized("no session token")
	}
	p, err := g.auth.Verify(ctx, tok.Value, g.scope)
	return p, normalizeGatewayError(err)
}

func (g *LocalGateway) Login(ctx context.Context, creds domainauth.Credentials) (domainauth.Principal, error) {
	res, err := g.auth.Login(ctx, LoginInput{Email: creds.Email, Password: creds.Password, Scope: g.scope})
	if err != nil {
		return domainauth.Principal{}, normalizeGatewayError(err)
	}
	if err := g.tokens.Write(ctx, domainauth.TokenSession, domainauth.Token{Value: res.Token}); err != nil {
		return domainauth.Principal{}, apperrors.Network(err, "could not store session")
	}
	return res.Principal, nil
}

func (g *LocalGateway) Logout(ctx context.Context) error {
	tok, _ := g.tokens.Read(ctx, domainauth.TokenSession)
	return normalizeGatewayError(g.auth.Logout(ctx, tok.Value, g.scope))
}

// normalizeGatewayError keeps the codes a gateway may report and folds the rest into network.
func normalizeGatewayError(err error) error {
	if err == nil {
		return nil
	}
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeUnauthorized, apperrors.ErrCodeValidation, apperrors.ErrCodeForbidden, apperrors.ErrCodeNetwork:
		return err
	default:
		return apperrors.Network(err, "auth backend unavailable")
	}
}
