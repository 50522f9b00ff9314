package auth

import (
	"context"
	"testing"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/domain/model"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
	"github.com/medibook/clinic-gate/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAuthProvider_BeginIsDeterministic(t *testing.T) {
	provider := NewMockAuthProvider()
	ctx := context.Background()

	authURL, state, nonce, err := provider.Begin(ctx, ports.BeginInput{RedirectURL: "http://localhost/cb"})
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", authURL)
	assert.Equal(t, "state-1", state)
	assert.Equal(t, "nonce-1", nonce)

	_, state2, nonce2, err := provider.Begin(ctx, ports.BeginInput{})
	require.NoError(t, err)
	assert.Equal(t, "state-2", state2)
	assert.Equal(t, "nonce-2", nonce2)
}

func TestMockAuthProvider_ExchangeRefreshesExpiry(t *testing.T) {
	id, err := NewMockAuthProvider().Exchange(context.Background(), ports.ExchangeInput{})
	require.NoError(t, err)
	assert.Equal(t, "mock.admin@clinic.test", id.Email)
	assert.False(t, id.ExpiresAt.IsZero())
}

func TestMemoryTokenStore(t *testing.T) {
	s := NewMemoryTokenStore()
	ctx := context.Background()
	p := domainauth.Principal{ID: "u", Email: "u@clinic.test", Role: domainauth.RoleDoctor}

	require.NoError(t, s.Write(ctx, domainauth.TokenLocal, domainauth.Token{Principal: &p}))
	p.Role = domainauth.RoleAdmin
	tok, ok := s.Read(ctx, domainauth.TokenLocal)
	require.True(t, ok)
	assert.Equal(t, domainauth.RoleDoctor, tok.Principal.Role, "store must copy principals")

	s.Unavailable = true
	_, ok = s.Read(ctx, domainauth.TokenLocal)
	assert.False(t, ok)
	assert.True(t, s.Has(domainauth.TokenLocal))
}

func TestScriptedGateway_LoginStoresIssuedToken(t *testing.T) {
	tokens := NewMemoryTokenStore()
	g := &ScriptedGateway{
		Tokens:      tokens,
		IssuedToken: "jwt",
		LoginFunc: func(context.Context, domainauth.Credentials) (domainauth.Principal, error) {
			return domainauth.Principal{ID: "u"}, nil
		},
	}
	_, err := g.Login(context.Background(), domainauth.Credentials{})
	require.NoError(t, err)
	tok, ok := tokens.Read(context.Background(), domainauth.TokenSession)
	require.True(t, ok)
	assert.Equal(t, "jwt", tok.Value)
	assert.Equal(t, 1, g.LoginCalls())

	_, err = g.Verify(context.Background())
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestMemoryUserRepo(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	req := model.CreateUserRequest{Email: "Doc@Clinic.test", Role: domainauth.RoleDoctor, PasswordHash: "h"}

	u, err := repo.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, u.IsActive)

	_, err = repo.Create(ctx, req)
	assert.True(t, apperrors.IsConflict(err))

	got, err := repo.GetByEmail(ctx, "doc@clinic.TEST")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, repo.SetActive(ctx, u.ID, false))
	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.True(t, apperrors.IsNotFound(repo.SetActive(ctx, "nope", true)))
}
