package redis

import (
	"context"
	"testing"
	"time"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var doctor = domainauth.Principal{ID: "d1", Email: "doc@clinic.test", Role: domainauth.RoleDoctor, IsActive: true}

func TestTokenStore_LocalRoundTrip(t *testing.T) {
	mr, client := testutil.SetupTestRedis(t)
	store := NewTokenStore(client, TokenStoreOptions{Namespace: "abc", TTL: time.Hour})
	ctx := context.Background()

	_, ok := store.Read(ctx, domainauth.TokenLocal)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, domainauth.TokenLocal, domainauth.Token{Value: "jwt-1", Principal: &doctor}))

	tok, ok := store.Read(ctx, domainauth.TokenLocal)
	require.True(t, ok)
	assert.Equal(t, "jwt-1", tok.Value)
	assert.Equal(t, doctor, *tok.Principal)

	assert.True(t, mr.Exists("clinicgate:tokens:abc:auth_user"))
	assert.True(t, mr.Exists("clinicgate:tokens:abc:auth_token"))

	require.NoError(t, store.Clear(ctx, domainauth.TokenLocal))
	_, ok = store.Read(ctx, domainauth.TokenLocal)
	assert.False(t, ok)
}

func TestTokenStore_AdminScopeKeys(t *testing.T) {
	mr, client := testutil.SetupTestRedis(t)
	store := NewTokenStore(client, TokenStoreOptions{Namespace: "n", Scope: domainauth.ScopeAdmin})
	admin := domainauth.Principal{ID: "a1", Email: "root@clinic.test", Role: domainauth.RoleAdmin}

	require.NoError(t, store.Write(context.Background(), domainauth.TokenLocal, domainauth.Token{Principal: &admin}))
	assert.True(t, mr.Exists("clinicgate:tokens:n:admin_user"))
	assert.False(t, mr.Exists("clinicgate:tokens:n:admin_token"))
}

func TestTokenStore_SessionKind(t *testing.T) {
	_, client := testutil.SetupTestRedis(t)
	store := NewTokenStore(client, TokenStoreOptions{Namespace: "s"})
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, domainauth.TokenSession, domainauth.Token{Value: "cookie-value"}))
	tok, ok := store.Read(ctx, domainauth.TokenSession)
	require.True(t, ok)
	assert.Equal(t, "cookie-value", tok.Value)
	assert.Nil(t, tok.Principal)

	// Clearing the session kind leaves no trace; clearing local does not touch it.
	require.NoError(t, store.Clear(ctx, domainauth.TokenLocal))
	_, ok = store.Read(ctx, domainauth.TokenSession)
	assert.True(t, ok)
	require.NoError(t, store.Clear(ctx, domainauth.TokenSession))
	_, ok = store.Read(ctx, domainauth.TokenSession)
	assert.False(t, ok)
}

func TestTokenStore_MalformedLocalCopyIsAbsent(t *testing.T) {
	mr, client := testutil.SetupTestRedis(t)
	store := NewTokenStore(client, TokenStoreOptions{Namespace: "m"})

	cases := map[string]string{
		"bad json":     "{not json",
		"missing role": `{"id":"u1","email":"a@clinic.test"}`,
		"unknown role": `{"id":"u1","email":"a@clinic.test","role":"SUPERUSER"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, mr.Set("clinicgate:tokens:m:auth_user", raw))
			_, ok := store.Read(context.Background(), domainauth.TokenLocal)
			assert.False(t, ok)
		})
	}
}

func TestTokenStore_UnreachableRedisDegrades(t *testing.T) {
	mr, client := testutil.SetupTestRedis(t)
	store := NewTokenStore(client, TokenStoreOptions{Namespace: "x"})
	mr.Close()

	_, ok := store.Read(context.Background(), domainauth.TokenLocal)
	assert.False(t, ok)
	_, ok = store.Read(context.Background(), domainauth.TokenSession)
	assert.False(t, ok)
}

func TestTokenStore_LocalWriteRequiresPrincipal(t *testing.T) {
	_, client := testutil.SetupTestRedis(t)
	store := NewTokenStore(client, TokenStoreOptions{Namespace: "x"})
	assert.Error(t, store.Write(context.Background(), domainauth.TokenLocal, domainauth.Token{Value: "v"}))
}
