package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/clinic-gate/config"
	mockauth "github.com/medibook/clinic-gate/internal/mocks/auth"
	"github.com/medibook/clinic-gate/internal/testutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		SessionTTL: time.Hour,
		JWTSecret:  testSecret,
		JWTIssuer:  "clinic-gate-test",
		Argon2:     config.Argon2Config{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1},
		SSOMode:    config.SSOModeOff,
		DevAuth: config.DevAuthConfig{
			UserID: "dev-admin",
			Email:  "admin@clinic.test",
			Groups: []string{"clinic-admins"},
		},
	}
}

func TestBuildAuthService_RequiresRedis(t *testing.T) {
	_, err := BuildAuthService(context.Background(), AuthConfig{
		Auth:   testAuthConfig(),
		Users:  mockauth.NewMemoryUserRepo(),
		Logger: quietLogger(),
	})
	require.Error(t, err)
}

func TestBuildAuthService_RequiresUserStore(t *testing.T) {
	_, client := testutil.SetupTestRedis(t)
	_, err := BuildAuthService(context.Background(), AuthConfig{
		Auth:        testAuthConfig(),
		RedisClient: client,
		Logger:      quietLogger(),
	})
	require.Error(t, err)
}

func TestBuildAuthService_RejectsShortSecret(t *testing.T) {
	_, client := testutil.SetupTestRedis(t)
	auth := testAuthConfig()
	auth.JWTSecret = "short"
	_, err := BuildAuthService(context.Background(), AuthConfig{
		Auth:        auth,
		RedisClient: client,
		Users:       mockauth.NewMemoryUserRepo(),
		Logger:      quietLogger(),
	})
	require.ErrorContains(t, err, "session token issuer")
}

func TestBuildAuthService_SSOModes(t *testing.T) {
	discovery := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(discovery.Close)

	tests := []struct {
		name    string
		mutate  func(*config.AuthConfig)
		wantSSO bool
	}{
		{name: "off", mutate: func(*config.AuthConfig) {}, wantSSO: false},
		{name: "mock", mutate: func(a *config.AuthConfig) { a.SSOMode = config.SSOModeMock }, wantSSO: true},
		{
			name: "oauth with failing discovery keeps password login",
			mutate: func(a *config.AuthConfig) {
				a.SSOMode = config.SSOModeOAuth
				a.OAuth = config.OAuthConfig{
					ClientID:     "client",
					ClientSecret: "secret",
					RedirectURL:  "http://localhost:8080/auth/admin/sso/callback",
					Scope:        "openid email",
					DiscoveryURL: discovery.URL,
				}
			},
			wantSSO: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := testutil.SetupTestRedis(t)
			auth := testAuthConfig()
			tt.mutate(&auth)
			svc, err := BuildAuthService(context.Background(), AuthConfig{
				Auth:        auth,
				RedisClient: client,
				Users:       mockauth.NewMemoryUserRepo(),
				HTTPClient:  discovery.Client(),
				Logger:      quietLogger(),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantSSO, svc.SSOEnabled())
		})
	}
}

func TestLocalGateways_RequireAuthService(t *testing.T) {
	_, err := LocalGateways(nil)("regular", mockauth.NewMemoryTokenStore())
	require.Error(t, err)
}

func TestRemoteGateways_ValidateBaseURL(t *testing.T) {
	_, err := RemoteGateways(RemoteGatewayConfig{BaseURL: "not a url"})("regular", mockauth.NewMemoryTokenStore())
	require.Error(t, err)

	gw, err := RemoteGateways(RemoteGatewayConfig{BaseURL: "http://127.0.0.1:1"})("admin", mockauth.NewMemoryTokenStore())
	require.NoError(t, err)
	assert.NotNil(t, gw)
}
