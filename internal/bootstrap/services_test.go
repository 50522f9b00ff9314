package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/clinic-gate/config"
	"github.com/medibook/clinic-gate/internal/adapters/password"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	mockauth "github.com/medibook/clinic-gate/internal/mocks/auth"
	"github.com/medibook/clinic-gate/internal/observability/metrics"
	"github.com/medibook/clinic-gate/internal/service"
	"github.com/medibook/clinic-gate/internal/testutil"
)

func TestGetEnabledServices(t *testing.T) {
	tests := []struct {
		name     string
		services string
		want     []string
	}{
		{name: "both", services: "portal,api", want: []string{"api", "portal"}},
		{name: "portal only", services: "portal", want: []string{"portal"}},
		{name: "invalid", services: "scheduler", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.AppConfig{Services: tt.services}
			assert.Equal(t, tt.want, GetEnabledServices(cfg))
		})
	}
	assert.Empty(t, GetEnabledServices(nil))
}

func TestValidateServiceConfig(t *testing.T) {
	require.Error(t, ValidateServiceConfig(nil))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: "bogus"}))
	require.NoError(t, ValidateServiceConfig(&config.AppConfig{Services: "api"}))
}

func TestEdgeRulesFromConfig(t *testing.T) {
	p := config.PortalConfig{
		AdminArea:      "/console",
		AdminLoginPath: "/console/login",
		ProtectedAreas: []string{"/home"},
		LoginPath:      "/signin",
		RegisterPath:   "/signup",
		HomePath:       "/home",
	}
	rules := EdgeRules(p)
	target, _ := rules.Evaluate("/console/users", false, true)
	assert.Equal(t, "/console/login", target)
	target, _ = rules.Evaluate("/signin", false, true)
	assert.Equal(t, "/home", target)
}

func TestNewLoginLimiter(t *testing.T) {
	assert.Nil(t, NewLoginLimiter(config.RateLimitConfig{Enabled: false}, nil))
	rl := NewLoginLimiter(config.RateLimitConfig{Enabled: true, LoginPerMinute: 60, Burst: 2, IdleTTL: time.Minute}, nil)
	require.NotNil(t, rl)
	t.Cleanup(rl.Stop)
	assert.True(t, rl.Allow("ip"))
	assert.True(t, rl.Allow("ip"))
	assert.False(t, rl.Allow("ip"))
}

func TestShutdownHTTPServer_NilServer(t *testing.T) {
	require.NoError(t, ShutdownHTTPServer(ShutdownConfig{}))
}

func fullStackConfig() *config.AppConfig {
	return &config.AppConfig{
		Services: "api,portal",
		Auth:     testAuthConfig(),
		Portal: config.PortalConfig{
			VerifyTimeout:  2 * time.Second,
			LocalCopyTTL:   time.Hour,
			AdminArea:      "/admin",
			AdminLoginPath: "/admin/login",
			ProtectedAreas: []string{"/dashboard", "/appointments", "/consultations"},
			LoginPath:      "/login",
			RegisterPath:   "/register",
			HomePath:       "/dashboard",
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func TestBuildHTTPHandler_FullStack(t *testing.T) {
	ctx := context.Background()
	_, client := testutil.SetupTestRedis(t)
	cfg := fullStackConfig()

	users := mockauth.NewMemoryUserRepo()
	hasher, err := password.NewArgon2Hasher(argon2Params(cfg.Auth.Argon2))
	require.NoError(t, err)
	_, err = service.NewUserService(service.UserServiceOptions{Repo: users, Hasher: hasher}).Create(ctx, service.CreateUserInput{
		Email: "pat@clinic.test", DisplayName: "Pat", Role: domainauth.RolePatient, Password: "correct horse battery",
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	auth, err := BuildAuthService(ctx, AuthConfig{
		Auth: cfg.Auth, RedisClient: client, Users: users, Observer: collector, Logger: quietLogger(),
	})
	require.NoError(t, err)

	h, err := BuildHTTPHandler(cfg, ServiceContainer{Auth: auth, Redis: client, Metrics: collector, Registry: reg}, quietLogger())
	require.NoError(t, err)

	// API login issues the regular session cookie.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"pat@clinic.test","password":"correct horse battery"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		User domainauth.Principal `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domainauth.RolePatient, body.User.Role)
	var token string
	for _, c := range rec.Result().Cookies() {
		if c.Name == domainauth.CookieRegular {
			token = c.Value
		}
	}
	require.NotEmpty(t, token)

	// The portal verifies that cookie in process.
	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.AddCookie(&http.Cookie{Name: domainauth.CookieRegular, Value: token})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Pat (PATIENT)")

	// The same regular token is no good for the admin scope.
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: domainauth.CookieAdmin, Value: token})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/admin/login"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinicgate_")
}

func TestBuildHTTPHandler_APIRequiresAuth(t *testing.T) {
	_, err := BuildHTTPHandler(&config.AppConfig{Services: "api"}, ServiceContainer{}, quietLogger())
	require.Error(t, err)
}

func TestBuildHTTPHandler_PortalOnly(t *testing.T) {
	cfg := fullStackConfig()
	cfg.Services = "portal"
	cfg.Portal.APIBaseURL = "http://127.0.0.1:1"
	h, err := BuildHTTPHandler(cfg, ServiceContainer{}, quietLogger())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
