package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
	"github.com/medibook/clinic-gate/internal/service"
)

type fakeAuthService struct {
	sso bool

	loginFn    func(in service.LoginInput) (*service.LoginResult, error)
	verifyFn   func(token string, scope domainauth.Scope) (domainauth.Principal, error)
	logoutErr  error
	completeFn func(in service.CompleteLoginInput) (*service.LoginResult, error)

	logouts []string
}

func (f *fakeAuthService) Login(_ context.Context, in service.LoginInput) (*service.LoginResult, error) {
	return f.loginFn(in)
}

func (f *fakeAuthService) Verify(_ context.Context, token string, scope domainauth.Scope) (domainauth.Principal, error) {
	return f.verifyFn(token, scope)
}

func (f *fakeAuthService) Logout(_ context.Context, token string, scope domainauth.Scope) error {
	f.logouts = append(f.logouts, string(scope)+":"+token)
	return f.logoutErr
}

func (f *fakeAuthService) SSOEnabled() bool { return f.sso }

func (f *fakeAuthService) BeginSSO(_ context.Context, redirectPath string) (*service.BeginLoginResult, error) {
	return &service.BeginLoginResult{
		AuthURL:      "https://idp.test/authorize?state=st-1",
		State:        "st-1",
		Nonce:        "n-1",
		RedirectPath: domainauth.SafeRedirectPath(redirectPath),
	}, nil
}

func (f *fakeAuthService) CompleteSSO(_ context.Context, in service.CompleteLoginInput) (*service.LoginResult, error) {
	return f.completeFn(in)
}

func authRouter(h *AuthHandlers) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", h.Routes)
	return r
}

func jsonBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthHandlers_Login(t *testing.T) {
	svc := &fakeAuthService{loginFn: func(in service.LoginInput) (*service.LoginResult, error) {
		switch {
		case in.Email == "":
			return nil, apperrors.ValidationField("email", "email is required and cannot be empty")
		case in.Password == "down":
			return nil, apperrors.Network(context.DeadlineExceeded, "user store unavailable")
		case in.Password != "pw":
			return nil, apperrors.Unauthorized("invalid credentials")
		}
		p := patient
		if in.Scope == domainauth.ScopeAdmin {
			p = admin
		}
		return &service.LoginResult{Principal: p, Token: "jwt-" + string(in.Scope), ExpiresAt: time.Now().Add(time.Hour)}, nil
	}}
	h := authRouter(&AuthHandlers{Svc: svc})

	tests := []struct {
		name    string
		path    string
		body    string
		status  int
		errCode string
		cookie  string
	}{
		{name: "regular success", path: "/auth/login", body: `{"email":"pat@clinic.test","password":"pw"}`, status: http.StatusOK, cookie: domainauth.CookieRegular},
		{name: "admin success", path: "/auth/admin/login", body: `{"email":"root@clinic.test","password":"pw"}`, status: http.StatusOK, cookie: domainauth.CookieAdmin},
		{name: "malformed json", path: "/auth/login", body: `{`, status: http.StatusBadRequest, errCode: "invalid_request"},
		{name: "validation", path: "/auth/login", body: `{"password":"pw"}`, status: http.StatusBadRequest, errCode: "invalid_request"},
		{name: "wrong password", path: "/auth/login", body: `{"email":"pat@clinic.test","password":"x"}`, status: http.StatusUnauthorized, errCode: "invalid_credentials"},
		{name: "backend down", path: "/auth/login", body: `{"email":"pat@clinic.test","password":"down"}`, status: http.StatusServiceUnavailable, errCode: "service_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			body := jsonBody(t, rec)
			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, body["error"])
				assert.Nil(t, responseCookie(rec, domainauth.CookieRegular))
				return
			}
			user, ok := body["user"].(map[string]any)
			require.True(t, ok)
			assert.NotEmpty(t, user["role"])
			c := responseCookie(rec, tt.cookie)
			require.NotNil(t, c)
			assert.True(t, c.HttpOnly)
			assert.Equal(t, "/", c.Path)
			assert.Positive(t, c.MaxAge)
		})
	}
}

func TestAuthHandlers_Verify(t *testing.T) {
	svc := &fakeAuthService{verifyFn: func(token string, scope domainauth.Scope) (domainauth.Principal, error) {
		switch token {
		case "good":
			if scope == domainauth.ScopeAdmin {
				return admin, nil
			}
			return doctor, nil
		case "flaky":
			return domainauth.Principal{}, apperrors.Wrap(context.DeadlineExceeded, apperrors.ErrCodeTimeout, "session lookup timed out")
		default:
			return domainauth.Principal{}, apperrors.Unauthorized("invalid session")
		}
	}}
	h := authRouter(&AuthHandlers{Svc: svc})

	t.Run("no cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/verify", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "authentication_required", jsonBody(t, rec)["error"])
	})

	t.Run("valid regular session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, "/auth/verify", nil), domainauth.CookieRegular, "good"))
		require.Equal(t, http.StatusOK, rec.Code)
		user := jsonBody(t, rec)["user"].(map[string]any)
		assert.Equal(t, "DOCTOR", user["role"])
		assert.Equal(t, true, user["isActive"])
	})

	t.Run("admin verify reads the admin cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := withCookie(httptest.NewRequest(http.MethodGet, "/auth/admin/verify", nil), domainauth.CookieRegular, "good")
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, "/auth/admin/verify", nil), domainauth.CookieAdmin, "good"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid session clears the cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, "/auth/verify", nil), domainauth.CookieRegular, "stale"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		c := responseCookie(rec, domainauth.CookieRegular)
		require.NotNil(t, c)
		assert.Negative(t, c.MaxAge)
	})

	t.Run("backend failure keeps the cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, "/auth/verify", nil), domainauth.CookieRegular, "flaky"))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Nil(t, responseCookie(rec, domainauth.CookieRegular))
	})
}

func TestAuthHandlers_LogoutIsBestEffort(t *testing.T) {
	svc := &fakeAuthService{logoutErr: apperrors.Network(context.DeadlineExceeded, "store down")}
	h := authRouter(&AuthHandlers{Svc: svc})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodPost, "/auth/admin/logout", nil), domainauth.CookieAdmin, "adm"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", jsonBody(t, rec)["status"])
	c := responseCookie(rec, domainauth.CookieAdmin)
	require.NotNil(t, c)
	assert.Negative(t, c.MaxAge)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"admin:adm"}, svc.logouts)
}

func TestAuthHandlers_SSO(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := authRouter(&AuthHandlers{Svc: &fakeAuthService{}})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/admin/sso/login", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "sso_disabled", jsonBody(t, rec)["error"])
	})

	svc := &fakeAuthService{sso: true, completeFn: func(in service.CompleteLoginInput) (*service.LoginResult, error) {
		if in.Code != "code-1" || in.Nonce != "n-1" {
			return nil, apperrors.Unauthorized("exchange failed")
		}
		return &service.LoginResult{Principal: admin, Token: "adm-jwt", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}}
	h := authRouter(&AuthHandlers{Svc: svc})

	t.Run("login stores state and redirects to the provider", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/admin/sso/login?redirect_uri=%2Fadmin%2Fusers", nil))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://idp.test/authorize?state=st-1", rec.Header().Get("Location"))
		assert.Equal(t, "st-1", responseCookie(rec, oauthStateCookie).Value)
		assert.Equal(t, "n-1", responseCookie(rec, oauthNonceCookie).Value)
		assert.Equal(t, "/admin/users", responseCookie(rec, postLoginCookie).Value)
	})

	callback := func(query string, cookies map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/admin/sso/callback?"+query, nil)
		for k, v := range cookies {
			withCookie(req, k, v)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("state mismatch", func(t *testing.T) {
		rec := callback("code=code-1&state=other", map[string]string{oauthStateCookie: "st-1", oauthNonceCookie: "n-1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_state", jsonBody(t, rec)["error"])
	})

	t.Run("missing code", func(t *testing.T) {
		rec := callback("state=st-1", map[string]string{oauthStateCookie: "st-1", oauthNonceCookie: "n-1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejected exchange", func(t *testing.T) {
		rec := callback("code=bad&state=st-1", map[string]string{oauthStateCookie: "st-1", oauthNonceCookie: "n-1"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, responseCookie(rec, domainauth.CookieAdmin))
	})

	t.Run("success sets the admin session", func(t *testing.T) {
		rec := callback("code=code-1&state=st-1", map[string]string{
			oauthStateCookie: "st-1", oauthNonceCookie: "n-1", postLoginCookie: "/admin/users",
		})
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/admin/users", rec.Header().Get("Location"))
		assert.Equal(t, "adm-jwt", responseCookie(rec, domainauth.CookieAdmin).Value)
		assert.Negative(t, responseCookie(rec, oauthStateCookie).MaxAge)
	})
}

func TestAuthHandlers_LoginRateLimited(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 1}, nil)
	t.Cleanup(limiter.Stop)
	svc := &fakeAuthService{loginFn: func(service.LoginInput) (*service.LoginResult, error) {
		return nil, apperrors.Unauthorized("invalid credentials")
	}}
	h := authRouter(&AuthHandlers{Svc: svc, Limiter: limiter})

	send := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"email":"a@b.test","password":"x"}`)))
		return rec
	}
	assert.Equal(t, http.StatusUnauthorized, send("/auth/login").Code)
	rec := send("/auth/login")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Verify is never limited.
	svc.verifyFn = func(string, domainauth.Scope) (domainauth.Principal, error) { return patient, nil }
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, "/auth/verify", nil), domainauth.CookieRegular, "t"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
