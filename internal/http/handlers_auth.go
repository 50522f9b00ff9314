package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medibook/clinic-gate/internal/adapters/cookiestore"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
	obserrors "github.com/medibook/clinic-gate/internal/observability/errors"
	"github.com/medibook/clinic-gate/internal/service"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthNonceCookie    = "oauth_nonce"
	postLoginCookie     = "post_login_redirect"
	oauthCookieLifetime = 10 * time.Minute
	defaultAdminLanding = "/admin"
)

// AuthServiceInterface defines the auth operations the API exposes.
type AuthServiceInterface interface {
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	Verify(ctx context.Context, token string, scope domainauth.Scope) (domainauth.Principal, error)
	Logout(ctx context.Context, token string, scope domainauth.Scope) error
	SSOEnabled() bool
	BeginSSO(ctx context.Context, redirectPath string) (*service.BeginLoginResult, error)
	CompleteSSO(ctx context.Context, in service.CompleteLoginInput) (*service.LoginResult, error)
}

// AuthHandlers provides HTTP handlers for the login, verify and logout
// endpoints of both scopes, plus admin SSO.
type AuthHandlers struct {
	Svc     AuthServiceInterface
	Cookies cookiestore.Policy
	// Limiter bounds login attempts per client IP. Nil disables limiting.
	Limiter *RateLimiter
	Logger  *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Routes registers the endpoints under the router it is mounted on (normally /auth).
func (h *AuthHandlers) Routes(r chi.Router) {
	h.scopeRoutes(r, domainauth.ScopeRegular)
	r.Route("/admin", func(r chi.Router) {
		h.scopeRoutes(r, domainauth.ScopeAdmin)
		r.Get("/sso/login", h.SSOLogin)
		r.Get("/sso/callback", h.SSOCallback)
	})
}

func (h *AuthHandlers) scopeRoutes(r chi.Router, scope domainauth.Scope) {
	r.With(h.Limiter.Middleware(string(scope) + "_login")).Post("/login", h.Login(scope))
	r.Get("/verify", h.Verify(scope))
	r.Post("/logout", h.Logout(scope))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User domainauth.Principal `json:"user"`
}

// Login handles POST /auth/login and POST /auth/admin/login.
func (h *AuthHandlers) Login(scope domainauth.Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		res, err := h.Svc.Login(r.Context(), service.LoginInput{Email: req.Email, Password: req.Password, Scope: scope})
		switch {
		case err == nil:
		case apperrors.IsValidation(err):
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_request", Err: err})
			return
		case apperrors.IsUnauthorized(err):
			WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "invalid_credentials", Err: errors.New("invalid email or password")})
			return
		default:
			h.logger().ErrorContext(r.Context(), "login failed", "scope", string(scope), "error", err, "error_class", obserrors.Classify(err))
			WriteAppError(w, err)
			return
		}

		h.Cookies.Set(w, r, scope.CookieName(), res.Token, time.Until(res.ExpiresAt))
		WriteJSON(w, http.StatusOK, userResponse{User: res.Principal})
	}
}

// Verify handles GET /auth/verify and GET /auth/admin/verify.
func (h *AuthHandlers) Verify(scope domainauth.Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(scope.CookieName())
		if err != nil || c.Value == "" {
			WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: errors.New("authentication required")})
			return
		}
		p, err := h.Svc.Verify(r.Context(), c.Value, scope)
		if err != nil {
			if apperrors.IsUnauthorized(err) {
				h.Cookies.Clear(w, r, scope.CookieName())
				WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: errors.New("authentication required")})
				return
			}
			h.logger().ErrorContext(r.Context(), "verify failed", "scope", string(scope), "error", err, "error_class", obserrors.Classify(err))
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, userResponse{User: p})
	}
}

// Logout handles POST /auth/logout and POST /auth/admin/logout. The cookie is
// always cleared and the response is always 200.
func (h *AuthHandlers) Logout(scope domainauth.Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(scope.CookieName()); err == nil && c.Value != "" {
			if logoutErr := h.Svc.Logout(r.Context(), c.Value, scope); logoutErr != nil {
				h.logger().WarnContext(r.Context(), "logout failed", "scope", string(scope), "error", logoutErr)
			}
		}
		h.Cookies.Clear(w, r, scope.CookieName())
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// SSOLogin starts admin SSO.
// GET /auth/admin/sso/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) SSOLogin(w http.ResponseWriter, r *http.Request) {
	if !h.Svc.SSOEnabled() {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "sso_disabled", Err: errors.New("single sign-on is not enabled")})
		return
	}
	result, err := h.Svc.BeginSSO(r.Context(), r.URL.Query().Get("redirect_uri"))
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin sso failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_failed", Err: errors.New("could not start single sign-on")})
		return
	}

	h.Cookies.Set(w, r, oauthStateCookie, result.State, oauthCookieLifetime)
	h.Cookies.Set(w, r, oauthNonceCookie, result.Nonce, oauthCookieLifetime)
	h.Cookies.Set(w, r, postLoginCookie, result.RedirectPath, oauthCookieLifetime)

	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// SSOCallback completes admin SSO.
// GET /auth/admin/sso/callback?code=<code>&state=<state>.
func (h *AuthHandlers) SSOCallback(w http.ResponseWriter, r *http.Request) {
	if !h.Svc.SSOEnabled() {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "sso_disabled", Err: errors.New("single sign-on is not enabled")})
		return
	}
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_code", Err: errors.New("authorization code is required")})
		return
	}
	stateCookie, err := r.Cookie(oauthStateCookie)
	if state == "" || err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_state", Err: errors.New("invalid or missing state parameter")})
		return
	}
	nonceCookie, err := r.Cookie(oauthNonceCookie)
	if err != nil || nonceCookie.Value == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_nonce", Err: errors.New("missing nonce parameter")})
		return
	}

	res, err := h.Svc.CompleteSSO(r.Context(), service.CompleteLoginInput{Code: code, State: state, Nonce: nonceCookie.Value})
	h.Cookies.Clear(w, r, oauthStateCookie)
	h.Cookies.Clear(w, r, oauthNonceCookie)
	if err != nil {
		if apperrors.IsUnauthorized(err) || apperrors.IsValidation(err) {
			WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "invalid_credentials", Err: errors.New("single sign-on was rejected")})
			return
		}
		h.logger().ErrorContext(r.Context(), "complete sso failed", "error", err, "error_class", obserrors.Classify(err))
		WriteAppError(w, err)
		return
	}

	h.Cookies.Set(w, r, domainauth.CookieAdmin, res.Token, time.Until(res.ExpiresAt))
	http.Redirect(w, r, h.postLoginRedirect(w, r), http.StatusFound)
}

// postLoginRedirect reads and clears the stored post-login destination.
func (h *AuthHandlers) postLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	target := defaultAdminLanding
	if c, err := r.Cookie(postLoginCookie); err == nil {
		if p := domainauth.SafeRedirectPath(c.Value); p != "/" {
			target = p
		}
	}
	h.Cookies.Clear(w, r, postLoginCookie)
	return target
}
