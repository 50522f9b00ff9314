package httpx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medibook/clinic-gate/internal/adapters/cookiestore"
	redisadapter "github.com/medibook/clinic-gate/internal/adapters/redis"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/ports"
	"github.com/medibook/clinic-gate/internal/service"
)

// GatewayFunc builds the session gateway for one scope over a request's token store.
type GatewayFunc func(scope domainauth.Scope, tokens ports.TokenStore) (ports.SessionGateway, error)

// MachineFactory builds a request-scoped session machine.
type MachineFactory interface {
	Machine(w http.ResponseWriter, r *http.Request, scope domainauth.Scope) (*service.SessionMachine, error)
}

// SessionFactory binds a session machine to one request: the session token
// lives in the scope's cookie and the local copy in Redis, namespaced by a
// hash of that cookie. Without Redis there is no local copy, so a network
// failure leaves the request unauthenticated with the cookie kept.
type SessionFactory struct {
	Gateway       GatewayFunc
	Redis         redis.UniversalClient
	Cookies       cookiestore.Policy
	CookieMaxAge  time.Duration
	LocalTTL      time.Duration
	VerifyTimeout time.Duration
	Observer      service.MachineObserver
	Logger        *slog.Logger
}

var _ MachineFactory = (*SessionFactory)(nil)

func (f *SessionFactory) Machine(w http.ResponseWriter, r *http.Request, scope domainauth.Scope) (*service.SessionMachine, error) {
	if f == nil || f.Gateway == nil {
		return nil, errors.New("session factory has no gateway")
	}
	opts := cookiestore.Options{Scope: scope, Policy: f.Cookies, MaxAge: f.CookieMaxAge}
	var local *cookieScopedLocal
	if f.Redis != nil {
		local = &cookieScopedLocal{factory: f, scope: scope}
		if c, err := r.Cookie(scope.CookieName()); err == nil {
			local.initial = c.Value
		}
		opts.Local = local
	}
	tokens := cookiestore.New(w, r, opts)
	if local != nil {
		local.session = tokens
	}

	gw, err := f.Gateway(scope, tokens)
	if err != nil {
		return nil, err
	}
	return service.NewSessionMachine(service.SessionMachineOptions{
		Gateway:       gw,
		Tokens:        tokens,
		Scope:         scope,
		VerifyTimeout: f.VerifyTimeout,
		Logger:        f.Logger,
		Observer:      f.Observer,
	}), nil
}

// cookieScopedLocal resolves the Redis namespace from the current session
// cookie on every call, so a login within the request moves the local copy
// to the new session. Clearing after the cookie is gone still reaches the
// copy of the cookie the request arrived with.
type cookieScopedLocal struct {
	factory *SessionFactory
	scope   domainauth.Scope
	session ports.TokenStore
	initial string

	mu   sync.Mutex
	last string
}

func (l *cookieScopedLocal) store(ctx context.Context) *redisadapter.TokenStore {
	value := ""
	if tok, ok := l.session.Read(ctx, domainauth.TokenSession); ok {
		value = tok.Value
	}
	l.mu.Lock()
	if value != "" {
		l.last = value
	} else if l.last != "" {
		value = l.last
	} else {
		value = l.initial
	}
	l.mu.Unlock()
	if value == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(value))
	return redisadapter.NewTokenStore(l.factory.Redis, redisadapter.TokenStoreOptions{
		Namespace: hex.EncodeToString(sum[:16]),
		Scope:     l.scope,
		TTL:       l.factory.LocalTTL,
		Logger:    l.factory.Logger,
	})
}

func (l *cookieScopedLocal) Read(ctx context.Context, kind domainauth.TokenKind) (domainauth.Token, bool) {
	s := l.store(ctx)
	if s == nil {
		return domainauth.Token{}, false
	}
	return s.Read(ctx, kind)
}

func (l *cookieScopedLocal) Write(ctx context.Context, kind domainauth.TokenKind, tok domainauth.Token) error {
	s := l.store(ctx)
	if s == nil {
		return nil
	}
	return s.Write(ctx, kind, tok)
}

func (l *cookieScopedLocal) Clear(ctx context.Context, kind domainauth.TokenKind) error {
	s := l.store(ctx)
	if s == nil {
		return nil
	}
	return s.Clear(ctx, kind)
}

// DecisionObserver counts guard decisions.
type DecisionObserver interface {
	ObserveDecision(kind domainauth.DecisionKind)
}

// GuardViews renders the non-redirect outcomes for pages.
type GuardViews interface {
	Forbidden(w http.ResponseWriter, r *http.Request, p *domainauth.Principal)
	Loading(w http.ResponseWriter, r *http.Request)
	Unavailable(w http.ResponseWriter, r *http.Request)
}

// sessionRetryAfter is the Retry-After value, in seconds, for pending or
// unreachable session verification.
const sessionRetryAfter = "1"

// GuardConfig configures RouteGuard.
type GuardConfig struct {
	Sessions MachineFactory
	Scope    domainauth.Scope
	// Route carries the required role and login path; RequestedPath is filled per request.
	Route    domainauth.Route
	Views    GuardViews
	Observer DecisionObserver
	Logger   *slog.Logger
}

// RouteGuard verifies the session for each request and applies the route
// decision: Allow runs next with the auth state in the context, Redirect
// sends a 303 to the login page, Forbidden renders a 403 view in place, and
// ShowLoading renders a placeholder. A redirect caused by an unreachable
// backend becomes a 503 retry view instead: the session cookie is still
// present, so the edge filter would bounce the login page straight back.
// JSON callers get 401/403/503 bodies instead.
func RouteGuard(cfg GuardConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m, err := cfg.Sessions.Machine(w, r, cfg.Scope)
			if err != nil {
				logger.ErrorContext(r.Context(), "route guard: build session machine", "error", err)
				WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal_error", Err: errors.New("internal server error")})
				return
			}
			defer m.Close()

			// The verification writes cookies through w, so it must finish
			// before the handler returns; the verify timeout bounds the wait.
			st := m.Bootstrap(context.WithoutCancel(r.Context()))

			route := cfg.Route
			route.RequestedPath = r.URL.RequestURI()
			d := domainauth.Decide(st, route)
			if cfg.Observer != nil {
				cfg.Observer.ObserveDecision(d.Kind)
			}

			switch d.Kind {
			case domainauth.DecisionAllow:
				next.ServeHTTP(w, r.WithContext(SetAuthStateInContext(r.Context(), st)))
			case domainauth.DecisionForbidden:
				if isAPIRequest(r) || cfg.Views == nil {
					WriteError(w, ErrorParams{Code: http.StatusForbidden, ErrCode: "insufficient_permissions", Err: errors.New("insufficient permissions")})
					return
				}
				cfg.Views.Forbidden(w, r, d.Principal)
			case domainauth.DecisionShowLoading:
				if isAPIRequest(r) || cfg.Views == nil {
					w.Header().Set("Retry-After", sessionRetryAfter)
					WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "verification_pending", Err: errors.New("session verification in progress")})
					return
				}
				cfg.Views.Loading(w, r)
			default:
				if st.Reason == domainauth.ReasonNetwork {
					if isAPIRequest(r) || cfg.Views == nil {
						w.Header().Set("Retry-After", sessionRetryAfter)
						WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "service_unavailable", Err: errors.New("session could not be verified, retry shortly")})
						return
					}
					cfg.Views.Unavailable(w, r)
					return
				}
				if isAPIRequest(r) {
					WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: errors.New("authentication required")})
					return
				}
				http.Redirect(w, r, d.Target, http.StatusSeeOther)
			}
		})
	}
}
