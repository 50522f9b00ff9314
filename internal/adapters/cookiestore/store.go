package cookiestore

import (
	"context"
	"net/http"
	"sync"
	"time"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/ports"
)

// Options configures a request-bound TokenStore.
type Options struct {
	Scope  domainauth.Scope
	Policy Policy
	// MaxAge applies to written session cookies. Zero means a browser-session cookie.
	MaxAge time.Duration
	// Local receives the local-copy kind. Nil disables the local copy.
	Local ports.TokenStore
}

// TokenStore serves the session kind from one request's cookie and writes it
// back through the response. Writes made during the request are visible to
// later reads on the same store.
type TokenStore struct {
	w    http.ResponseWriter
	r    *http.Request
	opts Options

	mu      sync.Mutex
	touched bool
	value   string
}

// New binds a store to a request/response pair.
func New(w http.ResponseWriter, r *http.Request, opts Options) *TokenStore {
	if !opts.Scope.Valid() {
		opts.Scope = domainauth.ScopeRegular
	}
	return &TokenStore{w: w, r: r, opts: opts}
}

func (s *TokenStore) Read(ctx context.Context, kind domainauth.TokenKind) (domainauth.Token, bool) {
	if kind == domainauth.TokenLocal {
		if s.opts.Local == nil {
			return domainauth.Token{}, false
		}
		return s.opts.Local.Read(ctx, kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touched {
		return domainauth.Token{Value: s.value}, s.value != ""
	}
	c, err := s.r.Cookie(s.opts.Scope.CookieName())
	if err != nil || c.Value == "" {
		return domainauth.Token{}, false
	}
	return domainauth.Token{Value: c.Value}, true
}

func (s *TokenStore) Write(ctx context.Context, kind domainauth.TokenKind, tok domainauth.Token) error {
	if kind == domainauth.TokenLocal {
		if s.opts.Local == nil {
			return nil
		}
		return s.opts.Local.Write(ctx, kind, tok)
	}
	if tok.Value == "" {
		return s.Clear(ctx, kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched, s.value = true, tok.Value
	s.opts.Policy.Set(s.w, s.r, s.opts.Scope.CookieName(), tok.Value, s.opts.MaxAge)
	return nil
}

func (s *TokenStore) Clear(ctx context.Context, kind domainauth.TokenKind) error {
	if kind == domainauth.TokenLocal {
		if s.opts.Local == nil {
			return nil
		}
		return s.opts.Local.Clear(ctx, kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched, s.value = true, ""
	s.opts.Policy.Clear(s.w, s.r, s.opts.Scope.CookieName())
	return nil
}
