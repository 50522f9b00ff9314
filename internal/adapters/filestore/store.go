// Package filestore persists client-side tokens in a JSON file so a terminal
// client keeps its session across process restarts. The file mirrors what a
// browser keeps: a local-storage section and a cookie jar section.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
)

const fileName = "tokens.json"

type fileLayout struct {
	Local   map[string]json.RawMessage `json:"local,omitempty"`
	Cookies map[string]string          `json:"cookies,omitempty"`
}

// TokenStore implements ports.TokenStore for one scope on top of a JSON file.
type TokenStore struct {
	path   string
	scope  domainauth.Scope
	logger *slog.Logger
	mu     sync.Mutex
}

// DefaultPath returns <user config dir>/clinicgate/tokens.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "clinicgate", fileName), nil
}

// New returns a store for scope backed by the file at path.
func New(path string, scope domainauth.Scope, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	if !scope.Valid() {
		scope = domainauth.ScopeRegular
	}
	return &TokenStore{
		path:   path,
		scope:  scope,
		logger: logger.With("component", "file_token_store", "scope", string(scope)),
	}
}

// Path returns the backing file location.
func (s *TokenStore) Path() string { return s.path }

func (s *TokenStore) load() (fileLayout, error) {
	var out fileLayout
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return fileLayout{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return out, nil
}

func (s *TokenStore) save(l fileLayout) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		return errors.Join(fmt.Errorf("chmod temp file: %w", err), tmp.Close(), os.Remove(tmpName))
	}
	if _, err := tmp.Write(data); err != nil {
		return errors.Join(fmt.Errorf("write temp file: %w", err), tmp.Close(), os.Remove(tmpName))
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(fmt.Errorf("close temp file: %w", err), os.Remove(tmpName))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Join(fmt.Errorf("replace token file: %w", err), os.Remove(tmpName))
	}
	return nil
}

func (s *TokenStore) Read(ctx context.Context, kind domainauth.TokenKind) (domainauth.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.load()
	if err != nil {
		s.logger.WarnContext(ctx, "token file unreadable", "path", s.path, "error", err)
		return domainauth.Token{}, false
	}

	if kind == domainauth.TokenSession {
		v := l.Cookies[s.scope.CookieName()]
		return domainauth.Token{Value: v}, v != ""
	}

	raw, ok := l.Local[s.scope.LocalUserKey()]
	if !ok {
		return domainauth.Token{}, false
	}
	var p domainauth.Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.WarnContext(ctx, "discarding malformed local principal", "error", err)
		return domainauth.Token{}, false
	}
	if err := p.Validate(); err != nil {
		s.logger.WarnContext(ctx, "discarding invalid local principal", "error", err)
		return domainauth.Token{}, false
	}
	var mirror string
	if rawTok, ok := l.Local[s.scope.LocalTokenKey()]; ok {
		if err := json.Unmarshal(rawTok, &mirror); err != nil {
			mirror = ""
		}
	}
	return domainauth.Token{Value: mirror, Principal: &p}, true
}

func (s *TokenStore) Write(ctx context.Context, kind domainauth.TokenKind, tok domainauth.Token) error {
	if kind == domainauth.TokenLocal && tok.Principal == nil {
		return errors.New("local token requires a principal")
	}
	return s.update(ctx, func(l *fileLayout) error {
		if kind == domainauth.TokenSession {
			if tok.Value == "" {
				delete(l.Cookies, s.scope.CookieName())
				return nil
			}
			if l.Cookies == nil {
				l.Cookies = map[string]string{}
			}
			l.Cookies[s.scope.CookieName()] = tok.Value
			return nil
		}

		user, err := json.Marshal(tok.Principal)
		if err != nil {
			return fmt.Errorf("encode principal: %w", err)
		}
		if l.Local == nil {
			l.Local = map[string]json.RawMessage{}
		}
		l.Local[s.scope.LocalUserKey()] = user
		if tok.Value == "" {
			delete(l.Local, s.scope.LocalTokenKey())
			return nil
		}
		mirror, err := json.Marshal(tok.Value)
		if err != nil {
			return fmt.Errorf("encode token mirror: %w", err)
		}
		l.Local[s.scope.LocalTokenKey()] = mirror
		return nil
	})
}

func (s *TokenStore) Clear(ctx context.Context, kind domainauth.TokenKind) error {
	return s.update(ctx, func(l *fileLayout) error {
		if kind == domainauth.TokenSession {
			delete(l.Cookies, s.scope.CookieName())
			return nil
		}
		delete(l.Local, s.scope.LocalUserKey())
		delete(l.Local, s.scope.LocalTokenKey())
		return nil
	})
}

func (s *TokenStore) update(ctx context.Context, fn func(*fileLayout) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.load()
	if err != nil {
		// A corrupt file is replaced rather than blocking every write.
		s.logger.WarnContext(ctx, "resetting unreadable token file", "path", s.path, "error", err)
		l = fileLayout{}
	}
	if err := fn(&l); err != nil {
		return err
	}
	return s.save(l)
}
