package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/redis/go-redis/v9"
)

const defaultTokenTTL = 24 * time.Hour

// TokenStoreOptions configures a TokenStore.
type TokenStoreOptions struct {
	// Namespace isolates one client's copies, e.g. a hash of its session cookie.
	Namespace string
	Scope     domainauth.Scope
	TTL       time.Duration
	Logger    *slog.Logger
}

// TokenStore is a Redis-backed blind cache for the local copy (principal and
// token mirror) and the session token of one client. Read never fails: Redis
// errors and malformed entries are logged and reported as absent.
type TokenStore struct {
	client redis.UniversalClient
	opts   TokenStoreOptions
	logger *slog.Logger
}

// NewTokenStore creates a namespaced token store.
func NewTokenStore(client redis.UniversalClient, opts TokenStoreOptions) *TokenStore {
	if opts.TTL <= 0 {
		opts.TTL = defaultTokenTTL
	}
	if !opts.Scope.Valid() {
		opts.Scope = domainauth.ScopeRegular
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{
		client: client,
		opts:   opts,
		logger: logger.With("component", "redis_token_store", "scope", string(opts.Scope)),
	}
}

func (s *TokenStore) key(suffix string) string {
	return "clinicgate:tokens:" + s.opts.Namespace + ":" + suffix
}

func (s *TokenStore) userKey() string    { return s.key(s.opts.Scope.LocalUserKey()) }
func (s *TokenStore) mirrorKey() string  { return s.key(s.opts.Scope.LocalTokenKey()) }
func (s *TokenStore) sessionKey() string { return s.key(string(s.opts.Scope) + "_session") }

func (s *TokenStore) Read(ctx context.Context, kind domainauth.TokenKind) (domainauth.Token, bool) {
	if kind == domainauth.TokenSession {
		v, err := s.client.Get(ctx, s.sessionKey()).Result()
		if err != nil {
			s.logReadErr(ctx, kind, err)
			return domainauth.Token{}, false
		}
		return domainauth.Token{Value: v}, v != ""
	}

	vals, err := s.client.MGet(ctx, s.userKey(), s.mirrorKey()).Result()
	if err != nil {
		s.logReadErr(ctx, kind, err)
		return domainauth.Token{}, false
	}
	raw, _ := vals[0].(string)
	if raw == "" {
		return domainauth.Token{}, false
	}
	var p domainauth.Principal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.WarnContext(ctx, "discarding malformed local principal", "error", err)
		return domainauth.Token{}, false
	}
	if err := p.Validate(); err != nil {
		s.logger.WarnContext(ctx, "discarding invalid local principal", "error", err)
		return domainauth.Token{}, false
	}
	mirror, _ := vals[1].(string)
	return domainauth.Token{Value: mirror, Principal: &p}, true
}

func (s *TokenStore) logReadErr(ctx context.Context, kind domainauth.TokenKind, err error) {
	if errors.Is(err, redis.Nil) {
		return
	}
	s.logger.WarnContext(ctx, "token store read failed", "kind", kind.String(), "error", err)
}

func (s *TokenStore) Write(ctx context.Context, kind domainauth.TokenKind, tok domainauth.Token) error {
	if kind == domainauth.TokenSession {
		if tok.Value == "" {
			return s.Clear(ctx, kind)
		}
		if err := s.client.Set(ctx, s.sessionKey(), tok.Value, s.opts.TTL).Err(); err != nil {
			return fmt.Errorf("redis set session token: %w", err)
		}
		return nil
	}

	if tok.Principal == nil {
		return errors.New("local token requires a principal")
	}
	data, err := json.Marshal(tok.Principal)
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.userKey(), data, s.opts.TTL)
	if tok.Value != "" {
		pipe.Set(ctx, s.mirrorKey(), tok.Value, s.opts.TTL)
	} else {
		pipe.Del(ctx, s.mirrorKey())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write local copy: %w", err)
	}
	return nil
}

func (s *TokenStore) Clear(ctx context.Context, kind domainauth.TokenKind) error {
	keys := []string{s.userKey(), s.mirrorKey()}
	if kind == domainauth.TokenSession {
		keys = []string{s.sessionKey()}
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear %s token: %w", kind, err)
	}
	return nil
}
