// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/domain/model"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
	"github.com/medibook/clinic-gate/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.TokenStore     = (*MemoryTokenStore)(nil)
	_ ports.SessionGateway = (*ScriptedGateway)(nil)
	_ ports.SessionStore   = (*MemorySessionStore)(nil)
	_ ports.UserRepository = (*MemoryUserRepo)(nil)
	_ ports.AuthProvider   = (*MockAuthProvider)(nil)
)

// MemoryTokenStore keeps both token kinds in memory.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[domainauth.TokenKind]domainauth.Token

	// Unavailable makes every Read report absent, simulating unreadable storage.
	Unavailable bool
	// WriteErr is returned by Write when set.
	WriteErr error
}

// NewMemoryTokenStore creates an empty store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[domainauth.TokenKind]domainauth.Token)}
}

func (m *MemoryTokenStore) Read(_ context.Context, kind domainauth.TokenKind) (domainauth.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return domainauth.Token{}, false
	}
	tok, ok := m.tokens[kind]
	if !ok {
		return domainauth.Token{}, false
	}
	if kind == domainauth.TokenLocal {
		if tok.Principal == nil || tok.Principal.Validate() != nil {
			return domainauth.Token{}, false
		}
		p := *tok.Principal
		tok.Principal = &p
	}
	return tok, true
}

func (m *MemoryTokenStore) Write(_ context.Context, kind domainauth.TokenKind, tok domainauth.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if tok.Principal != nil {
		p := *tok.Principal
		tok.Principal = &p
	}
	m.tokens[kind] = tok
	return nil
}

func (m *MemoryTokenStore) Clear(_ context.Context, kind domainauth.TokenKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, kind)
	return nil
}

// Has reports whether a kind is present regardless of validity.
func (m *MemoryTokenStore) Has(kind domainauth.TokenKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[kind]
	return ok
}

// ScriptedGateway is a SessionGateway whose responses are supplied by the test.
// On a successful login it stores IssuedToken as the session token in Tokens,
// the way a real backend's Set-Cookie would.
type ScriptedGateway struct {
	VerifyFunc func(ctx context.Context) (domainauth.Principal, error)
	LoginFunc  func(ctx context.Context, creds domainauth.Credentials) (domainauth.Principal, error)
	LogoutFunc func(ctx context.Context) error

	Tokens      ports.TokenStore
	IssuedToken string

	verifyCalls atomic.Int32
	loginCalls  atomic.Int32
	logoutCalls atomic.Int32
}

func (g *ScriptedGateway) Verify(ctx context.Context) (domainauth.Principal, error) {
	g.verifyCalls.Add(1)
	if g.VerifyFunc == nil {
		return domainauth.Principal{}, apperrors.Unauthorized("no session")
	}
	return g.VerifyFunc(ctx)
}

func (g *ScriptedGateway) Login(ctx context.Context, creds domainauth.Credentials) (domainauth.Principal, error) {
	g.loginCalls.Add(1)
	if g.LoginFunc == nil {
		return domainauth.Principal{}, apperrors.Unauthorized("invalid credentials")
	}
	p, err := g.LoginFunc(ctx, creds)
	if err != nil {
		return domainauth.Principal{}, err
	}
	if g.Tokens != nil && g.IssuedToken != "" {
		if werr := g.Tokens.Write(ctx, domainauth.TokenSession, domainauth.Token{Value: g.IssuedToken}); werr != nil {
			return domainauth.Principal{}, werr
		}
	}
	return p, nil
}

func (g *ScriptedGateway) Logout(ctx context.Context) error {
	g.logoutCalls.Add(1)
	if g.LogoutFunc == nil {
		return nil
	}
	return g.LogoutFunc(ctx)
}

// VerifyCalls returns how many times Verify ran.
func (g *ScriptedGateway) VerifyCalls() int { return int(g.verifyCalls.Load()) }

// LoginCalls returns how many times Login ran.
func (g *ScriptedGateway) LoginCalls() int { return int(g.loginCalls.Load()) }

// LogoutCalls returns how many times Logout ran.
func (g *ScriptedGateway) LogoutCalls() int { return int(g.logoutCalls.Load()) }

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok || id == "" {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

func (notFoundError) Is(target error) bool { return target == ports.ErrSessionNotFound }

// ErrNotFound is returned by mocks when an entity is not present.
var ErrNotFound error = notFoundError{}

// MemoryUserRepo is an in-memory UserRepository keyed by normalized email.
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	now   func() time.Time
}

// NewMemoryUserRepo creates an empty repository.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]*model.User), now: time.Now}
}

func (m *MemoryUserRepo) Create(_ context.Context, req model.CreateUserRequest) (*model.User, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	req.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == req.Email {
			return nil, &apperrors.AppError{Code: apperrors.ErrCodeConflict, Message: "email already registered", Field: "email"}
		}
	}
	now := m.now()
	u := &model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		Role:         req.Role,
		PasswordHash: req.PasswordHash,
		IsActive:     !req.Inactive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *MemoryUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.NotFoundf("user %s not found", email)
}

func (m *MemoryUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NotFoundf("user %s not found", id)
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryUserRepo) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperrors.NotFoundf("user %s not found", id)
	}
	u.IsActive = active
	u.UpdatedAt = m.now()
	return nil
}

// SetRole changes a stored user's role, for tests that revoke privileges mid-session.
func (m *MemoryUserRepo) SetRole(id string, role domainauth.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Role = role
	}
}

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	AuthURL     string
	DefaultUser domainauth.Identity

	callCount atomic.Int32
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL: "https://mock-idp/auth",
		DefaultUser: domainauth.Identity{
			UserID:    "mock-admin-1",
			FirstName: "Mock",
			LastName:  "Admin",
			Email:     "mock.admin@clinic.test",
			Groups:    []string{"clinic-admins"},
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	n := m.callCount.Add(1)
	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	return authURL, fmt.Sprintf("state-%d", n), fmt.Sprintf("nonce-%d", n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	user := m.DefaultUser
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}
