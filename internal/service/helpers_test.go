package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/medibook/clinic-gate/internal/adapters/sessiontoken"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/domain/model"
	mockauth "github.com/medibook/clinic-gate/internal/mocks/auth"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// plainHasher stores passwords with a marker prefix; argon2 cost is covered by the password package.
type plainHasher struct {
	mu     sync.Mutex
	burned int
}

func (h *plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (h *plainHasher) Verify(password, encoded string) (bool, error) {
	stored, ok := strings.CutPrefix(encoded, "plain:")
	if !ok {
		return false, errBadHash
	}
	return stored == password, nil
}

func (h *plainHasher) Burn(string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.burned++
}

type badHashError struct{}

func (badHashError) Error() string { return "unrecognized hash" }

var errBadHash error = badHashError{}

type loginRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *loginRecorder) ObserveLogin(scope domainauth.Scope, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, string(scope)+":"+outcome)
}

type authFixture struct {
	svc      *AuthService
	users    *mockauth.MemoryUserRepo
	sessions *mockauth.MemorySessionStore
	hasher   *plainHasher
	issuer   *sessiontoken.Issuer
	logins   *loginRecorder
	clock    *time.Time
}

func newAuthFixture(t *testing.T, mutate ...func(*AuthServiceOptions)) *authFixture {
	t.Helper()
	clock := testNow
	now := func() time.Time { return clock }
	issuer, err := sessiontoken.NewIssuer(sessiontoken.Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "clinic-gate-test",
		Now:    now,
	})
	require.NoError(t, err)

	f := &authFixture{
		users:    mockauth.NewMemoryUserRepo(),
		sessions: mockauth.NewMemorySessionStore(),
		hasher:   &plainHasher{},
		issuer:   issuer,
		logins:   &loginRecorder{},
		clock:    &clock,
	}
	opts := AuthServiceOptions{
		Users:      f.users,
		Sessions:   f.sessions,
		Tokens:     issuer,
		Hasher:     f.hasher,
		SessionTTL: time.Hour,
		Now:        now,
		Observer:   f.logins,
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.svc = NewAuthService(opts)
	return f
}

func (f *authFixture) addUser(t *testing.T, email string, role domainauth.Role, active bool) *model.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), model.CreateUserRequest{
		Email:        email,
		DisplayName:  "Test " + string(role),
		Role:         role,
		PasswordHash: "plain:correct-horse",
		Inactive:     !active,
	})
	require.NoError(t, err)
	return u
}
