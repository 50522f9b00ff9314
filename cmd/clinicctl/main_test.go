package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/clinic-gate/config"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/migrate"
	mockauth "github.com/medibook/clinic-gate/internal/mocks/auth"
)

const (
	patEmail    = "pat@clinic.test"
	patPassword = "s3cret-pass"
	patToken    = "tok-pat"
)

// fakeAPI serves the regular-scope login, verify and logout endpoints.
type fakeAPI struct {
	mu      sync.Mutex
	revoked bool
}

func (f *fakeAPI) user() map[string]any {
	return map[string]any{"user": domainauth.Principal{
		ID: "u-1", Email: patEmail, Role: domainauth.RolePatient, IsActive: true, DisplayName: "Pat",
	}}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth/login":
		var body struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email != patEmail || body.Password != patPassword {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"unauthorized","message":"invalid credentials"}`)
			return
		}
		f.revoked = false
		http.SetCookie(w, &http.Cookie{Name: domainauth.CookieRegular, Value: patToken, Path: "/", HttpOnly: true})
		_ = json.NewEncoder(w).Encode(f.user())
	case "/auth/verify":
		ck, err := r.Cookie(domainauth.CookieRegular)
		if err != nil || ck.Value != patToken || f.revoked {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(f.user())
	case "/auth/logout":
		f.revoked = true
		_, _ = io.WriteString(w, `{"ok":true}`)
	default:
		http.NotFound(w, r)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(quietLogger())
	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func sessionArgs(apiURL, tokenFile string, args ...string) []string {
	return append([]string{"--api-url", apiURL, "--token-file", tokenFile, "--timeout", "2s"}, args...)
}

func TestSessionCommands(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{})
	defer srv.Close()
	tokenFile := filepath.Join(t.TempDir(), "tokens.json")

	out, err := runCLI(t, "", sessionArgs(srv.URL, tokenFile, "whoami")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")

	out, err = runCLI(t, "wrong\n", sessionArgs(srv.URL, tokenFile, "login", "--email", patEmail, "--password-stdin")...)
	require.Error(t, err)
	assert.Equal(t, "invalid email or password", err.Error())
	assert.Empty(t, out)

	out, err = runCLI(t, patPassword+"\n", sessionArgs(srv.URL, tokenFile, "login", "--email", patEmail, "--password-stdin")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Pat <pat@clinic.test> (PATIENT)")

	out, err = runCLI(t, "", sessionArgs(srv.URL, tokenFile, "whoami")...)
	require.NoError(t, err)
	assert.Equal(t, "Pat <pat@clinic.test> (PATIENT)\n", out)

	out, err = runCLI(t, "", sessionArgs(srv.URL, tokenFile, "guard", "--path", "/appointments", "--role", "PATIENT")...)
	require.NoError(t, err)
	assert.Contains(t, out, "allow Pat")

	out, err = runCLI(t, "", sessionArgs(srv.URL, tokenFile, "guard", "--path", "/consultations", "--role", "DOCTOR")...)
	require.ErrorIs(t, err, errAccessDenied)
	assert.Contains(t, out, "forbidden Pat")

	out, err = runCLI(t, "", sessionArgs(srv.URL, tokenFile, "logout")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	out, err = runCLI(t, "", sessionArgs(srv.URL, tokenFile, "guard", "--path", "/appointments")...)
	require.ErrorIs(t, err, errAccessDenied)
	assert.Equal(t, "redirect /login?redirect_uri=%2Fappointments\n", out)
}

func TestWhoamiFallsBackToLocalCopyWhenServerIsDown(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{})
	tokenFile := filepath.Join(t.TempDir(), "tokens.json")

	_, err := runCLI(t, patPassword+"\n", sessionArgs(srv.URL, tokenFile, "login", "--email", patEmail, "--password-stdin")...)
	require.NoError(t, err)
	srv.Close()

	out, err := runCLI(t, "", sessionArgs(srv.URL, tokenFile, "whoami")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Pat <pat@clinic.test> (PATIENT)")
	assert.Contains(t, out, "Working offline")

	// The unverified copy is enough for the guard; the server decides on the next request.
	out, err = runCLI(t, "", sessionArgs(srv.URL, tokenFile, "guard", "--role", "PATIENT")...)
	require.NoError(t, err)
	assert.Contains(t, out, "allow")
}

func TestAdminScopeUsesItsOwnSession(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{})
	defer srv.Close()
	tokenFile := filepath.Join(t.TempDir(), "tokens.json")

	_, err := runCLI(t, patPassword+"\n", sessionArgs(srv.URL, tokenFile, "login", "--email", patEmail, "--password-stdin")...)
	require.NoError(t, err)

	out, err := runCLI(t, "", sessionArgs(srv.URL, tokenFile, "--admin", "guard", "--path", "/admin/users", "--role", "ADMIN")...)
	require.ErrorIs(t, err, errAccessDenied)
	assert.Equal(t, "redirect /admin/login?redirect_uri=%2Fadmin%2Fusers\n", out)
}

func TestLoginInputErrors(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantErr string
	}{
		{name: "password flag missing", args: []string{"login", "--email", patEmail}, wantErr: "--password-stdin"},
		{name: "empty password", stdin: "\n", args: []string{"login", "--email", patEmail, "--password-stdin"}, wantErr: "password is required"},
		{name: "bad email", stdin: "pw\n", args: []string{"login", "--email", "nope", "--password-stdin"}, wantErr: "valid address"},
		{name: "unknown role", args: []string{"guard", "--role", "nurse"}, wantErr: "role must be one of"},
		{name: "lowercase role", args: []string{"guard", "--role", "patient"}, wantErr: "role must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No server: none of these should reach the network.
			args := sessionArgs("http://127.0.0.1:1", filepath.Join(t.TempDir(), "tokens.json"), tt.args...)
			_, err := runCLI(t, tt.stdin, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func stubUserStore(t *testing.T) *mockauth.MemoryUserRepo {
	t.Helper()
	repo := mockauth.NewMemoryUserRepo()
	prev := openUserStore
	openUserStore = func(*slog.Logger) (userStore, error) {
		return userStore{
			Repo:   repo,
			Argon2: config.Argon2Config{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1},
		}, nil
	}
	t.Cleanup(func() { openUserStore = prev })
	return repo
}

func TestUserCommands(t *testing.T) {
	repo := stubUserStore(t)

	out, err := runCLI(t, "correct horse\n",
		"user", "create", "--email", "Doc@Clinic.test", "--name", "Dr Who", "--role", "DOCTOR", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Created doc@clinic.test (DOCTOR, active)")

	u, err := repo.GetByEmail(context.Background(), "doc@clinic.test")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", u.PasswordHash)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$argon2id$"))

	out, err = runCLI(t, "", "user", "deactivate", "--email", "doc@clinic.test")
	require.NoError(t, err)
	assert.Contains(t, out, "Deactivated doc@clinic.test (DOCTOR, inactive)")

	out, err = runCLI(t, "", "user", "activate", "--email", "doc@clinic.test")
	require.NoError(t, err)
	assert.Contains(t, out, "Activated doc@clinic.test (DOCTOR, active)")

	_, err = runCLI(t, "", "user", "activate", "--email", "ghost@clinic.test")
	require.Error(t, err)

	_, err = runCLI(t, "pw-long-enough\n", "user", "create", "--email", "x@clinic.test", "--role", "nurse", "--password-stdin")
	require.Error(t, err)

	_, err = runCLI(t, "pw-long-enough\n", "user", "create", "--email", "y@clinic.test", "--role", "patient", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role must be one of")
	_, err = repo.GetByEmail(context.Background(), "y@clinic.test")
	require.Error(t, err)
}

func TestPrintMigrations(t *testing.T) {
	applied := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	root := newRootCmd(quietLogger())
	var out bytes.Buffer
	root.SetOut(&out)

	printMigrations(root, []migrate.Migration{
		{Version: "0001_users", AppliedAt: &applied},
		{Version: "0002_user_indexes"},
	})

	assert.Equal(t,
		"applied  0001_users  2026-03-01T12:00:00Z\npending  0002_user_indexes\n2 migrations, 1 pending\n",
		out.String())
}
