package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/domain/model"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
	"github.com/medibook/clinic-gate/internal/ports"
)

// DefaultSessionTTL is used when AuthServiceOptions.SessionTTL is zero.
const DefaultSessionTTL = 12 * time.Hour

// LoginObserver receives login outcomes. Outcomes are "success", "invalid_credentials",
// "invalid_request" and "error".
type LoginObserver interface {
	ObserveLogin(scope domainauth.Scope, outcome string)
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Users    ports.UserRepository
	Sessions ports.SessionStore
	Tokens   ports.TokenIssuer
	Hasher   ports.PasswordHasher

	// Provider enables admin SSO when set.
	Provider ports.AuthProvider
	// Roles, when set, additionally requires the IdP groups to map to ADMIN.
	Roles ports.RoleMapper

	SessionTTL time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
	Observer   LoginObserver
}

// AuthService issues, verifies and ends server sessions for both scopes.
type AuthService struct {
	users    ports.UserRepository
	sessions ports.SessionStore
	tokens   ports.TokenIssuer
	hasher   ports.PasswordHasher
	provider ports.AuthProvider
	roles    ports.RoleMapper
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	observer LoginObserver
}

var (
	errInvalidCredentials = apperrors.Unauthorized("invalid email or password")
	errSSODisabled        = apperrors.NotFound("single sign-on is not enabled")
)

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	s := &AuthService{
		users:    opts.Users,
		sessions: opts.Sessions,
		tokens:   opts.Tokens,
		hasher:   opts.Hasher,
		provider: opts.Provider,
		roles:    opts.Roles,
		ttl:      opts.SessionTTL,
		now:      opts.Now,
		logger:   opts.Logger,
		observer: opts.Observer,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultSessionTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "auth_service")
	return s
}

// SSOEnabled reports whether admin SSO is configured.
func (s *AuthService) SSOEnabled() bool { return s.provider != nil }

// LoginInput is a password login for one scope.
type LoginInput struct {
	Email    string
	Password string
	Scope    domainauth.Scope
}

// LoginResult is an issued session.
type LoginResult struct {
	Principal domainauth.Principal
	Token     string
	ExpiresAt time.Time
}

// Login checks credentials and issues a session. Unknown email, wrong password,
// disabled account and a non-admin on the admin scope all produce the same error.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	scope := in.Scope
	if scope == "" {
		scope = domainauth.ScopeRegular
	}
	res, outcome, err := s.login(ctx, in, scope)
	s.observe(scope, outcome)
	return res, err
}

func (s *AuthService) login(ctx context.Context, in LoginInput, scope domainauth.Scope) (*LoginResult, string, error) {
	if !scope.Valid() {
		return nil, "invalid_request", apperrors.ValidationField("scope", "scope must be regular or admin")
	}
	creds := domainauth.Credentials{Email: in.Email, Password: in.Password}
	if err := creds.Validate(); err != nil {
		return nil, "invalid_request", err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.burn(in.Password)
			return nil, "invalid_credentials", errInvalidCredentials
		}
		return nil, "error", fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		s.logger.ErrorContext(ctx, "stored password hash is unreadable", "user_id", user.ID, "error", err)
		return nil, "invalid_credentials", errInvalidCredentials
	}
	if !ok || !user.IsActive || (scope == domainauth.ScopeAdmin && user.Role != domainauth.RoleAdmin) {
		s.logger.InfoContext(ctx, "login rejected",
			"user_id", user.ID, "scope", string(scope), "password_ok", ok, "active", user.IsActive)
		return nil, "invalid_credentials", errInvalidCredentials
	}

	res, err := s.startSession(ctx, user, scope, time.Time{})
	if err != nil {
		return nil, "error", err
	}
	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID, "scope", string(scope))
	return res, "success", nil
}

// burn spends comparable time on unknown emails when the hasher supports it.
func (s *AuthService) burn(password string) {
	if b, ok := s.hasher.(interface{ Burn(string) }); ok {
		b.Burn(password)
	}
}

// startSession persists a session and signs its token. A non-zero cap shortens the expiry.
func (s *AuthService) startSession(ctx context.Context, user *model.User, scope domainauth.Scope, limit time.Time) (*LoginResult, error) {
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	if !limit.IsZero() && limit.After(now) && limit.Before(expires) {
		expires = limit
	}
	sess := domainauth.Session{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		DisplayName: user.DisplayName,
		Scope:       scope,
		CreatedAt:   now,
		ExpiresAt:   expires,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	token, err := s.tokens.Issue(sess)
	if err != nil {
		if delErr := s.sessions.Delete(ctx, sess.ID); delErr != nil {
			err = errors.Join(err, fmt.Errorf("delete session: %w", delErr))
		}
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &LoginResult{Principal: user.Principal(), Token: token, ExpiresAt: expires}, nil
}

// Verify resolves a session token to the current principal. The account is
// re-read so deactivation and admin demotion take effect immediately.
func (s *AuthService) Verify(ctx context.Context, token string, scope domainauth.Scope) (domainauth.Principal, error) {
	if strings.TrimSpace(token) == "" {
		return domainauth.Principal{}, apperrors.Unauthorized("authentication required")
	}
	claims, err := s.tokens.Parse(token, scope)
	if err != nil {
		return domainauth.Principal{}, err
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			return domainauth.Principal{}, apperrors.Unauthorized("session has ended")
		}
		return domainauth.Principal{}, fmt.Errorf("load session: %w", err)
	}
	if sess.Scope != scope || sess.UserID != claims.UserID {
		return domainauth.Principal{}, apperrors.Unauthorized("session does not match token")
	}
	if sess.Expired(s.now()) {
		s.endSession(ctx, sess.ID, "expired")
		return domainauth.Principal{}, apperrors.Unauthorized("session has expired")
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.endSession(ctx, sess.ID, "user_removed")
			return domainauth.Principal{}, apperrors.Unauthorized("account no longer exists")
		}
		return domainauth.Principal{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		s.endSession(ctx, sess.ID, "user_inactive")
		return domainauth.Principal{}, apperrors.Unauthorized("account is disabled")
	}
	if scope == domainauth.ScopeAdmin && user.Role != domainauth.RoleAdmin {
		s.endSession(ctx, sess.ID, "admin_revoked")
		return domainauth.Principal{}, apperrors.Unauthorized("admin access revoked")
	}
	return user.Principal(), nil
}

func (s *AuthService) endSession(ctx context.Context, id, reason string) {
	if err := s.sessions.Delete(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to delete session", "reason", reason, "error", err)
	}
}

// Logout deletes the session behind token. Unparseable tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, token string, scope domainauth.Scope) error {
	if token == "" {
		return nil
	}
	claims, err := s.tokens.Parse(token, scope)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// BeginLoginResult contains the result of beginning an SSO flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
	// RedirectPath is where the admin lands after the callback.
	RedirectPath string
}

// BeginSSO starts an admin SSO flow.
func (s *AuthService) BeginSSO(ctx context.Context, redirectPath string) (*BeginLoginResult, error) {
	if s.provider == nil {
		return nil, errSSODisabled
	}
	redirectPath = domainauth.SafeRedirectPath(redirectPath)
	if redirectPath == "/" {
		redirectPath = "/admin"
	}
	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectPath})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce, RedirectPath: redirectPath}, nil
}

// CompleteLoginInput groups parameters for completing an SSO flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteSSO exchanges the code and issues an admin session for the matching
// active ADMIN account.
func (s *AuthService) CompleteSSO(ctx context.Context, in CompleteLoginInput) (*LoginResult, error) {
	if s.provider == nil {
		return nil, errSSODisabled
	}
	switch {
	case in.Code == "":
		return nil, apperrors.ValidationField("code", "authorization code is required")
	case in.State == "":
		return nil, apperrors.ValidationField("state", "state parameter is required")
	case in.Nonce == "":
		return nil, apperrors.ValidationField("nonce", "nonce parameter is required")
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput{Code: in.Code, State: in.State, Nonce: in.Nonce})
	if err != nil {
		s.observe(domainauth.ScopeAdmin, "invalid_credentials")
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "identity provider rejected the sign-in")
	}

	if s.roles != nil && s.roles.Map(identity.Groups) != domainauth.RoleAdmin {
		s.logger.InfoContext(ctx, "sso rejected: groups do not grant admin", "email", identity.Email)
		s.observe(domainauth.ScopeAdmin, "invalid_credentials")
		return nil, apperrors.Unauthorized("identity is not a clinic administrator")
	}

	user, err := s.users.GetByEmail(ctx, identity.Email)
	if err != nil && !apperrors.IsNotFound(err) {
		s.observe(domainauth.ScopeAdmin, "error")
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || !user.IsActive || user.Role != domainauth.RoleAdmin {
		s.logger.InfoContext(ctx, "sso rejected: no active admin account", "email", identity.Email)
		s.observe(domainauth.ScopeAdmin, "invalid_credentials")
		return nil, apperrors.Unauthorized("identity is not a clinic administrator")
	}

	res, err := s.startSession(ctx, user, domainauth.ScopeAdmin, identity.ExpiresAt)
	if err != nil {
		s.observe(domainauth.ScopeAdmin, "error")
		return nil, err
	}
	s.observe(domainauth.ScopeAdmin, "success")
	s.logger.InfoContext(ctx, "sso login succeeded", "user_id", user.ID)
	return res, nil
}

func (s *AuthService) observe(scope domainauth.Scope, outcome string) {
	if s.observer != nil {
		s.observer.ObserveLogin(scope, outcome)
	}
}
