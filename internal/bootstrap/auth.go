package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medibook/clinic-gate/config"
	"github.com/medibook/clinic-gate/internal/adapters/authclient"
	"github.com/medibook/clinic-gate/internal/adapters/authroles"
	"github.com/medibook/clinic-gate/internal/adapters/devauth"
	"github.com/medibook/clinic-gate/internal/adapters/oidc"
	"github.com/medibook/clinic-gate/internal/adapters/password"
	redisadapter "github.com/medibook/clinic-gate/internal/adapters/redis"
	"github.com/medibook/clinic-gate/internal/adapters/sessiontoken"
	"github.com/medibook/clinic-gate/internal/data"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	httpx "github.com/medibook/clinic-gate/internal/http"
	"github.com/medibook/clinic-gate/internal/ports"
	"github.com/medibook/clinic-gate/internal/service"
)

// sessionKeyPrefix namespaces server sessions in Redis.
const sessionKeyPrefix = "clinicgate:session:"

// AuthConfig contains dependencies for the auth service.
type AuthConfig struct {
	Auth        config.AuthConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	// Users overrides the Postgres repository built from DB.
	Users      ports.UserRepository
	Observer   service.LoginObserver
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// BuildAuthService wires password login, session tokens, Redis sessions and
// the optional admin SSO provider. An SSO provider that fails to initialise
// disables SSO but leaves password login running.
func BuildAuthService(ctx context.Context, cfg AuthConfig) (*service.AuthService, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RedisClient == nil {
		return nil, errors.New("auth service requires redis for server sessions")
	}
	users := cfg.Users
	if users == nil {
		if cfg.DB == nil {
			return nil, errors.New("auth service requires a database")
		}
		users = data.NewUserRepo(cfg.DB)
	}

	hasher, err := NewPasswordHasher(cfg.Auth.Argon2)
	if err != nil {
		return nil, err
	}
	issuer, err := sessiontoken.NewIssuer(sessiontoken.Config{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.JWTIssuer,
	})
	if err != nil {
		return nil, fmt.Errorf("session token issuer: %w", err)
	}

	opts := service.AuthServiceOptions{
		Users:      users,
		Sessions:   redisadapter.NewSessionStore(cfg.RedisClient, redisadapter.SessionStoreOptions{Prefix: sessionKeyPrefix}),
		Tokens:     issuer,
		Hasher:     hasher,
		SessionTTL: cfg.Auth.SessionTTL,
		Logger:     logger,
		Observer:   cfg.Observer,
	}
	if cfg.Auth.AdminGroup != "" {
		opts.Roles = authroles.StaticRoleMapper{AdminGroup: cfg.Auth.AdminGroup}
	}

	provider, err := buildSSOProvider(ctx, cfg)
	if err != nil {
		logger.WarnContext(ctx, "admin sso disabled", "mode", string(cfg.Auth.SSOMode), "error", err)
	} else if provider != nil {
		opts.Provider = provider
		logger.InfoContext(ctx, "admin sso enabled", "mode", string(cfg.Auth.SSOMode))
	}

	return service.NewAuthService(opts), nil
}

// NewPasswordHasher returns the argon2id hasher configured by c.
func NewPasswordHasher(c config.Argon2Config) (*password.Argon2Hasher, error) {
	h, err := password.NewArgon2Hasher(argon2Params(c))
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	return h, nil
}

func argon2Params(c config.Argon2Config) password.Params {
	p := password.DefaultParams()
	p.MemoryKB = c.MemoryKB
	p.Time = c.Time
	p.Parallelism = c.Parallelism
	return p
}

//nolint:ireturn // the provider is chosen by configuration.
func buildSSOProvider(ctx context.Context, cfg AuthConfig) (ports.AuthProvider, error) {
	switch cfg.Auth.SSOMode {
	case config.SSOModeMock:
		dev := cfg.Auth.DevAuth
		return devauth.NewProvider(devauth.Config{
			UserID:          dev.UserID,
			Email:           dev.Email,
			FirstName:       dev.FirstName,
			LastName:        dev.LastName,
			Groups:          dev.Groups,
			SessionDuration: cfg.Auth.SessionTTL,
		})

	case config.SSOModeOAuth:
		oauth := cfg.Auth.OAuth
		dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return oidc.NewProvider(dctx, oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			IssuerURL:    oauth.DiscoveryURL,
			HTTPClient:   cfg.HTTPClient,
		})

	default:
		return nil, nil
	}
}

// LocalGateways serves portal sessions from an in-process auth service.
func LocalGateways(auth *service.AuthService) httpx.GatewayFunc {
	return func(scope domainauth.Scope, tokens ports.TokenStore) (ports.SessionGateway, error) {
		if auth == nil {
			return nil, errors.New("auth service is not configured")
		}
		return service.NewLocalGateway(auth, scope, tokens), nil
	}
}

// RemoteGatewayConfig configures portal sessions backed by a remote auth API.
type RemoteGatewayConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// RemoteGateways serves portal sessions over the auth API's HTTP surface.
func RemoteGateways(cfg RemoteGatewayConfig) httpx.GatewayFunc {
	return func(scope domainauth.Scope, tokens ports.TokenStore) (ports.SessionGateway, error) {
		return authclient.New(authclient.Config{
			BaseURL:    cfg.BaseURL,
			Scope:      scope,
			Tokens:     tokens,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
		})
	}
}
