package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/medibook/clinic-gate/config"
	"github.com/medibook/clinic-gate/internal/adapters/cookiestore"
	httpx "github.com/medibook/clinic-gate/internal/http"
	"github.com/medibook/clinic-gate/internal/observability/metrics"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// ErrCh receives a listener failure. Optional.
	ErrCh chan<- error
}

// StartHTTPServer builds the handler for the enabled services and starts the
// server in the background. Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler, err := BuildHTTPHandler(appCfg, cfg.Services, logger)
	if err != nil {
		return nil, err
	}
	return startServer(logger, handler, appCfg.HTTP, cfg.ErrCh), nil
}

// BuildHTTPHandler assembles the router for the enabled services.
// Order: Recover -> Logging -> Router.
func BuildHTTPHandler(appCfg *config.AppConfig, services ServiceContainer, logger *slog.Logger) (http.Handler, error) {
	enabled, err := appCfg.GetEnabledServices()
	if err != nil {
		return nil, err
	}
	cookies := cookiestore.Policy{Domain: appCfg.HTTP.CookieDomain, Secure: appCfg.HTTP.SecureOverride()}

	deps := httpx.RouterDeps{Logger: logger}
	if services.Metrics != nil {
		deps.Edge = services.Metrics
	}
	if appCfg.Metrics.Enabled && services.Registry != nil {
		deps.Metrics = metrics.Handler(services.Registry)
		deps.MetricsPath = appCfg.Metrics.Path
	}

	if enabled[config.ServiceModeAPI] {
		if services.Auth == nil {
			return nil, errors.New("api service enabled without an auth service")
		}
		deps.Auth = &httpx.AuthHandlers{
			Svc:     services.Auth,
			Cookies: cookies,
			Limiter: services.Limiter,
			Logger:  logger,
		}
	}

	if enabled[config.ServiceModePortal] {
		inProcess := enabled[config.ServiceModeAPI] && appCfg.Portal.APIBaseURL == ""
		portal, err := buildPortal(appCfg, services, cookies, inProcess, logger)
		if err != nil {
			return nil, err
		}
		deps.Portal = portal
	}

	h := httpx.NewRouter(deps)
	h = httpx.Logging(logger)(h)
	h = httpx.Recover(logger)(h)
	return h, nil
}

func buildPortal(
	appCfg *config.AppConfig,
	services ServiceContainer,
	cookies cookiestore.Policy,
	inProcess bool,
	logger *slog.Logger,
) (*httpx.PortalConfig, error) {
	pages, err := httpx.NewPages(logger)
	if err != nil {
		return nil, err
	}

	gateway := RemoteGateways(RemoteGatewayConfig{
		BaseURL: appCfg.Portal.APIBaseURL,
		Timeout: appCfg.Portal.VerifyTimeout,
		Logger:  logger,
	})
	ssoEnabled := false
	if inProcess {
		gateway = LocalGateways(services.Auth)
		ssoEnabled = services.Auth != nil && services.Auth.SSOEnabled()
	}

	// A nil client leaves the portal without a local copy; ConnectRedis logs that.
	factory := &httpx.SessionFactory{
		Gateway:       gateway,
		Redis:         services.Redis,
		Cookies:       cookies,
		CookieMaxAge:  appCfg.Auth.SessionTTL,
		LocalTTL:      appCfg.Portal.LocalCopyTTL,
		VerifyTimeout: appCfg.Portal.VerifyTimeout,
		Logger:        logger,
	}

	cfg := &httpx.PortalConfig{
		Sessions:   factory,
		Pages:      pages,
		Edge:       EdgeRules(appCfg.Portal),
		SSOEnabled: ssoEnabled,
		Logger:     logger,
	}
	if services.Metrics != nil {
		factory.Observer = services.Metrics
		cfg.Decisions = services.Metrics
	}
	return cfg, nil
}

// EdgeRules maps portal configuration onto the edge filter's areas.
func EdgeRules(p config.PortalConfig) httpx.EdgeRules {
	return httpx.EdgeRules{
		AdminArea:      p.AdminArea,
		AdminLoginPath: p.AdminLoginPath,
		ProtectedAreas: p.ProtectedAreas,
		LoginPath:      p.LoginPath,
		RegisterPath:   p.RegisterPath,
		HomePath:       p.HomePath,
	}
}

// NewLoginLimiter builds the per-IP login limiter, or nil when disabled.
func NewLoginLimiter(cfg config.RateLimitConfig, observer httpx.RateLimitObserver) *httpx.RateLimiter {
	if !cfg.Enabled {
		return nil
	}
	return httpx.NewRateLimiter(httpx.RateLimiterConfig{
		Rate:            rate.Limit(cfg.LoginPerMinute / 60),
		Burst:           cfg.Burst,
		CleanupInterval: cfg.IdleTTL / 2,
	}, observer)
}

func startServer(logger *slog.Logger, handler http.Handler, cfg config.HTTPConfig, errCh chan<- error) *http.Server {
	addr := cfg.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			if errCh != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Timeout time.Duration
	Limiter *httpx.RateLimiter
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Limiter != nil {
		cfg.Limiter.Stop()
	}
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
