package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/medibook/clinic-gate/config"
	httpx "github.com/medibook/clinic-gate/internal/http"
	"github.com/medibook/clinic-gate/internal/observability/metrics"
	"github.com/medibook/clinic-gate/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	// Auth is nil when the api service is disabled.
	Auth     *service.AuthService
	Redis    redis.UniversalClient
	Metrics  *metrics.Collector
	Registry *prometheus.Registry
	Limiter  *httpx.RateLimiter
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices builds the services the enabled modes need.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps require a config")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enabled, err := deps.Config.GetEnabledServices()
	if err != nil {
		return ServiceContainer{}, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	c := ServiceContainer{
		Redis:    deps.RedisClient,
		Metrics:  collector,
		Registry: reg,
	}
	if enabled[config.ServiceModeAPI] {
		auth, err := BuildAuthService(ctx, AuthConfig{
			Auth:        deps.Config.Auth,
			DB:          deps.DB,
			RedisClient: deps.RedisClient,
			Observer:    collector,
			Logger:      logger,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("build auth service: %w", err)
		}
		c.Auth = auth
		c.Limiter = NewLoginLimiter(deps.Config.RateLimit, collector)
	}
	return c, nil
}

// ServiceOrchestrationConfig contains dependencies for running services.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts the HTTP server and blocks until a signal
// or a server failure, then shuts down gracefully.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	errCh := make(chan error, 1)
	server, err := StartHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		Logger:   logger,
		ErrCh:    errCh,
	})
	if err != nil {
		cfg.Services.Limiter.Stop()
		return fmt.Errorf("start http server: %w", err)
	}
	logger.Info("services started", "services", GetEnabledServices(cfg.Config))

	return waitForShutdown(shutdownConfig{
		errCh:  errCh,
		server: server,
		cfg:    cfg,
		logger: logger,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	errCh  <-chan error
	server *http.Server
	cfg    *ServiceOrchestrationConfig
	logger *slog.Logger
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(sc shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		sc.logger.Info("shutting down services...")
		return gracefulStop(sc)
	case err := <-sc.errCh:
		sc.logger.Error("service error", "error", err)
		if stopErr := gracefulStop(sc); stopErr != nil {
			sc.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

func gracefulStop(sc shutdownConfig) error {
	return ShutdownHTTPServer(ShutdownConfig{
		Context: context.Background(),
		Server:  sc.server,
		Timeout: sc.cfg.Config.HTTP.ShutdownTimeout,
		Limiter: sc.cfg.Services.Limiter,
		Logger:  sc.logger,
	})
}
