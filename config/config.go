package config

import (
	"errors"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Sessions, password hashing and admin SSO
//   - database.go: Postgres and Redis
//   - http.go: HTTP server, cookie and portal configuration
//   - observability.go: Metrics and rate limiting
//   - services.go: Service mode selection
type AppConfig struct {
	// IsDev controls development mode behavior (mock SSO allowed, insecure cookies on http).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	Auth AuthConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP   HTTPConfig
	Portal PortalConfig `envPrefix:"PORTAL_"`

	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Metrics   MetricsConfig   `envPrefix:"METRICS_"`

	// Services is a comma-delimited list of enabled services: api, portal.
	Services string `env:"SERVICES" envDefault:"api,portal"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectDevMode()

	c.Auth.Sanitize()
	c.HTTP.Sanitize()
	c.Portal.Sanitize()
	c.RateLimit.Sanitize()
	c.Metrics.Sanitize()
}

// Validate reports configuration that cannot be repaired by Sanitize.
func (c *AppConfig) Validate() error {
	services, err := c.GetEnabledServices()
	if err != nil {
		return err
	}
	var errs []error
	if err := c.HTTP.Validate(); err != nil {
		errs = append(errs, err)
	}
	if services[ServiceModeAPI] {
		if err := c.Auth.Validate(c.IsDev); err != nil {
			errs = append(errs, err)
		}
	}
	if services[ServiceModePortal] && !services[ServiceModeAPI] && c.Portal.APIBaseURL == "" {
		errs = append(errs, errors.New("PORTAL_API_BASE_URL is required when the portal runs without the api service"))
	}
	return errors.Join(errs...)
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsAPIEnabled returns true if the auth API is enabled.
func (c *AppConfig) IsAPIEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeAPI]
}

// IsPortalEnabled returns true if the portal is enabled.
func (c *AppConfig) IsPortalEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModePortal]
}
