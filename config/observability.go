package config

import (
	"strings"
	"time"
)

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH"    envDefault:"/metrics"`
}

// Sanitize normalises the metrics path.
func (c *MetricsConfig) Sanitize() {
	c.Path = strings.TrimSpace(c.Path)
	if !strings.HasPrefix(c.Path, "/") {
		c.Path = "/metrics"
	}
}

// RateLimitConfig bounds login attempts per client IP.
type RateLimitConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// LoginPerMinute is the sustained login rate per client IP.
	LoginPerMinute float64 `env:"LOGIN_PER_MINUTE" envDefault:"10"`
	Burst          int     `env:"BURST"            envDefault:"5"`
	// IdleTTL drops per-IP limiters not used for this long.
	IdleTTL time.Duration `env:"IDLE_TTL" envDefault:"10m"`
}

// Sanitize enforces positive limits.
func (c *RateLimitConfig) Sanitize() {
	if c.LoginPerMinute <= 0 {
		c.LoginPerMinute = 10
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.IdleTTL < time.Minute {
		c.IdleTTL = time.Minute
	}
}
