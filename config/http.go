package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain. Public suffixes are rejected.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// CookieSecure overrides the Secure attribute: "auto" follows the request scheme.
	CookieSecure string `env:"APP_COOKIE_SECURE" envDefault:"auto"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.CookieDomain = strings.ToLower(strings.TrimSpace(h.CookieDomain))
	h.CookieSecure = strings.ToLower(strings.TrimSpace(h.CookieSecure))
	switch h.CookieSecure {
	case "true", "false":
	default:
		h.CookieSecure = "auto"
	}
	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 5 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
}

// Validate rejects a cookie domain that would share cookies across unrelated sites.
func (h *HTTPConfig) Validate() error {
	return ValidateCookieDomain(h.CookieDomain)
}

// SecureOverride returns nil for "auto" and the forced value otherwise.
func (h *HTTPConfig) SecureOverride() *bool {
	switch h.CookieSecure {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	default:
		return nil
	}
}

// ValidateCookieDomain accepts an empty domain (host-only cookies) or a
// registrable domain. Public suffixes such as "com" or "github.io" are rejected.
func ValidateCookieDomain(domain string) error {
	d := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if d == "" {
		return nil
	}
	if strings.ContainsAny(d, "/: ") {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q must be a bare host name", domain)
	}
	suffix, icann := publicsuffix.PublicSuffix(d)
	if suffix == d && (icann || strings.Contains(d, ".")) {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q is a public suffix", domain)
	}
	return nil
}

// PortalConfig configures the page-serving front door.
type PortalConfig struct {
	// APIBaseURL points the portal at a remote auth API. Empty means the
	// in-process API is used when the api service runs alongside.
	APIBaseURL string `env:"API_BASE_URL"`

	// VerifyTimeout bounds each session verification.
	VerifyTimeout time.Duration `env:"VERIFY_TIMEOUT" envDefault:"5s"`

	// LocalCopyTTL bounds how long a mirrored principal is kept for network fallback.
	LocalCopyTTL time.Duration `env:"LOCAL_COPY_TTL" envDefault:"24h"`

	AdminArea      string   `env:"ADMIN_AREA"       envDefault:"/admin"`
	AdminLoginPath string   `env:"ADMIN_LOGIN_PATH" envDefault:"/admin/login"`
	ProtectedAreas []string `env:"PROTECTED_AREAS"  envDefault:"/dashboard,/appointments,/consultations"`
	LoginPath      string   `env:"LOGIN_PATH"       envDefault:"/login"`
	RegisterPath   string   `env:"REGISTER_PATH"    envDefault:"/register"`
	HomePath       string   `env:"HOME_PATH"        envDefault:"/dashboard"`
}

// Sanitize normalizes paths and clamps timeouts.
func (p *PortalConfig) Sanitize() {
	p.APIBaseURL = strings.TrimRight(strings.TrimSpace(p.APIBaseURL), "/")
	if p.APIBaseURL != "" {
		if u, err := url.Parse(p.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			p.APIBaseURL = ""
		}
	}
	if p.VerifyTimeout <= 0 {
		p.VerifyTimeout = 5 * time.Second
	}
	if p.VerifyTimeout > time.Minute {
		p.VerifyTimeout = time.Minute
	}
	if p.LocalCopyTTL < time.Minute {
		p.LocalCopyTTL = time.Minute
	}
	p.AdminArea = cleanPath(p.AdminArea, "/admin")
	p.AdminLoginPath = cleanPath(p.AdminLoginPath, "/admin/login")
	p.LoginPath = cleanPath(p.LoginPath, "/login")
	p.RegisterPath = cleanPath(p.RegisterPath, "/register")
	p.HomePath = cleanPath(p.HomePath, "/dashboard")

	areas := make([]string, 0, len(p.ProtectedAreas))
	for _, a := range p.ProtectedAreas {
		if a = cleanPath(a, ""); a != "" && a != "/" {
			areas = append(areas, a)
		}
	}
	p.ProtectedAreas = areas
}

func cleanPath(p, fallback string) string {
	p = strings.TrimSpace(p)
	if p == "" || !strings.HasPrefix(p, "/") {
		return fallback
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
