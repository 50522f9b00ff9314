package httpx

import (
	"net/http"
	"strings"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
)

// Edge redirect rule names, used as metric labels.
const (
	EdgeRuleAdminSignIn      = "admin_sign_in"
	EdgeRuleAdminOnProtected = "admin_on_protected"
	EdgeRuleSignIn           = "sign_in"
	EdgeRuleSignedInOnLogin  = "signed_in_on_login"
	EdgeRuleAdminOnLogin     = "admin_on_login"
)

// EdgeRules holds the areas the edge filter protects. Paths are matched by
// whole segments, so "/admin" covers "/admin" and "/admin/users" but not "/administrator".
type EdgeRules struct {
	AdminArea      string
	AdminLoginPath string
	ProtectedAreas []string
	LoginPath      string
	RegisterPath   string
	HomePath       string
}

// DefaultEdgeRules returns the stock clinic layout.
func DefaultEdgeRules() EdgeRules {
	return EdgeRules{
		AdminArea:      "/admin",
		AdminLoginPath: "/admin/login",
		ProtectedAreas: []string{"/dashboard", "/appointments", "/consultations"},
		LoginPath:      "/login",
		RegisterPath:   "/register",
		HomePath:       "/dashboard",
	}
}

// EdgeObserver counts redirects per rule.
type EdgeObserver interface {
	ObserveEdgeRedirect(rule string)
}

// Evaluate applies the rules in order to a path and the presence of each
// session cookie. It returns the redirect target and rule name, or "" when
// the request passes through.
func (e EdgeRules) Evaluate(path string, hasAdmin, hasRegular bool) (string, string) {
	if underPath(path, e.AdminArea) && !underPath(path, e.AdminLoginPath) && !hasAdmin {
		return e.AdminLoginPath, EdgeRuleAdminSignIn
	}
	if e.protected(path) && !hasRegular {
		if hasAdmin {
			return e.AdminArea, EdgeRuleAdminOnProtected
		}
		return e.LoginPath, EdgeRuleSignIn
	}
	if underPath(path, e.LoginPath) || underPath(path, e.RegisterPath) {
		if hasRegular {
			return e.HomePath, EdgeRuleSignedInOnLogin
		}
		if hasAdmin {
			return e.AdminArea, EdgeRuleAdminOnLogin
		}
	}
	if underPath(path, e.AdminLoginPath) && hasAdmin {
		return e.AdminArea, EdgeRuleAdminOnLogin
	}
	return "", ""
}

func (e EdgeRules) protected(path string) bool {
	for _, area := range e.ProtectedAreas {
		if underPath(path, area) {
			return true
		}
	}
	return false
}

// underPath reports whether path equals prefix or continues it with a "/".
func underPath(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if prefix == "/" {
		return true
	}
	prefix = strings.TrimRight(prefix, "/")
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// EdgeFilter redirects on cookie presence alone, before any page handler or
// verification runs. It never reads cookie values.
func EdgeFilter(rules EdgeRules, obs EdgeObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target, rule := rules.Evaluate(r.URL.Path,
				hasCookie(r, domainauth.CookieAdmin),
				hasCookie(r, domainauth.CookieRegular))
			if target == "" || target == r.URL.Path {
				next.ServeHTTP(w, r)
				return
			}
			if obs != nil {
				obs.ObserveEdgeRedirect(rule)
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}

func hasCookie(r *http.Request, name string) bool {
	c, err := r.Cookie(name)
	return err == nil && c.Value != ""
}
