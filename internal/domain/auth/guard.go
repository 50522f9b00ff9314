package auth

import (
	"net/url"
	"strings"
)

// DecisionKind is what a guarded route should do for the current state.
type DecisionKind string

const (
	DecisionAllow       DecisionKind = "allow"
	DecisionShowLoading DecisionKind = "show_loading"
	DecisionRedirect    DecisionKind = "redirect"
	// DecisionForbidden renders an inline forbidden view; it is not a redirect.
	DecisionForbidden DecisionKind = "forbidden"
)

// Route describes a guarded route.
type Route struct {
	// RequiredRole is the exact role required; empty means any authenticated role.
	RequiredRole Role
	// RequestedPath is preserved in the login redirect so the login flow can return there.
	RequestedPath string
	// LoginPath is where unauthenticated users are sent. Defaults to "/login".
	LoginPath string
}

// Decision is derived from a State and a Route; it is never stored.
type Decision struct {
	Kind      DecisionKind
	Target    string     // redirect target, set for DecisionRedirect
	Principal *Principal // set for DecisionAllow and DecisionForbidden
}

// Decide is the route guard decision table:
//
//	Verifying                           -> ShowLoading
//	Unauthenticated                     -> Redirect(login?redirect_uri=<path>)
//	Authenticated, role != required     -> Forbidden
//	Authenticated, role == required/any -> Allow
func Decide(state State, route Route) Decision {
	switch state.Status {
	case StatusVerifying:
		return Decision{Kind: DecisionShowLoading}
	case StatusAuthenticated:
		if state.Principal == nil {
			break
		}
		p := *state.Principal
		if route.RequiredRole != "" && !p.HasRole(route.RequiredRole) {
			return Decision{Kind: DecisionForbidden, Principal: &p}
		}
		return Decision{Kind: DecisionAllow, Principal: &p}
	}
	return Decision{Kind: DecisionRedirect, Target: LoginRedirect(route.LoginPath, route.RequestedPath)}
}

// LoginRedirect builds the login URL carrying the originally requested path.
func LoginRedirect(loginPath, requested string) string {
	if loginPath == "" {
		loginPath = "/login"
	}
	requested = SafeRedirectPath(requested)
	if requested == "/" {
		return loginPath
	}
	q := url.Values{}
	q.Set("redirect_uri", requested)
	return loginPath + "?" + q.Encode()
}

// SafeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute or scheme-relative URL. Returns "/" when invalid.
func SafeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	if strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, `/\`) {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}
