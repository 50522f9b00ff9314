package httpx

import (
	"context"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
)

// stateKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type stateKey struct{}

// SetAuthStateInContext returns a child context carrying the guard's auth state.
func SetAuthStateInContext(ctx context.Context, st domainauth.State) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

// AuthStateFromContext returns the auth state stored by RouteGuard.
func AuthStateFromContext(ctx context.Context) (domainauth.State, bool) {
	st, ok := ctx.Value(stateKey{}).(domainauth.State)
	return st, ok
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*domainauth.Principal, bool) {
	st, ok := AuthStateFromContext(ctx)
	if !ok || !st.IsAuthenticated() {
		return nil, false
	}
	p := *st.Principal
	return &p, true
}
