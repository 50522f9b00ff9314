package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
	mockauth "github.com/medibook/clinic-gate/internal/mocks/auth"
	"github.com/medibook/clinic-gate/internal/ports"
)

var (
	patient = domainauth.Principal{ID: "p1", Email: "pat@clinic.test", Role: domainauth.RolePatient, IsActive: true, DisplayName: "Pat"}
	doctor  = domainauth.Principal{ID: "d1", Email: "doc@clinic.test", Role: domainauth.RoleDoctor, IsActive: true}
	admin   = domainauth.Principal{ID: "a1", Email: "root@clinic.test", Role: domainauth.RoleAdmin, IsActive: true}
)

// backend scripts one gateway per scope. Each machine rebinds it to the
// request's token store, so tests must not run requests in parallel.
type backend struct {
	regular *mockauth.ScriptedGateway
	admin   *mockauth.ScriptedGateway
}

func newBackend() *backend {
	return &backend{
		regular: &mockauth.ScriptedGateway{IssuedToken: "tok-new"},
		admin:   &mockauth.ScriptedGateway{IssuedToken: "adm-new"},
	}
}

func (b *backend) gateway(scope domainauth.Scope, tokens ports.TokenStore) (ports.SessionGateway, error) {
	g := b.regular
	if scope == domainauth.ScopeAdmin {
		g = b.admin
	}
	g.Tokens = tokens
	return g, nil
}

func verifiesAs(p domainauth.Principal) func(context.Context) (domainauth.Principal, error) {
	return func(context.Context) (domainauth.Principal, error) { return p, nil }
}

func verifyFails(err error) func(context.Context) (domainauth.Principal, error) {
	return func(context.Context) (domainauth.Principal, error) { return domainauth.Principal{}, err }
}

func networkDown() error { return apperrors.Network(context.DeadlineExceeded, "auth backend unreachable") }

func newFactory(b *backend, client redis.UniversalClient) *SessionFactory {
	return &SessionFactory{
		Gateway:       b.gateway,
		Redis:         client,
		LocalTTL:      time.Hour,
		VerifyTimeout: time.Second,
	}
}

func newTestPages(t *testing.T) *Pages {
	t.Helper()
	p, err := NewPages(nil)
	require.NoError(t, err)
	return p
}

func newPortalRouter(t *testing.T, b *backend, client redis.UniversalClient) http.Handler {
	t.Helper()
	return NewRouter(RouterDeps{
		Portal: &PortalConfig{
			Sessions: newFactory(b, client),
			Pages:    newTestPages(t),
			Edge:     DefaultEdgeRules(),
		},
	})
}

func withCookie(r *http.Request, name, value string) *http.Request {
	r.AddCookie(&http.Cookie{Name: name, Value: value})
	return r
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type decisionCounter struct {
	kinds []domainauth.DecisionKind
}

func (d *decisionCounter) ObserveDecision(kind domainauth.DecisionKind) {
	d.kinds = append(d.kinds, kind)
}
