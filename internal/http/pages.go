package httpx

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
)

// Page names.
const (
	PageLogin         = "login"
	PageAdminLogin    = "admin-login"
	PageRegister      = "register"
	PageDashboard     = "dashboard"
	PageAppointments  = "appointments"
	PageConsultations = "consultations"
	PageAdmin         = "admin"
	PageForbidden     = "forbidden"
	PageLoading       = "loading"
	PageUnavailable   = "unavailable"
	PageNotFound      = "not-found"
)

// PageData is the view model shared by all portal pages.
type PageData struct {
	Title       string
	Principal   *domainauth.Principal
	Unverified  bool
	Error       string
	Email       string
	RedirectURI string
	FormAction  string
	LogoutPath  string
	SSOEnabled  bool
}

const layoutTemplate = `{{define "layout"}}<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Data.Title}}</title></head>
<body>
{{with .Data.Principal}}<header><span>{{if .DisplayName}}{{.DisplayName}}{{else}}{{.Email}}{{end}} ({{.Role}})</span>
<form method="post" action="{{$.Data.LogoutPath}}"><button type="submit">Sign out</button></form></header>{{end}}
{{if .Data.Unverified}}<p role="status">Working offline: your session could not be confirmed.</p>{{end}}
<main>{{template "content" .Data}}</main>
</body>
</html>{{end}}`

const loginForm = `{{define "content"}}<h1>{{.Title}}</h1>
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form method="post" action="{{.FormAction}}">
<input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
<label>Email <input type="email" name="email" value="{{.Email}}" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Sign in</button>
</form>
{{if .SSOEnabled}}<a href="/auth/admin/sso/login?redirect_uri={{.RedirectURI}}">Sign in with SSO</a>{{end}}{{end}}`

//nolint:gochecknoglobals // static read-only page bodies
var pageBodies = map[string]string{
	PageLogin:         loginForm,
	PageAdminLogin:    loginForm,
	PageRegister:      `{{define "content"}}<h1>{{.Title}}</h1><p>Registration is handled by the clinic front desk.</p><a href="/login">Sign in</a>{{end}}`,
	PageDashboard:     `{{define "content"}}<h1>{{.Title}}</h1>{{end}}`,
	PageAppointments:  `{{define "content"}}<h1>{{.Title}}</h1>{{end}}`,
	PageConsultations: `{{define "content"}}<h1>{{.Title}}</h1>{{end}}`,
	PageAdmin:         `{{define "content"}}<h1>{{.Title}}</h1>{{end}}`,
	PageForbidden:     `{{define "content"}}<h1>{{.Title}}</h1><p>Your account does not have access to this page.</p>{{end}}`,
	PageLoading:       `{{define "content"}}<p>{{.Title}}</p>{{end}}`,
	PageUnavailable:   `{{define "content"}}<h1>{{.Title}}</h1><p>{{.Error}}</p><a href="{{.RedirectURI}}">Try again</a>{{end}}`,
	PageNotFound:      `{{define "content"}}<h1>{{.Title}}</h1><a href="/">Home</a>{{end}}`,
}

// Pages renders the portal's minimal HTML shells.
type Pages struct {
	templates map[string]*template.Template
	logger    *slog.Logger
}

var _ GuardViews = (*Pages)(nil)

// NewPages parses every page template once.
func NewPages(logger *slog.Logger) (*Pages, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pages{templates: make(map[string]*template.Template, len(pageBodies)), logger: logger}
	for name, body := range pageBodies {
		t, err := template.New(name).Parse(layoutTemplate)
		if err != nil {
			return nil, err
		}
		if _, err := t.Parse(body); err != nil {
			return nil, err
		}
		p.templates[name] = t
	}
	return p, nil
}

// Render writes page with status. Template failures become a plain 500.
func (p *Pages) Render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	t, ok := p.templates[page]
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", struct {
		Page string
		Data PageData
	}{Page: page, Data: data}); err != nil {
		p.logger.ErrorContext(r.Context(), "render page", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Forbidden renders the inline access-denied view.
func (p *Pages) Forbidden(w http.ResponseWriter, r *http.Request, principal *domainauth.Principal) {
	p.Render(w, r, http.StatusForbidden, PageForbidden, PageData{Title: "Access denied", Principal: principal, LogoutPath: "/logout"})
}

// Loading renders a placeholder while verification is pending. The 503 and
// Retry-After leave retrying to the client.
func (p *Pages) Loading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", sessionRetryAfter)
	p.Render(w, r, http.StatusServiceUnavailable, PageLoading, PageData{Title: "Checking your session..."})
}

// Unavailable renders the retry view shown when the session could not be
// verified because the auth backend was unreachable.
func (p *Pages) Unavailable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", sessionRetryAfter)
	p.Render(w, r, http.StatusServiceUnavailable, PageUnavailable, PageData{
		Title:       "Service unavailable",
		Error:       "The sign-in service is unavailable. Please try again shortly.",
		RedirectURI: domainauth.SafeRedirectPath(r.URL.RequestURI()),
	})
}
