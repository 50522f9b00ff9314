package httpx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
)

// PortalConfig wires the page-serving front door.
type PortalConfig struct {
	Sessions   MachineFactory
	Pages      *Pages
	Edge       EdgeRules
	SSOEnabled bool
	Decisions  DecisionObserver
	Logger     *slog.Logger
}

type portalHandlers struct {
	cfg    PortalConfig
	logger *slog.Logger
}

// RegisterPortalRoutes mounts the public, patient, doctor and admin pages.
// The edge filter is applied by the caller ahead of the router.
func RegisterPortalRoutes(r chi.Router, cfg PortalConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &portalHandlers{cfg: cfg, logger: logger}
	e := cfg.Edge

	guard := func(scope domainauth.Scope, role domainauth.Role, loginPath string) func(http.Handler) http.Handler {
		return RouteGuard(GuardConfig{
			Sessions: cfg.Sessions,
			Scope:    scope,
			Route:    domainauth.Route{RequiredRole: role, LoginPath: loginPath},
			Views:    cfg.Pages,
			Observer: cfg.Decisions,
			Logger:   logger,
		})
	}
	anyRole := guard(domainauth.ScopeRegular, "", e.LoginPath)
	patient := guard(domainauth.ScopeRegular, domainauth.RolePatient, e.LoginPath)
	doctor := guard(domainauth.ScopeRegular, domainauth.RoleDoctor, e.LoginPath)
	admin := guard(domainauth.ScopeAdmin, domainauth.RoleAdmin, e.AdminLoginPath)

	r.Get(e.LoginPath, h.loginPage(domainauth.ScopeRegular))
	r.Post(e.LoginPath, h.submitLogin(domainauth.ScopeRegular))
	r.Get(e.RegisterPath, h.page(PageRegister, "Create an account", ""))
	r.Post("/logout", h.logout(domainauth.ScopeRegular))

	r.Get(e.AdminLoginPath, h.loginPage(domainauth.ScopeAdmin))
	r.Post(e.AdminLoginPath, h.submitLogin(domainauth.ScopeAdmin))
	r.Post(e.AdminArea+"/logout", h.logout(domainauth.ScopeAdmin))

	r.With(anyRole).Get(e.HomePath, h.page(PageDashboard, "Dashboard", "/logout"))
	r.With(patient).Get("/appointments", h.page(PageAppointments, "My appointments", "/logout"))
	r.With(doctor).Get("/consultations", h.page(PageConsultations, "Consultations", "/logout"))
	r.With(admin).Get(e.AdminArea, h.page(PageAdmin, "Clinic administration", e.AdminArea+"/logout"))
	r.With(admin).Get(e.AdminArea+"/*", h.page(PageAdmin, "Clinic administration", e.AdminArea+"/logout"))
}

func (h *portalHandlers) loginPath(scope domainauth.Scope) string {
	if scope == domainauth.ScopeAdmin {
		return h.cfg.Edge.AdminLoginPath
	}
	return h.cfg.Edge.LoginPath
}

func (h *portalHandlers) landing(scope domainauth.Scope) string {
	if scope == domainauth.ScopeAdmin {
		return h.cfg.Edge.AdminArea
	}
	return h.cfg.Edge.HomePath
}

func (h *portalHandlers) loginData(scope domainauth.Scope, redirect string) PageData {
	d := PageData{Title: "Sign in", FormAction: h.loginPath(scope)}
	if scope == domainauth.ScopeAdmin {
		d.Title = "Administrator sign in"
		d.SSOEnabled = h.cfg.SSOEnabled
	}
	if p := domainauth.SafeRedirectPath(redirect); p != "/" {
		d.RedirectURI = p
	}
	return d
}

func (h *portalHandlers) loginPage(scope domainauth.Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := h.loginData(scope, r.URL.Query().Get("redirect_uri"))
		page := PageLogin
		if scope == domainauth.ScopeAdmin {
			page = PageAdminLogin
		}
		h.cfg.Pages.Render(w, r, http.StatusOK, page, data)
	}
}

func (h *portalHandlers) submitLogin(scope domainauth.Scope) http.HandlerFunc {
	page := PageLogin
	if scope == domainauth.ScopeAdmin {
		page = PageAdminLogin
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			h.cfg.Pages.Render(w, r, http.StatusBadRequest, page, h.loginData(scope, ""))
			return
		}
		creds := domainauth.Credentials{Email: r.PostForm.Get("email"), Password: r.PostForm.Get("password")}
		data := h.loginData(scope, r.PostForm.Get("redirect_uri"))
		data.Email = creds.Email

		m, err := h.cfg.Sessions.Machine(w, r, scope)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "portal login: build session machine", "error", err)
			data.Error = "Sign-in is temporarily unavailable. Please try again."
			h.cfg.Pages.Render(w, r, http.StatusInternalServerError, page, data)
			return
		}
		defer m.Close()

		err = m.Login(r.Context(), creds)
		switch {
		case err == nil:
			target := data.RedirectURI
			if target == "" {
				target = h.landing(scope)
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
		case apperrors.IsValidation(err):
			data.Error = err.Error()
			h.cfg.Pages.Render(w, r, http.StatusBadRequest, page, data)
		case apperrors.IsUnauthorized(err):
			data.Error = "Invalid email or password."
			h.cfg.Pages.Render(w, r, http.StatusUnauthorized, page, data)
		default:
			h.logger.WarnContext(r.Context(), "portal login failed", "scope", string(scope), "error", err)
			data.Error = "Sign-in is temporarily unavailable. Please try again."
			h.cfg.Pages.Render(w, r, http.StatusServiceUnavailable, page, data)
		}
	}
}

func (h *portalHandlers) logout(scope domainauth.Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := h.cfg.Sessions.Machine(w, r, scope)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "portal logout: build session machine", "error", err)
			http.Redirect(w, r, h.loginPath(scope), http.StatusSeeOther)
			return
		}
		defer m.Close()
		if err := m.Logout(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "portal logout: server call failed", "scope", string(scope), "error", err)
		}
		http.Redirect(w, r, h.loginPath(scope), http.StatusSeeOther)
	}
}

func (h *portalHandlers) page(name, title, logoutPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := PageData{Title: title, LogoutPath: logoutPath}
		if st, ok := AuthStateFromContext(r.Context()); ok && st.IsAuthenticated() {
			p := *st.Principal
			data.Principal = &p
			data.Unverified = !st.Verified
		}
		h.cfg.Pages.Render(w, r, http.StatusOK, name, data)
	}
}
