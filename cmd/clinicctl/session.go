package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/medibook/clinic-gate/internal/adapters/authclient"
	"github.com/medibook/clinic-gate/internal/adapters/filestore"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
	"github.com/medibook/clinic-gate/internal/service"
)

const (
	envAPIURL      = "CLINICGATE_API_URL"
	envTokenFile   = "CLINICGATE_TOKEN_FILE"
	defaultAPIURL  = "http://localhost:8080"
	defaultTimeout = 5 * time.Second
)

var errAccessDenied = errors.New("access denied")

// sessionOptions are the flags shared by the session commands.
type sessionOptions struct {
	apiURL    string
	tokenFile string
	admin     bool
	timeout   time.Duration
	logger    *slog.Logger
}

func (o *sessionOptions) bindFlags(cmd *cobra.Command) {
	apiURL := os.Getenv(envAPIURL)
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	f := cmd.PersistentFlags()
	f.StringVar(&o.apiURL, "api-url", apiURL, "auth API origin (env "+envAPIURL+")")
	f.StringVar(&o.tokenFile, "token-file", os.Getenv(envTokenFile), "token file (env "+envTokenFile+", default in the user config dir)")
	f.BoolVar(&o.admin, "admin", false, "use the admin-console session")
	f.DurationVar(&o.timeout, "timeout", defaultTimeout, "per-request timeout")
}

func (o *sessionOptions) scope() domainauth.Scope {
	if o.admin {
		return domainauth.ScopeAdmin
	}
	return domainauth.ScopeRegular
}

// machine builds a session machine over the token file and the remote API.
func (o *sessionOptions) machine() (*service.SessionMachine, error) {
	path := o.tokenFile
	if path == "" {
		var err error
		if path, err = filestore.DefaultPath(); err != nil {
			return nil, err
		}
	}
	scope := o.scope()
	tokens := filestore.New(path, scope, o.logger)
	gateway, err := authclient.New(authclient.Config{
		BaseURL: o.apiURL,
		Scope:   scope,
		Tokens:  tokens,
		Timeout: o.timeout,
		Logger:  o.logger,
	})
	if err != nil {
		return nil, err
	}
	return service.NewSessionMachine(service.SessionMachineOptions{
		Gateway:       gateway,
		Tokens:        tokens,
		Scope:         scope,
		VerifyTimeout: o.timeout,
		Logger:        o.logger,
	}), nil
}

func loginCmd(o *sessionOptions) *cobra.Command {
	var (
		email         string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session in the token file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !passwordStdin {
				return errors.New("provide the password with --password-stdin")
			}
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			m, err := o.machine()
			if err != nil {
				return err
			}
			defer m.Close()

			err = m.Login(cmd.Context(), domainauth.Credentials{Email: email, Password: password})
			switch {
			case err == nil:
			case apperrors.IsUnauthorized(err):
				return errors.New("invalid email or password")
			case apperrors.IsValidation(err):
				return err
			default:
				return fmt.Errorf("sign-in is temporarily unavailable: %w", err)
			}
			st := m.State()
			printf(cmd.OutOrStdout(), "Signed in as %s\n", describePrincipal(*st.Principal))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd(o *sessionOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := o.machine()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Logout(cmd.Context()); err != nil {
				printf(cmd.ErrOrStderr(), "warning: server logout failed: %v\n", err)
			}
			printf(cmd.OutOrStdout(), "Signed out\n")
			return nil
		},
	}
}

func whoamiCmd(o *sessionOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Verify the stored session and print the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := o.machine()
			if err != nil {
				return err
			}
			defer m.Close()
			st := m.Bootstrap(cmd.Context())
			out := cmd.OutOrStdout()
			if !st.IsAuthenticated() {
				printf(out, "Not signed in (%s)\n", reasonText(st.Reason))
				return nil
			}
			printf(out, "%s\n", describePrincipal(*st.Principal))
			if !st.Verified {
				printf(out, "Working offline: the server could not confirm this session.\n")
			}
			return nil
		},
	}
}

func guardCmd(o *sessionOptions) *cobra.Command {
	var (
		path string
		role string
	)
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Show what the route guard decides for a path with the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Roles match exactly; "patient" is not PATIENT.
			required := domainauth.Role(strings.TrimSpace(role))
			if required != "" && !required.Valid() {
				return apperrors.ValidationField("role", "role must be one of: ADMIN, DOCTOR, PATIENT")
			}
			m, err := o.machine()
			if err != nil {
				return err
			}
			defer m.Close()

			loginPath := "/login"
			if o.admin {
				loginPath = "/admin/login"
			}
			d := domainauth.Decide(m.Bootstrap(cmd.Context()), domainauth.Route{
				RequiredRole:  required,
				RequestedPath: path,
				LoginPath:     loginPath,
			})
			out := cmd.OutOrStdout()
			switch d.Kind {
			case domainauth.DecisionAllow:
				printf(out, "allow %s\n", describePrincipal(*d.Principal))
				return nil
			case domainauth.DecisionRedirect:
				printf(out, "redirect %s\n", d.Target)
			case domainauth.DecisionForbidden:
				printf(out, "forbidden %s\n", describePrincipal(*d.Principal))
			case domainauth.DecisionShowLoading:
				printf(out, "loading\n")
			}
			return errAccessDenied
		},
	}
	cmd.Flags().StringVar(&path, "path", "/", "requested path")
	cmd.Flags().StringVar(&role, "role", "", "required role (empty means any signed-in role)")
	return cmd
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", apperrors.ValidationField("password", "password is required and cannot be empty")
	}
	return line, nil
}

func describePrincipal(p domainauth.Principal) string {
	name := p.DisplayName
	if name == "" {
		name = p.Email
	}
	return fmt.Sprintf("%s <%s> (%s)", name, p.Email, p.Role)
}

func reasonText(reason string) string {
	switch reason {
	case domainauth.ReasonUnauthorized:
		return "session expired or revoked"
	case domainauth.ReasonNetwork:
		return "auth service unreachable"
	case domainauth.ReasonLoggedOut:
		return "signed out"
	default:
		return "no session"
	}
}
