// Package authclient is the HTTP client side of the auth API.
// It implements ports.SessionGateway for one scope.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
	"github.com/medibook/clinic-gate/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds each call; expiry is reported as a network error.
	DefaultTimeout = 5 * time.Second

	tracerName   = "github.com/medibook/clinic-gate/authclient"
	maxBodyBytes = 1 << 20
)

// Config configures a Client.
type Config struct {
	// BaseURL is the auth API origin, e.g. "https://api.clinic.test".
	BaseURL string
	Scope   domainauth.Scope
	// Tokens supplies the session token sent as the scope's cookie and
	// receives the cookie issued by a successful login.
	Tokens     ports.TokenStore
	Timeout    time.Duration
	HTTPClient *http.Client
	Tracer     trace.Tracer
	Logger     *slog.Logger
}

// Client calls the login, verify and logout endpoints for one scope.
type Client struct {
	base    *url.URL
	scope   domainauth.Scope
	tokens  ports.TokenStore
	timeout time.Duration
	http    *http.Client
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("authclient: base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("authclient: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Tokens == nil {
		return nil, errors.New("authclient: token store is required")
	}
	scope := cfg.Scope
	if scope == "" {
		scope = domainauth.ScopeRegular
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("authclient: unknown scope %q", scope)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:    u,
		scope:   scope,
		tokens:  cfg.Tokens,
		timeout: timeout,
		http:    hc,
		tracer:  tracer,
		logger:  logger.With("component", "authclient", "scope", string(scope)),
	}, nil
}

// Scope returns the scope this client speaks for.
func (c *Client) Scope() domainauth.Scope { return c.scope }

func (c *Client) endpoint(op string) string {
	prefix := "/auth/"
	if c.scope == domainauth.ScopeAdmin {
		prefix = "/auth/admin/"
	}
	return c.base.String() + prefix + op
}

// Verify asks the server whether the stored session token is still valid.
// A missing session token is unauthorized without a round trip.
func (c *Client) Verify(ctx context.Context) (domainauth.Principal, error) {
	tok, ok := c.tokens.Read(ctx, domainauth.TokenSession)
	if !ok || tok.Value == "" {
		return domainauth.Principal{}, apperrors.Unauthorized("no session token")
	}
	var p domainauth.Principal
	err := c.do(ctx, call{op: "verify", method: http.MethodGet, session: tok.Value}, func(resp *http.Response) error {
		var decErr error
		p, decErr = decodePrincipal(resp.Body)
		return decErr
	})
	return p, err
}

// Login posts credentials and stores the issued session cookie.
func (c *Client) Login(ctx context.Context, creds domainauth.Credentials) (domainauth.Principal, error) {
	if err := creds.Validate(); err != nil {
		return domainauth.Principal{}, err
	}
	body, err := json.Marshal(map[string]string{
		"email":    strings.TrimSpace(creds.Email),
		"password": creds.Password,
	})
	if err != nil {
		return domainauth.Principal{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode credentials")
	}

	var p domainauth.Principal
	err = c.do(ctx, call{op: "login", method: http.MethodPost, body: body}, func(resp *http.Response) error {
		var decErr error
		if p, decErr = decodePrincipal(resp.Body); decErr != nil {
			return decErr
		}
		session := sessionCookie(resp, c.scope.CookieName())
		if session == "" {
			return apperrors.Network(nil, "login response did not set a session cookie")
		}
		if wErr := c.tokens.Write(ctx, domainauth.TokenSession, domainauth.Token{Value: session}); wErr != nil {
			c.logger.WarnContext(ctx, "store session token", "error", wErr)
		}
		return nil
	})
	return p, err
}

// Logout asks the server to end the session. The local token is left to the caller.
func (c *Client) Logout(ctx context.Context) error {
	tok, _ := c.tokens.Read(ctx, domainauth.TokenSession)
	return c.do(ctx, call{op: "logout", method: http.MethodPost, session: tok.Value}, func(resp *http.Response) error {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil
	})
}

type call struct {
	op      string
	method  string
	session string
	body    []byte
}

func (c *Client) do(ctx context.Context, in call, onOK func(*http.Response) error) (err error) {
	ctx, span := c.tracer.Start(ctx, "authclient."+in.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("auth.scope", string(c.scope)),
			attribute.String("http.request.method", in.method),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperrors.GetCode(err)))
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in.body != nil {
		body = bytes.NewReader(in.body)
	}
	req, err := http.NewRequestWithContext(ctx, in.method, c.endpoint(in.op), body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if in.session != "" {
		req.AddCookie(&http.Cookie{Name: c.scope.CookieName(), Value: in.session})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Network(err, "auth service unreachable")
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusOK {
		return onOK(resp)
	}
	return statusError(in.op, resp)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusError normalizes a non-200 response. Only 401 means the session is gone.
func statusError(op string, resp *http.Response) error {
	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&eb)
	msg := eb.Message

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if msg == "" {
			msg = "authentication required"
		}
		return apperrors.Unauthorized(msg)
	case resp.StatusCode == http.StatusBadRequest && op == "login":
		if msg == "" {
			msg = "invalid login request"
		}
		return apperrors.Validation(msg)
	case resp.StatusCode == http.StatusForbidden:
		if msg == "" {
			msg = "access denied"
		}
		return apperrors.Forbidden(msg)
	default:
		return apperrors.Network(
			fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode),
			"auth service returned an unexpected response",
		)
	}
}

type principalBody struct {
	User *domainauth.Principal `json:"user"`
}

// decodePrincipal reads {"user": Principal}. A principal without a valid role is rejected.
func decodePrincipal(r io.Reader) (domainauth.Principal, error) {
	var pb principalBody
	if err := json.NewDecoder(io.LimitReader(r, maxBodyBytes)).Decode(&pb); err != nil {
		return domainauth.Principal{}, apperrors.Network(err, "malformed auth response")
	}
	if pb.User == nil {
		return domainauth.Principal{}, apperrors.Network(nil, "auth response has no user")
	}
	if err := pb.User.Validate(); err != nil {
		return domainauth.Principal{}, apperrors.Network(err, "auth response has an invalid user")
	}
	return *pb.User, nil
}

func sessionCookie(resp *http.Response, name string) string {
	for _, ck := range resp.Cookies() {
		if ck.Name == name && ck.Value != "" && ck.MaxAge >= 0 {
			return ck.Value
		}
	}
	return ""
}
