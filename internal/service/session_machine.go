package service

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	apperrors "github.com/medibook/clinic-gate/internal/errors"
	"github.com/medibook/clinic-gate/internal/ports"
	"golang.org/x/sync/singleflight"
)

// DefaultVerifyTimeout bounds one verification; expiry counts as a network error.
const DefaultVerifyTimeout = 5 * time.Second

// Verify outcomes reported to a MachineObserver.
const (
	VerifyOK           = "ok"
	VerifyUnauthorized = "unauthorized"
	VerifyNetwork      = "network_error"
	VerifyStale        = "stale"
)

// MachineObserver receives verification outcomes and state transitions.
type MachineObserver interface {
	ObserveVerify(scope domainauth.Scope, outcome string, elapsed time.Duration)
	ObserveTransition(scope domainauth.Scope, to domainauth.Status, reason string)
}

// SessionMachineOptions configures a SessionMachine.
type SessionMachineOptions struct {
	Gateway       ports.SessionGateway
	Tokens        ports.TokenStore
	Scope         domainauth.Scope
	VerifyTimeout time.Duration
	Logger        *slog.Logger
	Observer      MachineObserver
}

// SessionMachine owns the auth state for one scope of one client (a CLI
// profile or a portal request). It is safe for concurrent use.
//
// Concurrent Bootstrap calls share one verification. Login and Logout bump a
// generation counter; a verification that finishes under an older generation
// is discarded.
type SessionMachine struct {
	gateway  ports.SessionGateway
	tokens   ports.TokenStore
	scope    domainauth.Scope
	timeout  time.Duration
	logger   *slog.Logger
	observer MachineObserver

	flight singleflight.Group
	// seq orders state-changing work, including the token store calls that go with it.
	seq sync.Mutex

	mu      sync.Mutex
	state   domainauth.State
	gen     uint64
	subs    map[int]chan domainauth.State
	nextSub int
	closed  bool
}

// NewSessionMachine returns a machine in the Verifying state.
func NewSessionMachine(opts SessionMachineOptions) *SessionMachine {
	m := &SessionMachine{
		gateway:  opts.Gateway,
		tokens:   opts.Tokens,
		scope:    opts.Scope,
		timeout:  opts.VerifyTimeout,
		logger:   opts.Logger,
		observer: opts.Observer,
		state:    domainauth.Verifying(),
		subs:     make(map[int]chan domainauth.State),
	}
	if m.scope == "" {
		m.scope = domainauth.ScopeRegular
	}
	if m.timeout <= 0 {
		m.timeout = DefaultVerifyTimeout
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "session_machine", "scope", string(m.scope))
	return m
}

// State returns the current state.
func (m *SessionMachine) State() domainauth.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Scope returns the scope the machine was built for.
func (m *SessionMachine) Scope() domainauth.Scope { return m.scope }

func (m *SessionMachine) generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// bump starts a new generation, invalidating in-flight verifications.
func (m *SessionMachine) bump() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	return m.gen
}

// set replaces the state and notifies subscribers when it changed.
func (m *SessionMachine) set(next domainauth.State) {
	m.mu.Lock()
	if m.state.Equal(next) {
		m.mu.Unlock()
		return
	}
	m.state = next
	if !m.closed {
		for _, ch := range m.subs {
			deliverLatest(ch, next)
		}
	}
	m.mu.Unlock()

	m.logger.Debug("auth state changed", "status", string(next.Status), "reason", next.Reason, "verified", next.Verified)
	if m.observer != nil {
		m.observer.ObserveTransition(m.scope, next.Status, next.Reason)
	}
}

// deliverLatest replaces any undelivered value so a slow reader sees only the newest state.
func deliverLatest(ch chan domainauth.State, s domainauth.State) {
	select {
	case <-ch:
	default:
	}
	ch <- s
}

// Subscribe returns a channel that receives the current state and every later
// change. Only the latest undelivered state is kept. The channel is closed by
// cancel or Close.
func (m *SessionMachine) Subscribe() (<-chan domainauth.State, func()) {
	ch := make(chan domainauth.State, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
		})
	}
}

// Close releases all subscribers. The machine keeps answering State.
func (m *SessionMachine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

// Bootstrap verifies the session and returns the resulting state. Callers that
// arrive while a verification is running wait for it instead of starting another.
// If ctx ends first, Bootstrap returns the current state; the shared
// verification still completes and applies.
func (m *SessionMachine) Bootstrap(ctx context.Context) domainauth.State {
	gen := m.generation()
	ch := m.flight.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return m.verify(context.WithoutCancel(ctx), gen), nil
	})
	select {
	case res := <-ch:
		if st, ok := res.Val.(domainauth.State); ok {
			return st
		}
		return m.State()
	case <-ctx.Done():
		return m.State()
	}
}

func (m *SessionMachine) verify(ctx context.Context, gen uint64) domainauth.State {
	m.seq.Lock()
	if m.generation() == gen {
		m.set(domainauth.Verifying())
	}
	m.seq.Unlock()

	vctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	start := time.Now()
	p, err := m.gateway.Verify(vctx)
	elapsed := time.Since(start)

	m.seq.Lock()
	defer m.seq.Unlock()
	if m.generation() != gen {
		m.observeVerify(VerifyStale, elapsed)
		m.logger.DebugContext(ctx, "discarding stale verification")
		return m.State()
	}

	switch {
	case err == nil:
		m.observeVerify(VerifyOK, elapsed)
		m.writeLocal(ctx, p)
		m.set(domainauth.Authenticated(p, true))
	case apperrors.IsUnauthorized(err):
		m.observeVerify(VerifyUnauthorized, elapsed)
		m.clear(ctx, domainauth.TokenLocal)
		m.clear(ctx, domainauth.TokenSession)
		m.set(domainauth.Unauthenticated(domainauth.ReasonUnauthorized))
	default:
		m.observeVerify(VerifyNetwork, elapsed)
		m.logger.WarnContext(ctx, "session verification failed", "error", err)
		if tok, ok := m.tokens.Read(ctx, domainauth.TokenLocal); ok && tok.Principal != nil {
			m.set(domainauth.Authenticated(*tok.Principal, false))
		} else {
			m.set(domainauth.Unauthenticated(domainauth.ReasonNetwork))
		}
	}
	return m.State()
}

// Login submits credentials. Invalid input fails without a round trip. A
// failed login leaves the state unchanged; the error is unauthorized,
// validation or network.
func (m *SessionMachine) Login(ctx context.Context, creds domainauth.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	lctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	p, err := m.gateway.Login(lctx, creds)
	if err != nil {
		return normalizeGatewayError(err)
	}

	m.seq.Lock()
	defer m.seq.Unlock()
	m.bump()
	m.writeLocal(ctx, p)
	m.set(domainauth.Authenticated(p, true))
	return nil
}

// Logout ends the session. Local state is cleared before the server is told,
// so an in-flight verification cannot restore it. The returned error is the
// server call's failure, for display only.
func (m *SessionMachine) Logout(ctx context.Context) error {
	m.seq.Lock()
	gen := m.bump()
	m.set(domainauth.Unauthenticated(domainauth.ReasonLoggedOut))
	m.clear(ctx, domainauth.TokenLocal)
	m.seq.Unlock()

	lctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := normalizeGatewayError(m.gateway.Logout(lctx))
	if err != nil {
		m.logger.WarnContext(ctx, "server logout failed", "error", err)
	}

	m.seq.Lock()
	defer m.seq.Unlock()
	// A login that completed meanwhile owns the session token now.
	if m.generation() == gen {
		m.clear(ctx, domainauth.TokenSession)
	}
	return err
}

func (m *SessionMachine) writeLocal(ctx context.Context, p domainauth.Principal) {
	local := domainauth.Token{Principal: &p}
	if sess, ok := m.tokens.Read(ctx, domainauth.TokenSession); ok {
		local.Value = sess.Value
	}
	if err := m.tokens.Write(ctx, domainauth.TokenLocal, local); err != nil {
		m.logger.WarnContext(ctx, "failed to write local token copy", "error", err)
	}
}

func (m *SessionMachine) clear(ctx context.Context, kind domainauth.TokenKind) {
	if err := m.tokens.Clear(ctx, kind); err != nil {
		m.logger.WarnContext(ctx, "failed to clear token", "kind", kind.String(), "error", err)
	}
}

func (m *SessionMachine) observeVerify(outcome string, elapsed time.Duration) {
	if m.observer != nil {
		m.observer.ObserveVerify(m.scope, outcome, elapsed)
	}
}
