// Package guard gates access to routes by session role. A mounted guard
// starts in Checking, waits for the session to settle, then lands in Allowed
// or one of the denied states and issues at most one navigation.
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/upb/ticketing-shell/navigation"
	"github.com/upb/ticketing-shell/session"
	"go.uber.org/zap"
)

// DefaultSettleDelay is how long a guard waits for provider restoration
// before trusting the session it sees
const DefaultSettleDelay = 800 * time.Millisecond

// SessionSource is the part of the session store a guard reads
type SessionSource interface {
	GetSession() session.Session
	Subscribe(fn func(session.Session)) (unsubscribe func())
}

// Scheduler runs fn once after d and returns a function that cancels it
type Scheduler func(d time.Duration, fn func()) (cancel func())

func afterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Config configures a Guard
type Config struct {
	LoginPath       string
	DefaultFallback string
	SettleDelay     time.Duration
	Logger          *zap.Logger

	// Schedule replaces time.AfterFunc, mainly for tests
	Schedule Scheduler
}

// Guard mounts route guards against one session store
type Guard struct {
	store       SessionSource
	loginPath   string
	fallback    string
	settleDelay time.Duration
	schedule    Scheduler
	logger      *zap.Logger
}

// New creates a Guard
func New(store SessionSource, cfg Config) *Guard {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.DefaultFallback == "" {
		cfg.DefaultFallback = "/"
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.Schedule == nil {
		cfg.Schedule = afterFunc
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Guard{
		store:       store,
		loginPath:   cfg.LoginPath,
		fallback:    cfg.DefaultFallback,
		settleDelay: cfg.SettleDelay,
		schedule:    cfg.Schedule,
		logger:      cfg.Logger,
	}
}

// LoginPath returns the path unauthenticated visitors are sent to
func (g *Guard) LoginPath() string {
	return g.loginPath
}

// SettleDelay returns the configured settle delay
func (g *Guard) SettleDelay() time.Duration {
	return g.settleDelay
}

// Decide evaluates policy for s without mounting anything
func (g *Guard) Decide(path string, policy Policy, s session.Session) Decision {
	state := policy.Evaluate(s.Role)
	d := Decision{
		State:         state,
		Path:          path,
		RequiredRoles: append([]session.Role(nil), policy.AllowedRoles...),
		RequireAuth:   policy.RequireAuth,
		ActualRole:    s.Role,
		Reason:        reasonFor(state),
	}
	switch state {
	case StateDeniedAuth:
		d.RedirectTo = navigation.LoginRedirect(g.loginPath, path)
	case StateDeniedRole:
		d.RedirectTo = policy.FallbackPath
		if d.RedirectTo == "" {
			d.RedirectTo = g.fallback
		}
	}
	return d
}

// Mount starts guarding path. render receives every decision the guard
// shows, starting with Checking; nav receives the single redirect of a
// denied state. Either may be nil.
func (g *Guard) Mount(path string, policy Policy, nav navigation.Navigator, render func(Decision)) *Mount {
	m := &Mount{
		guard:   g,
		path:    path,
		policy:  policy,
		nav:     nav,
		render:  render,
		live:    true,
		settled: make(chan struct{}),
	}
	m.decision = Decision{
		State:         StateChecking,
		Path:          path,
		RequiredRoles: append([]session.Role(nil), policy.AllowedRoles...),
		RequireAuth:   policy.RequireAuth,
		ActualRole:    g.store.GetSession().Role,
		Reason:        reasonFor(StateChecking),
	}

	if policy.ImplicitGuestExclusion() {
		g.logger.Warn("route excludes guests through allowed roles only",
			zap.String("path", path),
			zap.Any("allowed_roles", policy.AllowedRoles))
	}

	m.cbMu.Lock()
	m.show(m.decision, "")
	m.cbMu.Unlock()
	m.unsubscribe = g.store.Subscribe(m.onSession)

	if g.settleDelay == 0 {
		m.settle()
		return m
	}
	cancel := g.schedule(g.settleDelay, m.settle)

	m.mu.Lock()
	if m.live && !m.isSettled {
		m.cancelSettle = cancel
		m.mu.Unlock()
		return m
	}
	m.mu.Unlock()
	cancel()
	return m
}

// Mount is one guard instance bound to a route
type Mount struct {
	guard  *Guard
	path   string
	policy Policy
	nav    navigation.Navigator
	render func(Decision)

	mu           sync.Mutex
	live         bool
	isSettled    bool
	decision     Decision
	cancelSettle func()
	unsubscribe  func()

	// version of the newest session snapshot evaluated so far
	evaluated bool
	version   uint64

	// cbMu serializes evaluation and callbacks with Unmount
	cbMu sync.Mutex

	settled     chan struct{}
	settledOnce sync.Once
}

// Decision returns the current decision
func (m *Mount) Decision() Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decision
}

// Settled is closed once the guard leaves Checking
func (m *Mount) Settled() <-chan struct{} {
	return m.settled
}

// Wait blocks until the guard leaves Checking or ctx ends
func (m *Mount) Wait(ctx context.Context) (Decision, error) {
	select {
	case <-m.settled:
		return m.Decision(), nil
	case <-ctx.Done():
		return m.Decision(), ctx.Err()
	}
}

// Unmount stops the guard. It waits for a callback already in progress, and
// no render or navigation happens once it returns. It must not be called from
// inside the render or navigation callbacks.
func (m *Mount) Unmount() {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()

	m.mu.Lock()
	if !m.live {
		m.mu.Unlock()
		return
	}
	m.live = false
	cancel := m.cancelSettle
	unsubscribe := m.unsubscribe
	m.cancelSettle = nil
	m.unsubscribe = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (m *Mount) settle() {
	m.mu.Lock()
	if !m.live || m.isSettled {
		m.mu.Unlock()
		return
	}
	m.isSettled = true
	m.cancelSettle = nil
	m.mu.Unlock()

	m.evaluate(m.guard.store.GetSession())
}

// onSession re-evaluates an allowed guard on every store notification.
// Notifications during Checking are ignored; the settle timer reads the
// latest snapshot. Denied states are final for this mount.
func (m *Mount) onSession(s session.Session) {
	m.mu.Lock()
	skip := !m.live || !m.isSettled || m.decision.State.Denied()
	m.mu.Unlock()
	if skip {
		return
	}
	m.evaluate(s)
}

// evaluate applies s unless a snapshot at least as new was already applied
func (m *Mount) evaluate(s session.Session) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()

	next := m.guard.Decide(m.path, m.policy, s)

	m.mu.Lock()
	if !m.live || m.decision.State.Denied() {
		m.mu.Unlock()
		return
	}
	if m.evaluated && s.Version <= m.version {
		m.mu.Unlock()
		m.guard.logger.Debug("route guard ignored stale session",
			zap.String("path", m.path),
			zap.Uint64("version", s.Version),
			zap.Uint64("evaluated_version", m.version))
		return
	}
	m.evaluated = true
	m.version = s.Version
	prev := m.decision
	if prev.State == next.State && prev.ActualRole == next.ActualRole {
		m.mu.Unlock()
		return
	}
	m.decision = next
	m.mu.Unlock()

	m.settledOnce.Do(func() { close(m.settled) })

	logger := m.guard.logger.With(
		zap.String("path", m.path),
		zap.String("from", prev.State.String()),
		zap.String("to", next.State.String()),
		zap.String("role", s.Role.String()))
	switch next.State {
	case StateDeniedAuth, StateDeniedRole:
		logger.Info("route guard denied access", zap.String("redirect_to", next.RedirectTo))
	default:
		logger.Debug("route guard allowed access")
	}

	m.show(next, next.RedirectTo)
}

// show renders d and, for denied states, issues the redirect. The liveness
// flag is checked before each callback. Callers hold cbMu.
func (m *Mount) show(d Decision, redirectTo string) {
	if redirectTo != "" && m.nav != nil && m.isLive() {
		m.nav.Navigate(redirectTo, true)
	}
	if m.render != nil && m.isLive() {
		m.render(d)
	}
}

func (m *Mount) isLive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}
