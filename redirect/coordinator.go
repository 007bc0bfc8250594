// Package redirect sends a newly authenticated session to its role's home
// exactly once, and only from neutral entry points.
package redirect

import (
	"sync"

	"github.com/google/uuid"
	"github.com/upb/ticketing-shell/navigation"
	"github.com/upb/ticketing-shell/session"
	"go.uber.org/zap"
)

// Intent is the one-shot redirect flag of an authenticated session
type Intent struct {
	Consumed  bool      `json:"consumed"`
	SessionID uuid.UUID `json:"session_id"`
}

// Routes tells the coordinator where entry points and role homes are
type Routes interface {
	IsEntryPoint(path string) bool
	HomeFor(role session.Role) (string, bool)
}

// SessionSource is the part of the session store the coordinator observes
type SessionSource interface {
	GetSession() session.Session
	Subscribe(fn func(session.Session)) (unsubscribe func())
}

// Coordinator owns the redirect intent of the process-wide session
type Coordinator struct {
	routes Routes
	logger *zap.Logger

	mu     sync.Mutex
	intent Intent
}

// NewCoordinator creates a Coordinator
func NewCoordinator(routes Routes, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{routes: routes, logger: logger}
}

// Intent returns the current intent
func (c *Coordinator) Intent() Intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intent
}

// Observe runs the coordinator for the session seen at path. It navigates
// and returns true only when path is an entry point, the session is not a
// guest, its role has a home and the intent has not been consumed.
func (c *Coordinator) Observe(path string, s session.Session, nav navigation.Navigator) bool {
	target, ok := c.decide(path, s)
	if !ok {
		return false
	}

	c.logger.Info("post sign-in redirect",
		zap.String("path", path),
		zap.String("redirect_to", target),
		zap.String("role", s.Role.String()),
		zap.String("session_id", s.ID.String()))
	if nav != nil {
		nav.Navigate(target, true)
	}
	return true
}

func (c *Coordinator) decide(path string, s session.Session) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.IsGuest() {
		if c.intent.Consumed {
			c.logger.Debug("redirect intent reset")
		}
		c.intent = Intent{}
		return "", false
	}

	if c.intent.Consumed && c.intent.SessionID == s.ID {
		return "", false
	}
	if c.intent.SessionID != s.ID {
		c.intent = Intent{SessionID: s.ID}
	}

	if !c.routes.IsEntryPoint(path) {
		return "", false
	}
	home, ok := c.routes.HomeFor(s.Role)
	if !ok {
		return "", false
	}

	c.intent.Consumed = true
	if home == path {
		return "", false
	}
	return home, true
}

// Consume marks the intent of s as used without navigating. The login flow
// calls it when it honours an explicit redirect destination.
func (c *Coordinator) Consume(s session.Session) {
	if s.IsGuest() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intent = Intent{Consumed: true, SessionID: s.ID}
}

// Attach observes every store notification against the path currentPath
// reports, starting with the current snapshot. The returned function
// detaches the coordinator.
func (c *Coordinator) Attach(store SessionSource, currentPath func() string, nav navigation.Navigator) (detach func()) {
	unsubscribe := store.Subscribe(func(s session.Session) {
		c.Observe(currentPath(), s, nav)
	})
	c.Observe(currentPath(), store.GetSession(), nav)
	return unsubscribe
}
