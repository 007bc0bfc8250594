package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type slot int

const (
	slotPrimary slot = iota
	slotFederated
)

func (s slot) String() string {
	if s == slotPrimary {
		return ProviderPrimary
	}
	return ProviderFederated
}

// StoreConfig holds the collaborators of a Store. Either source may be nil
// when that provider is not configured; its slot then stays absent forever.
type StoreConfig struct {
	Primary   IdentitySource
	Federated IdentitySource
	Resolver  Resolver
	Logger    *zap.Logger

	// Now is used for Session.UpdatedAt; defaults to time.Now
	Now func() time.Time
}

// Store is the single authoritative merge point for all identity signals.
// It owns one subscription slot per provider, recomputes the role from both
// slots whenever either changes, and notifies subscribers synchronously in
// subscription order with a fully merged snapshot.
//
// Lifecycle: NewStore, Start (subscribe both providers), Close (unsubscribe
// both). Provider failures never escape the store.
type Store struct {
	primary   IdentitySource
	federated IdentitySource
	resolve   Resolver
	logger    *zap.Logger
	now       func() time.Time

	events loop

	lifecycleMu sync.Mutex
	started     bool
	unsubscribe []func()
	closed      atomic.Bool

	mu      sync.RWMutex
	current Session
	subs    []*subscriber

	// slot values, only touched from inside the event loop
	primaryUser   *Identity
	federatedUser *Identity
}

type subscriber struct {
	fn     func(Session)
	active atomic.Bool
}

// NewStore creates a store in the guest state. It does not subscribe to the
// providers until Start is called.
func NewStore(cfg StoreConfig) *Store {
	if cfg.Resolver == nil {
		cfg.Resolver = DefaultResolver
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Store{
		primary:   cfg.Primary,
		federated: cfg.Federated,
		resolve:   cfg.Resolver,
		logger:    cfg.Logger,
		now:       cfg.Now,
		current:   GuestSession(),
	}
	s.events.onPanic = func(v interface{}) {
		s.logger.Error("session event handler panicked", zap.Any("panic", v))
	}
	return s
}

// Start subscribes to both providers. A provider that is missing or fails
// to subscribe is treated as reporting no identity. Calling Start more than
// once has no effect.
func (s *Store) Start() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started || s.closed.Load() {
		return
	}
	s.started = true

	s.attach(slotPrimary, s.primary)
	s.attach(slotFederated, s.federated)

	s.logger.Info("session store started",
		zap.Bool("primary_configured", s.primary != nil),
		zap.Bool("federated_configured", s.federated != nil))
}

func (s *Store) attach(sl slot, src IdentitySource) {
	if src == nil {
		s.logger.Debug("identity provider not configured", zap.String("slot", sl.String()))
		return
	}

	unsubscribe, err := s.subscribeSource(sl, src)
	if err != nil {
		s.logger.Warn("identity provider subscription failed, treating as signed out",
			zap.String("slot", sl.String()),
			zap.String("provider", src.Name()),
			zap.Error(err))
		return
	}
	s.unsubscribe = append(s.unsubscribe, unsubscribe)
}

func (s *Store) subscribeSource(sl slot, src IdentitySource) (unsubscribe func(), err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("subscription panicked: %v", v)
		}
	}()

	unsubscribe, err = src.OnChange(func(id *Identity) {
		s.apply(sl, id)
	})
	if err == nil && unsubscribe == nil {
		unsubscribe = func() {}
	}
	return unsubscribe, err
}

// Close revokes both provider subscriptions. Callbacks that arrive after
// Close are ignored. Calling Close more than once has no effect.
func (s *Store) Close() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.closed.Swap(true) {
		return
	}
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
	s.logger.Info("session store closed")
}

// GetSession returns the last published snapshot
func (s *Store) GetSession() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Subscribe registers fn for every future snapshot. Subscribers are notified
// synchronously, in the order they subscribed. The returned function revokes
// the subscription; once it returns, fn is not called again from the
// goroutine that revoked it.
func (s *Store) Subscribe(fn func(Session)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	sub := &subscriber{fn: fn}
	sub.active.Store(true)

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, candidate := range s.subs {
				if candidate == sub {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// SubscriberCount returns the number of active subscribers
func (s *Store) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Store) apply(sl slot, id *Identity) {
	id = id.Clone()
	s.events.post(func() {
		if s.closed.Load() {
			s.logger.Debug("ignoring identity change after close", zap.String("slot", sl.String()))
			return
		}
		var replaced *Identity
		switch sl {
		case slotPrimary:
			replaced, s.primaryUser = s.primaryUser, id
		case slotFederated:
			replaced, s.federatedUser = s.federatedUser, id
		}
		s.publish(sl, switchedUser(replaced, id))
	})
}

// switchedUser reports whether a slot went from one signed-in user straight
// to another. A re-notification of the same user is not a switch.
func switchedUser(prev, next *Identity) bool {
	return prev != nil && next != nil && prev.ID != next.ID
}

// publish recomputes the role from both slots and notifies subscribers.
// A user switch in the changed slot starts a new session. Runs inside the
// event loop.
func (s *Store) publish(changed slot, switched bool) {
	s.mu.RLock()
	prev := s.current
	s.mu.RUnlock()

	role := s.resolveRole(s.primaryUser, s.federatedUser)
	next := Session{
		PrimaryUser:   s.primaryUser.Clone(),
		FederatedUser: s.federatedUser.Clone(),
		Role:          role,
		Version:       prev.Version + 1,
		UpdatedAt:     s.now(),
	}
	switch {
	case role == RoleGuest:
		next.ID = uuid.Nil
	case prev.IsGuest(), switched:
		next.ID = uuid.New()
	default:
		next.ID = prev.ID
	}

	s.mu.Lock()
	s.current = next
	subs := make([]*subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	if prev.Role != next.Role {
		s.logger.Info("session role changed",
			zap.String("slot", changed.String()),
			zap.String("from", prev.Role.String()),
			zap.String("to", next.Role.String()),
			zap.String("session_id", next.ID.String()))
	} else {
		s.logger.Debug("session updated",
			zap.String("slot", changed.String()),
			zap.String("role", next.Role.String()),
			zap.Uint64("version", next.Version))
	}

	for _, sub := range subs {
		s.deliver(sub, next)
	}
}

// resolveRole runs the resolver and enforces the guest invariant regardless
// of what a custom resolver returns.
func (s *Store) resolveRole(primary, federated *Identity) (role Role) {
	absent := primary == nil && federated == nil
	defer func() {
		if v := recover(); v != nil {
			s.logger.Error("role resolver panicked", zap.Any("panic", v))
			role = DefaultResolver(primary, federated)
		}
	}()

	role = s.resolve(primary.Clone(), federated.Clone())
	switch {
	case absent:
		role = RoleGuest
	case !role.Valid() || role == RoleGuest:
		s.logger.Warn("resolver returned no usable role for an authenticated session",
			zap.String("role", role.String()))
		role = RoleUser
	}
	return role
}

func (s *Store) deliver(sub *subscriber, snapshot Session) {
	if !sub.active.Load() {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			s.logger.Error("session subscriber panicked", zap.Any("panic", v))
		}
	}()
	sub.fn(snapshot.clone())
}

func (s Session) clone() Session {
	s.PrimaryUser = s.PrimaryUser.Clone()
	s.FederatedUser = s.FederatedUser.Clone()
	return s
}
