package session

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNilListener is returned by OnChange when no callback is given
var ErrNilListener = errors.New("session: nil change listener")

// Emitter gives an identity provider the OnChange contract: listeners are
// called in registration order, a listener registered after the provider has
// settled is replayed the current identity, and revoked listeners are never
// called again.
//
// A provider is settled once it has emitted at least once, which includes
// reporting "no user" after a cold-start restore attempt.
type Emitter struct {
	mu        sync.Mutex
	listeners []*listener
	current   *Identity
	settled   bool
	seq       uint64
}

type listener struct {
	fn     func(*Identity)
	active atomic.Bool

	// calls runs deliveries one at a time; last is only touched inside it
	calls loop
	last  uint64
}

// deliver hands emission seq to the listener. Deliveries never overlap, and
// one older than an emission already delivered is dropped, so concurrent
// Emits cannot leave the listener holding a stale identity.
func (l *listener) deliver(seq uint64, id *Identity) {
	l.calls.post(func() {
		if seq <= l.last {
			return
		}
		l.last = seq
		if l.active.Load() {
			l.fn(id)
		}
	})
}

// OnChange registers fn and returns the function that revokes it
func (e *Emitter) OnChange(fn func(*Identity)) (func(), error) {
	if fn == nil {
		return nil, ErrNilListener
	}
	l := &listener{fn: fn}
	l.active.Store(true)

	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	settled, seq, current := e.settled, e.seq, e.current.Clone()
	e.mu.Unlock()

	if settled {
		l.deliver(seq, current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Store(false)
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, candidate := range e.listeners {
				if candidate == l {
					e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
					break
				}
			}
		})
	}, nil
}

// Emit records id as the current identity (nil for signed out) and notifies
// every active listener. Each listener receives its own copy.
func (e *Emitter) Emit(id *Identity) {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.current = id.Clone()
	e.settled = true
	listeners := make([]*listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, l := range listeners {
		l.deliver(seq, id.Clone())
	}
}

// Current returns a copy of the last emitted identity
func (e *Emitter) Current() *Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// Settled reports whether the provider has emitted at least once
func (e *Emitter) Settled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settled
}

// ListenerCount returns the number of active listeners
func (e *Emitter) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
