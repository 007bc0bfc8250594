package assignment

import (
	"context"
	"time"

	"github.com/upb/ticketing-shell/session"
	"go.uber.org/zap"
)

// lookupTimeout bounds the lookup made while an identity is being emitted
const lookupTimeout = 2 * time.Second

// Lookuper resolves the assigned role for an email
type Lookuper interface {
	Lookup(ctx context.Context, email string) (session.Role, error)
}

// Decorate wraps source so that every identity it signs in or emits carries
// the role assigned to its email. The higher of the provider's own assignment
// and the stored one wins. Lookup failures are logged and the identity passes
// through unchanged.
func Decorate(source session.IdentitySource, lookup Lookuper, logger *zap.Logger) session.IdentitySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &decorated{
		IdentitySource: source,
		lookup:         lookup,
		logger:         logger.With(zap.String("provider", source.Name())),
	}
}

type decorated struct {
	session.IdentitySource
	lookup Lookuper
	logger *zap.Logger
}

func (d *decorated) SignIn(ctx context.Context, creds session.Credentials) (*session.Identity, error) {
	id, err := d.IdentitySource.SignIn(ctx, creds)
	if err != nil {
		return nil, err
	}
	return d.annotate(ctx, id), nil
}

func (d *decorated) OnChange(fn func(*session.Identity)) (func(), error) {
	if fn == nil {
		return nil, session.ErrNilListener
	}
	return d.IdentitySource.OnChange(func(id *session.Identity) {
		fn(d.annotate(context.Background(), id))
	})
}

func (d *decorated) annotate(ctx context.Context, id *session.Identity) *session.Identity {
	if id == nil || id.Email == "" {
		return id
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	role, err := d.lookup.Lookup(ctx, id.Email)
	if err != nil {
		d.logger.Warn("role assignment lookup failed", zap.String("identity_id", id.ID), zap.Error(err))
		return id
	}
	if role == "" || role.Rank() <= id.AssignedRole.Rank() {
		return id
	}

	annotated := id.Clone()
	annotated.AssignedRole = role
	return annotated
}
