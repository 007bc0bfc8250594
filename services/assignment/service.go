// Package assignment serves out-of-band role assignments: a table keyed by
// email that elevates an account beyond the default user role. Lookups are
// fronted by an expirable LRU so that identity emissions stay cheap.
package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/models"
	"github.com/upb/ticketing-shell/repositories"
	"github.com/upb/ticketing-shell/session"
	"go.uber.org/zap"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 5 * time.Minute
)

// Config configures the lookup cache
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Service reads and manages role assignments
type Service struct {
	repo   repositories.RoleAssignmentRepository
	txm    repositories.TransactionManager
	cache  *expirable.LRU[string, session.Role]
	logger *zap.Logger
}

// NewService creates a Service. txm may be nil, in which case Grant runs
// without a transaction.
func NewService(repo repositories.RoleAssignmentRepository, txm repositories.TransactionManager, cfg Config, logger *zap.Logger) *Service {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		txm:    txm,
		cache:  expirable.NewLRU[string, session.Role](cfg.CacheSize, nil, cfg.CacheTTL),
		logger: logger,
	}
}

// Lookup returns the role assigned to email, or "" when there is none.
// Absent assignments are cached too.
func (s *Service) Lookup(ctx context.Context, email string) (session.Role, error) {
	key := models.NormalizeEmail(email)
	if key == "" {
		return "", nil
	}
	if role, ok := s.cache.Get(key); ok {
		return role, nil
	}

	a, err := s.repo.GetByEmail(ctx, key)
	if err != nil {
		if shared.IsNotFoundError(err) {
			s.cache.Add(key, "")
			return "", nil
		}
		return "", fmt.Errorf("lookup role assignment: %w", err)
	}

	s.cache.Add(key, a.Role)
	return a.Role, nil
}

// GrantRequest is the input of Grant
type GrantRequest struct {
	Email     string       `json:"email" validate:"required,email"`
	Role      session.Role `json:"role" validate:"required,oneof=admin organizer user"`
	GrantedBy string       `json:"granted_by,omitempty" validate:"max=255"`
}

// Grant stores an assignment and returns it together with the role it replaced
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*models.RoleAssignment, session.Role, error) {
	a := models.NewRoleAssignment(req.Email, req.Role, req.GrantedBy)
	var previous session.Role

	grant := func(ctx context.Context) error {
		existing, err := s.repo.GetByEmail(ctx, a.Email)
		switch {
		case err == nil:
			previous = existing.Role
		case !shared.IsNotFoundError(err):
			return err
		}
		return s.repo.Upsert(ctx, a)
	}

	var err error
	if s.txm != nil {
		err = s.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
			return grant(ctx)
		})
	} else {
		err = grant(ctx)
	}
	if err != nil {
		return nil, "", shared.WrapInternal("failed to grant role", err)
	}

	s.cache.Add(a.Email, a.Role)
	s.logger.Info("role assigned",
		zap.String("email", a.Email),
		zap.String("role", string(a.Role)),
		zap.String("previous_role", string(previous)),
		zap.String("granted_by", a.GrantedBy))
	return a, previous, nil
}

// Revoke deletes the assignment for email
func (s *Service) Revoke(ctx context.Context, email string) error {
	key := models.NormalizeEmail(email)
	if err := s.repo.Delete(ctx, key); err != nil {
		if shared.IsNotFoundError(err) {
			return err
		}
		return shared.WrapInternal("failed to revoke role", err)
	}
	s.cache.Add(key, "")
	s.logger.Info("role assignment revoked", zap.String("email", key))
	return nil
}

// List returns assignments ordered by email
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.RoleAssignment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// Invalidate drops the cached lookup for email
func (s *Service) Invalidate(email string) {
	s.cache.Remove(models.NormalizeEmail(email))
}

// CachedEntries returns the number of cached lookups
func (s *Service) CachedEntries() int {
	return s.cache.Len()
}
