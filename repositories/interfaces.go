package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/ticketing-shell/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// RoleAssignmentRepository handles out-of-band role assignments
type RoleAssignmentRepository interface {
	// GetByEmail retrieves the assignment for an email. Returns a not found
	// domain error when the email has no assignment.
	GetByEmail(ctx context.Context, email string) (*models.RoleAssignment, error)

	// Upsert creates the assignment or replaces the role of an existing one
	Upsert(ctx context.Context, assignment *models.RoleAssignment) error

	// Delete removes the assignment for an email
	Delete(ctx context.Context, email string) error

	// List retrieves assignments ordered by email with pagination
	List(ctx context.Context, limit, offset int) ([]*models.RoleAssignment, error)
}

// AuthEventRepository handles the authentication trail
type AuthEventRepository interface {
	// Insert inserts a new event
	Insert(ctx context.Context, event *models.AuthEvent) error

	// ListRecent retrieves the newest events first
	ListRecent(ctx context.Context, limit int) ([]*models.AuthEvent, error)

	// GetBySessionID retrieves the events of one authenticated session in order
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) ([]*models.AuthEvent, error)

	// DeleteBefore prunes events older than cutoff and returns how many were removed
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	RoleAssignments RoleAssignmentRepository
	AuthEvents      AuthEventRepository
}
