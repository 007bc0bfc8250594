package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/models"
	"github.com/upb/ticketing-shell/repositories"
	"go.uber.org/zap"
)

// RoleAssignmentRepository implements the repositories.RoleAssignmentRepository interface
type RoleAssignmentRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRoleAssignmentRepository creates a new role assignment repository
func NewRoleAssignmentRepository(db *DB, logger *zap.Logger) repositories.RoleAssignmentRepository {
	return &RoleAssignmentRepository{
		db:     db,
		logger: logger,
	}
}

// GetByEmail retrieves the assignment for an email
func (r *RoleAssignmentRepository) GetByEmail(ctx context.Context, email string) (*models.RoleAssignment, error) {
	query := `
		SELECT id, email, role, granted_by, created_at, updated_at
		FROM role_assignments
		WHERE email = $1
	`

	executor := GetExecutor(ctx, r.db)
	a := &models.RoleAssignment{}

	err := executor.QueryRowContext(ctx, query, models.NormalizeEmail(email)).Scan(
		&a.ID,
		&a.Email,
		&a.Role,
		&a.GrantedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError(shared.ErrorTypeNotFound, "role assignment not found", err).
				WithDetail("email", models.NormalizeEmail(email))
		}
		return nil, fmt.Errorf("failed to get role assignment: %w", err)
	}

	return a, nil
}

// Upsert creates the assignment or replaces the role of an existing one.
// The stored row keeps its original ID and creation time.
func (r *RoleAssignmentRepository) Upsert(ctx context.Context, a *models.RoleAssignment) error {
	query := `
		INSERT INTO role_assignments (id, email, role, granted_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE
		SET role = EXCLUDED.role, granted_by = EXCLUDED.granted_by, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	a.Email = models.NormalizeEmail(a.Email)
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		a.ID,
		a.Email,
		a.Role,
		a.GrantedBy,
		a.CreatedAt,
		a.UpdatedAt,
	).Scan(&a.ID, &a.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert role assignment: %w", err)
	}

	r.logger.Debug("role assignment stored", zap.String("email", a.Email), zap.String("role", string(a.Role)))
	return nil
}

// Delete removes the assignment for an email
func (r *RoleAssignmentRepository) Delete(ctx context.Context, email string) error {
	query := `DELETE FROM role_assignments WHERE email = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, models.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to delete role assignment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return shared.NewDomainError(shared.ErrorTypeNotFound, "role assignment not found", nil).
			WithDetail("email", models.NormalizeEmail(email))
	}

	r.logger.Debug("role assignment deleted", zap.String("email", models.NormalizeEmail(email)))
	return nil
}

// List retrieves assignments ordered by email with pagination
func (r *RoleAssignmentRepository) List(ctx context.Context, limit, offset int) ([]*models.RoleAssignment, error) {
	query := `
		SELECT id, email, role, granted_by, created_at, updated_at
		FROM role_assignments
		ORDER BY email
		LIMIT $1 OFFSET $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*models.RoleAssignment
	for rows.Next() {
		a := &models.RoleAssignment{}
		if err := rows.Scan(&a.ID, &a.Email, &a.Role, &a.GrantedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role assignments: %w", err)
	}

	return assignments, nil
}
