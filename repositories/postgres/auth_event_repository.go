package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/ticketing-shell/models"
	"github.com/upb/ticketing-shell/repositories"
	"go.uber.org/zap"
)

const authEventColumns = `id, session_id, action, provider, subject, email, role, path,
		       details, ip_address, user_agent, request_id, timestamp, error_message`

// AuthEventRepository implements the repositories.AuthEventRepository interface
type AuthEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuthEventRepository creates a new auth event repository
func NewAuthEventRepository(db *DB, logger *zap.Logger) repositories.AuthEventRepository {
	return &AuthEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new event
func (r *AuthEventRepository) Insert(ctx context.Context, e *models.AuthEvent) error {
	query := `
		INSERT INTO auth_events (
			id, session_id, action, provider, subject, email, role, path,
			details, ip_address, user_agent, request_id, timestamp, error_message
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	// JSONB rejects an empty byte slice
	var details interface{}
	if len(e.Details) > 0 {
		details = []byte(e.Details)
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		e.ID,
		e.SessionID,
		e.Action,
		e.Provider,
		e.Subject,
		e.Email,
		e.Role,
		e.Path,
		details,
		e.IPAddress,
		e.UserAgent,
		e.RequestID,
		e.Timestamp,
		e.ErrorMessage,
	)

	if err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}

	r.logger.Debug("auth event inserted", zap.String("id", e.ID.String()), zap.String("action", string(e.Action)))
	return nil
}

// ListRecent retrieves the newest events first
func (r *AuthEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuthEvent, error) {
	query := `
		SELECT ` + authEventColumns + `
		FROM auth_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	return r.queryEvents(ctx, query, limit)
}

// GetBySessionID retrieves the events of one authenticated session in order
func (r *AuthEventRepository) GetBySessionID(ctx context.Context, sessionID uuid.UUID) ([]*models.AuthEvent, error) {
	query := `
		SELECT ` + authEventColumns + `
		FROM auth_events
		WHERE session_id = $1
		ORDER BY timestamp ASC
	`
	return r.queryEvents(ctx, query, sessionID)
}

// DeleteBefore prunes events older than cutoff
func (r *AuthEventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM auth_events WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune auth events: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (r *AuthEventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*models.AuthEvent, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query auth events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuthEvent
	for rows.Next() {
		e := &models.AuthEvent{}
		var details []byte
		err := rows.Scan(
			&e.ID,
			&e.SessionID,
			&e.Action,
			&e.Provider,
			&e.Subject,
			&e.Email,
			&e.Role,
			&e.Path,
			&details,
			&e.IPAddress,
			&e.UserAgent,
			&e.RequestID,
			&e.Timestamp,
			&e.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		e.Details = details
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auth events: %w", err)
	}

	return events, nil
}
