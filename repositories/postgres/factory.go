package postgres

import (
	"context"
	"fmt"

	"github.com/upb/ticketing-shell/config"
	"github.com/upb/ticketing-shell/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db      *DB
	auditDB *DB // Optional: separate DB for auth events
	logger  *zap.Logger
}

// NewRepositoryFactory opens the main pool and, when configured, the audit pool
func NewRepositoryFactory(db config.DatabaseConfig, audit *config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	main, err := NewDB(db, logger)
	if err != nil {
		return nil, err
	}

	f := &RepositoryFactory{db: main, logger: logger}

	if audit != nil {
		auditDB, err := NewDB(*audit, logger)
		if err != nil {
			_ = main.Close()
			return nil, fmt.Errorf("audit database: %w", err)
		}
		f.auditDB = auditDB
	}

	return f, nil
}

// InitSchema creates the tables on the main pool and, when separate, the audit pool
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	if err := f.db.InitSchema(ctx); err != nil {
		return err
	}
	if f.auditDB != nil {
		return f.auditDB.InitAuditSchema(ctx)
	}
	return nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	auditDB := f.db
	if f.auditDB != nil {
		auditDB = f.auditDB
	}
	return &repositories.Repositories{
		RoleAssignments: NewRoleAssignmentRepository(f.db, f.logger),
		AuthEvents:      NewAuthEventRepository(auditDB, f.logger),
	}
}

// GetTransactionManager returns a transaction manager for the main pool
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the main database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection(s)
func (f *RepositoryFactory) Close() error {
	if f.auditDB != nil {
		_ = f.auditDB.Close()
	}
	return f.db.Close()
}
