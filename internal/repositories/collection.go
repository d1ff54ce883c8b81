package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"learnhub/internal/database"
)

// Collection holds the progression repositories for dependency injection.
// A Collection handed to a WithTransaction callback is bound to that
// transaction.
type Collection struct {
	Statistics StatisticsRepository
	Badges     BadgeRepository
	XP         XPRepository
	Receipts   ReceiptRepository
}

// NewCollection binds the Postgres repositories to exec
func NewCollection(exec database.Executor, logger *zap.Logger) *Collection {
	return &Collection{
		Statistics: NewStatisticsRepository(exec, logger),
		Badges:     NewBadgeRepository(exec, logger),
		XP:         NewXPRepository(exec, logger),
		Receipts:   NewReceiptRepository(exec, logger),
	}
}

// PostgresStore is the Store backed by database.Manager
type PostgresStore struct {
	db         *database.Manager
	logger     *zap.Logger
	collection *Collection
}

// NewPostgresStore creates a Postgres-backed store
func NewPostgresStore(db *database.Manager, logger *zap.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database manager is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store := &PostgresStore{
		db:         db,
		logger:     logger,
		collection: NewCollection(db, logger),
	}

	logger.Info("Repository collection initialized", zap.String("driver", "postgres"))
	return store, nil
}

// Repositories returns the auto-commit repositories
func (s *PostgresStore) Repositories() *Collection {
	return s.collection
}

// ===============================
// TRANSACTION MANAGEMENT
// ===============================

// WithTransaction executes fn within a database transaction. All
// repositories in the collection passed to fn share the transaction.
func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(*Collection) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapWriteError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("Transaction rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(NewCollection(tx, s.logger)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapWriteError(err))
	}

	return nil
}

// Close closes the underlying pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
