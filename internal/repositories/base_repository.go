package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"learnhub/internal/database"
)

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// BaseRepository provides the query helpers shared by the Postgres
// repositories. exec is either the pool manager or an open transaction.
type BaseRepository struct {
	exec   database.Executor
	logger *zap.Logger
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(exec database.Executor, logger *zap.Logger) *BaseRepository {
	return &BaseRepository{
		exec:   exec,
		logger: logger,
	}
}

// ===============================
// CORE DATABASE OPERATIONS
// ===============================

// ExecContext executes a statement, logging slow or failed calls
func (r *BaseRepository) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := r.exec.ExecContext(ctx, query, args...)
	r.logQuery(query, time.Since(start), err)
	return result, err
}

// QueryContext executes a query that returns rows
func (r *BaseRepository) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := r.exec.QueryContext(ctx, query, args...)
	r.logQuery(query, time.Since(start), err)
	return rows, err
}

// QueryRowContext executes a query that returns at most one row
func (r *BaseRepository) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return r.exec.QueryRowContext(ctx, query, args...)
}

func (r *BaseRepository) logQuery(query string, duration time.Duration, err error) {
	if duration > 100*time.Millisecond {
		r.logger.Warn("Slow query detected",
			zap.String("query", truncateQuery(query)),
			zap.Duration("duration", duration),
		)
	}
	if err != nil {
		r.logger.Debug("Query failed",
			zap.String("query", truncateQuery(query)),
			zap.Error(err),
		)
	}
}

// GetLogger returns the repository logger
func (r *BaseRepository) GetLogger() *zap.Logger {
	return r.logger
}

// IsNotFound checks if error is a "not found" error
func (r *BaseRepository) IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ===============================
// ERROR MAPPING
// ===============================

// pqCode extracts the SQLSTATE of a Postgres error.
func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// isUniqueViolation reports a unique constraint failure
func isUniqueViolation(err error) bool {
	return pqCode(err) == pqUniqueViolation
}

// isRetryable reports errors that a fresh attempt of the whole
// transaction can succeed after.
func isRetryable(err error) bool {
	switch pqCode(err) {
	case pqSerializationFailure, pqDeadlockDetected:
		return true
	}
	return false
}

// mapWriteError converts Postgres failures that mean "lost a race" into
// ErrVersionConflict so the caller retries.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if isRetryable(err) || isUniqueViolation(err) {
		return errors.Join(ErrVersionConflict, err)
	}
	return err
}

func truncateQuery(query string) string {
	const maxLength = 200
	if len(query) <= maxLength {
		return query
	}
	return query[:maxLength] + "..."
}
