package repositories

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"learnhub/internal/database"
)

type receiptRepository struct {
	*BaseRepository
}

// NewReceiptRepository creates a Postgres activity receipt repository
func NewReceiptRepository(exec database.Executor, logger *zap.Logger) ReceiptRepository {
	return &receiptRepository{
		BaseRepository: NewBaseRepository(exec, logger),
	}
}

// Exists reports whether the key was already applied for the user
func (r *receiptRepository) Exists(ctx context.Context, userID, key string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM activity_receipts WHERE user_id = $1 AND key = $2)`

	var exists bool
	if err := r.QueryRowContext(ctx, query, userID, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check activity receipt: %w", err)
	}
	return exists, nil
}

// Record stores the key
func (r *receiptRepository) Record(ctx context.Context, userID, key string, at time.Time) error {
	query := `
		INSERT INTO activity_receipts (user_id, key, recorded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key) DO NOTHING`

	result, err := r.ExecContext(ctx, query, userID, key, at)
	if err != nil {
		return fmt.Errorf("failed to record activity receipt: %w", mapWriteError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		r.GetLogger().Debug("Duplicate activity receipt",
			zap.String("user_id", userID),
			zap.String("key", key))
		return ErrDuplicateReceipt
	}
	return nil
}
