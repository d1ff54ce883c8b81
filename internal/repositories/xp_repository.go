package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"

	"learnhub/internal/database"
	"learnhub/internal/models"
)

type xpRepository struct {
	*BaseRepository
}

// NewXPRepository creates a Postgres XP ledger repository
func NewXPRepository(exec database.Executor, logger *zap.Logger) XPRepository {
	return &xpRepository{
		BaseRepository: NewBaseRepository(exec, logger),
	}
}

// Append inserts a ledger entry, assigning an id when missing
func (r *xpRepository) Append(ctx context.Context, entry *models.XPLedgerEntry) error {
	if err := prepareLedgerEntry(entry, time.Now().UTC()); err != nil {
		return err
	}

	query := `
		INSERT INTO xp_transactions (id, user_id, amount, type, description, source_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	var sourceKey sql.NullString
	if entry.SourceKey != nil {
		sourceKey = sql.NullString{String: *entry.SourceKey, Valid: true}
	}

	_, err := r.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Amount, string(entry.Kind),
		entry.Description, sourceKey, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append xp transaction: %w", mapWriteError(err))
	}
	return nil
}

// ListByUser returns the user's ledger in insertion order. Entries of
// one transaction share created_at, so seq decides.
func (r *xpRepository) ListByUser(ctx context.Context, userID string) ([]models.XPLedgerEntry, error) {
	query := `
		SELECT id, user_id, amount, type, description, source_key, created_at
		FROM xp_transactions
		WHERE user_id = $1
		ORDER BY seq`

	rows, err := r.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list xp transactions: %w", err)
	}
	defer rows.Close()

	var entries []models.XPLedgerEntry
	for rows.Next() {
		var (
			e         models.XPLedgerEntry
			kind      string
			sourceKey sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &kind, &e.Description, &sourceKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan xp transaction: %w", err)
		}
		e.Kind = models.XPReasonKind(kind)
		if sourceKey.Valid {
			key := sourceKey.String
			e.SourceKey = &key
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate xp transactions: %w", err)
	}
	return entries, nil
}

// SumByUser totals the user's ledger
func (r *xpRepository) SumByUser(ctx context.Context, userID string) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM xp_transactions WHERE user_id = $1`

	var total int64
	if err := r.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum xp transactions: %w", err)
	}
	return total, nil
}

// prepareLedgerEntry validates an entry and fills its id and timestamp.
func prepareLedgerEntry(entry *models.XPLedgerEntry, now time.Time) error {
	if entry.Amount <= 0 {
		return fmt.Errorf("xp amount must be positive, got %d", entry.Amount)
	}
	if !entry.Kind.IsValid() {
		return fmt.Errorf("unknown xp transaction type %q", entry.Kind)
	}
	if entry.ID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("failed to generate xp transaction id: %w", err)
		}
		entry.ID = id.String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	return nil
}
