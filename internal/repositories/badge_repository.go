package repositories

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"learnhub/internal/database"
	"learnhub/internal/models"
)

type badgeRepository struct {
	*BaseRepository
}

// NewBadgeRepository creates a Postgres badge repository
func NewBadgeRepository(exec database.Executor, logger *zap.Logger) BadgeRepository {
	return &badgeRepository{
		BaseRepository: NewBaseRepository(exec, logger),
	}
}

// HasBadge reports whether the user already holds the badge
func (r *badgeRepository) HasBadge(ctx context.Context, userID, badgeID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM user_badges WHERE user_id = $1 AND badge_id = $2)`

	var exists bool
	if err := r.QueryRowContext(ctx, query, userID, badgeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check badge: %w", err)
	}
	return exists, nil
}

// ListByUser returns the user's badges in the order they were earned
func (r *badgeRepository) ListByUser(ctx context.Context, userID string) ([]models.AwardedBadge, error) {
	query := `
		SELECT user_id, badge_id, earned_at
		FROM user_badges
		WHERE user_id = $1
		ORDER BY earned_at, badge_id`

	rows, err := r.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	var badges []models.AwardedBadge
	for rows.Next() {
		var b models.AwardedBadge
		if err := rows.Scan(&b.UserID, &b.BadgeID, &b.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate badges: %w", err)
	}
	return badges, nil
}

// Award inserts the badge. ON CONFLICT keeps a surrounding transaction
// usable when the badge already exists.
func (r *badgeRepository) Award(ctx context.Context, badge models.AwardedBadge) error {
	query := `
		INSERT INTO user_badges (user_id, badge_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_id) DO NOTHING`

	result, err := r.ExecContext(ctx, query, badge.UserID, badge.BadgeID, badge.EarnedAt)
	if err != nil {
		return fmt.Errorf("failed to award badge: %w", mapWriteError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyAwarded
	}

	r.GetLogger().Debug("Badge row inserted",
		zap.String("user_id", badge.UserID),
		zap.String("badge_id", badge.BadgeID),
	)
	return nil
}
