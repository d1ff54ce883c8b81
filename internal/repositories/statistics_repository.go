package repositories

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"learnhub/internal/database"
	"learnhub/internal/models"
)

type statisticsRepository struct {
	*BaseRepository
}

// NewStatisticsRepository creates a Postgres statistics repository
func NewStatisticsRepository(exec database.Executor, logger *zap.Logger) StatisticsRepository {
	return &statisticsRepository{
		BaseRepository: NewBaseRepository(exec, logger),
	}
}

const statisticsColumns = `
	user_id, modules_completed, roadmaps_completed, discussions_created,
	comments_made, xp_earned, consecutive_days, perfect_weeks,
	early_bird_completions, night_owl_completions, version, updated_at`

// Get retrieves a user's statistics
func (r *statisticsRepository) Get(ctx context.Context, userID string) (*models.UserStatistics, error) {
	query := `SELECT ` + statisticsColumns + ` FROM user_statistics WHERE user_id = $1`

	var s models.UserStatistics
	err := r.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &s.ModulesCompleted, &s.RoadmapsCompleted, &s.DiscussionsCreated,
		&s.CommentsMade, &s.XPEarned, &s.ConsecutiveDays, &s.PerfectWeeks,
		&s.EarlyBirdCompletions, &s.NightOwlCompletions, &s.Version, &s.UpdatedAt,
	)
	if err != nil {
		if r.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user statistics: %w", err)
	}
	return &s, nil
}

// Put inserts or conditionally updates a statistics row
func (r *statisticsRepository) Put(ctx context.Context, stats *models.UserStatistics, expectedVersion int64) error {
	now := time.Now().UTC()

	var (
		query string
		args  []interface{}
	)
	if expectedVersion == 0 {
		query = `
			INSERT INTO user_statistics (
				user_id, modules_completed, roadmaps_completed, discussions_created,
				comments_made, xp_earned, consecutive_days, perfect_weeks,
				early_bird_completions, night_owl_completions, version, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11)
			ON CONFLICT (user_id) DO NOTHING`
		args = []interface{}{
			stats.UserID, stats.ModulesCompleted, stats.RoadmapsCompleted, stats.DiscussionsCreated,
			stats.CommentsMade, stats.XPEarned, stats.ConsecutiveDays, stats.PerfectWeeks,
			stats.EarlyBirdCompletions, stats.NightOwlCompletions, now,
		}
	} else {
		query = `
			UPDATE user_statistics SET
				modules_completed = $2, roadmaps_completed = $3, discussions_created = $4,
				comments_made = $5, xp_earned = $6, consecutive_days = $7, perfect_weeks = $8,
				early_bird_completions = $9, night_owl_completions = $10,
				version = version + 1, updated_at = $11
			WHERE user_id = $1 AND version = $12`
		args = []interface{}{
			stats.UserID, stats.ModulesCompleted, stats.RoadmapsCompleted, stats.DiscussionsCreated,
			stats.CommentsMade, stats.XPEarned, stats.ConsecutiveDays, stats.PerfectWeeks,
			stats.EarlyBirdCompletions, stats.NightOwlCompletions, now, expectedVersion,
		}
	}

	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to write user statistics: %w", mapWriteError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		r.GetLogger().Debug("Statistics version conflict",
			zap.String("user_id", stats.UserID),
			zap.Int64("expected_version", expectedVersion),
		)
		return ErrVersionConflict
	}

	stats.Version = expectedVersion + 1
	stats.UpdatedAt = now
	return nil
}
