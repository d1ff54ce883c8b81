package services

import (
	"context"
	"time"

	"learnhub/internal/models"
)

// ===============================
// CORE SERVICE INTERFACES
// ===============================

// ProgressionService turns activity deltas into statistics, badges and XP
type ProgressionService interface {
	// RecordActivity applies delta to the user's statistics and awards any
	// badge the new statistics satisfy, all in one unit of work.
	RecordActivity(ctx context.Context, userID string, delta models.ActivityDelta) (*ActivityResult, error)

	// Read-only views
	GetStatistics(ctx context.Context, userID string) (*models.UserStatistics, error)
	EvaluateBadgeProgress(ctx context.Context, userID string) ([]models.BadgeProgress, error)
	GetAchievementSummary(ctx context.Context, userID string) (*models.AchievementSummary, error)
	GetXPHistory(ctx context.Context, userID string) ([]models.XPLedgerEntry, error)

	// AwardEligibleBadges awards whatever the stored statistics already
	// qualify for. Used to reconcile users after a catalog change.
	AwardEligibleBadges(ctx context.Context, userID string) ([]models.BadgeDefinition, error)
}

// ActivityService translates learning-platform events into activity deltas
type ActivityService interface {
	CompleteModule(ctx context.Context, req *ModuleCompletion) (*ActivityResult, error)
	CompleteRoadmap(ctx context.Context, userID, roadmapID string) (*ActivityResult, error)
	SyncRoadmapProgress(ctx context.Context, req *RoadmapProgressRequest) (*RoadmapProgress, error)
	CreateDiscussion(ctx context.Context, userID, discussionID string) (*ActivityResult, error)
	AddComment(ctx context.Context, userID, commentID string) (*ActivityResult, error)
	RecordStreak(ctx context.Context, userID string, consecutiveDays int64) (*ActivityResult, error)
	RecordPerfectWeek(ctx context.Context, userID, weekKey string) (*ActivityResult, error)
}

// ===============================
// REQUEST / RESPONSE TYPES
// ===============================

// ActivityResult is the outcome of one recorded activity
type ActivityResult struct {
	Statistics models.UserStatistics    `json:"statistics"`
	NewBadges  []models.BadgeDefinition `json:"new_badges"`
	// Replayed is set when the idempotency key had already been applied
	// and nothing changed.
	Replayed bool `json:"replayed"`
}

// ModuleCompletion describes a finished course module
type ModuleCompletion struct {
	UserID      string    `json:"userId" validate:"required,max=255"`
	ModuleID    string    `json:"moduleId" validate:"required,max=200"`
	XPReward    int64     `json:"xpReward" validate:"gte=0"`
	CompletedAt time.Time `json:"completedAt"`
}

// RoadmapProgressRequest reports how many modules of a roadmap are done
type RoadmapProgressRequest struct {
	UserID    string `json:"userId" validate:"required,max=255"`
	RoadmapID string `json:"roadmapId" validate:"required,max=200"`
	Completed int    `json:"completed" validate:"gte=0,ltefield=Total"`
	Total     int    `json:"total" validate:"gte=0"`
}

// RoadmapProgress is the result of SyncRoadmapProgress. Activity is set
// only when the roadmap reached 100%.
type RoadmapProgress struct {
	RoadmapID string          `json:"roadmap_id"`
	Percent   int             `json:"percent"`
	Completed bool            `json:"completed"`
	Activity  *ActivityResult `json:"activity,omitempty"`
}
