package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"learnhub/internal/config"
	"learnhub/internal/models"
	"learnhub/internal/validation"
)

// activityService implements ActivityService on top of the progression engine
type activityService struct {
	progression ProgressionService
	config      *config.ProgressionConfig
	location    *time.Location
	logger      *zap.Logger
	now         func() time.Time
}

// NewActivityService creates the activity source adapter. Completion
// times are classified in the configured timezone.
func NewActivityService(progression ProgressionService, cfg *config.ProgressionConfig, logger *zap.Logger) (ActivityService, error) {
	if cfg == nil {
		cfg = config.DefaultProgressionConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &activityService{
		progression: progression,
		config:      cfg,
		location:    loc,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// CompleteModule credits a finished module, classifying the completion
// time as early bird or night owl.
func (s *activityService) CompleteModule(ctx context.Context, req *ModuleCompletion) (*ActivityResult, error) {
	if req == nil {
		return nil, NewValidationError("module completion is required", nil)
	}
	if err := validation.ValidateStruct(req); err != nil {
		return nil, validationErrorFrom("invalid module completion", err)
	}

	completedAt := req.CompletedAt
	if completedAt.IsZero() {
		completedAt = s.now()
	}

	delta := models.ActivityDelta{
		ModulesCompleted: 1,
		XPEarned:         req.XPReward,
		Reason:           "Completed module " + req.ModuleID,
		IdempotencyKey:   "module:" + req.ModuleID,
	}
	switch models.ClassifyCompletionTime(completedAt.In(s.location)) {
	case models.TimeOfDayEarlyBird:
		delta.EarlyBirdCompletions = 1
	case models.TimeOfDayNightOwl:
		delta.NightOwlCompletions = 1
	}

	return s.progression.RecordActivity(ctx, req.UserID, delta)
}

func (s *activityService) CompleteRoadmap(ctx context.Context, userID, roadmapID string) (*ActivityResult, error) {
	if err := validateReference("roadmapId", roadmapID); err != nil {
		return nil, err
	}
	return s.progression.RecordActivity(ctx, userID, models.ActivityDelta{
		RoadmapsCompleted: 1,
		XPEarned:          s.config.RoadmapXPReward,
		Reason:            "Completed roadmap " + roadmapID,
		IdempotencyKey:    "roadmap:" + roadmapID,
	})
}

// SyncRoadmapProgress reports roadmap completion and records the roadmap
// as completed the first time it reaches 100%.
func (s *activityService) SyncRoadmapProgress(ctx context.Context, req *RoadmapProgressRequest) (*RoadmapProgress, error) {
	if req == nil {
		return nil, NewValidationError("roadmap progress is required", nil)
	}
	if err := validation.ValidateStruct(req); err != nil {
		return nil, validationErrorFrom("invalid roadmap progress", err)
	}

	progress := &RoadmapProgress{
		RoadmapID: req.RoadmapID,
		Percent:   models.RoadmapCompletionPercent(req.Completed, req.Total),
	}
	if progress.Percent < 100 {
		return progress, nil
	}

	result, err := s.CompleteRoadmap(ctx, req.UserID, req.RoadmapID)
	if err != nil {
		return nil, err
	}
	progress.Completed = true
	progress.Activity = result
	return progress, nil
}

func (s *activityService) CreateDiscussion(ctx context.Context, userID, discussionID string) (*ActivityResult, error) {
	if err := validateReference("discussionId", discussionID); err != nil {
		return nil, err
	}
	return s.progression.RecordActivity(ctx, userID, models.ActivityDelta{
		DiscussionsCreated: 1,
		IdempotencyKey:     "discussion:" + discussionID,
	})
}

func (s *activityService) AddComment(ctx context.Context, userID, commentID string) (*ActivityResult, error) {
	if err := validateReference("commentId", commentID); err != nil {
		return nil, err
	}
	return s.progression.RecordActivity(ctx, userID, models.ActivityDelta{
		CommentsMade:   1,
		IdempotencyKey: "comment:" + commentID,
	})
}

// RecordStreak stores the caller's current streak length. The value
// replaces the stored one.
func (s *activityService) RecordStreak(ctx context.Context, userID string, consecutiveDays int64) (*ActivityResult, error) {
	return s.progression.RecordActivity(ctx, userID, models.ActivityDelta{
		ConsecutiveDays: &consecutiveDays,
	})
}

func (s *activityService) RecordPerfectWeek(ctx context.Context, userID, weekKey string) (*ActivityResult, error) {
	if err := validateReference("weekKey", weekKey); err != nil {
		return nil, err
	}
	return s.progression.RecordActivity(ctx, userID, models.ActivityDelta{
		PerfectWeeks:   1,
		IdempotencyKey: "perfect_week:" + weekKey,
	})
}

// validateReference checks the id an idempotency key is derived from.
func validateReference(field, value string) error {
	if value == "" {
		return NewDetailedValidationError("invalid activity", []FieldError{{
			Field:   field,
			Message: field + " is required",
			Code:    "required",
		}})
	}
	if len(value) > 200 {
		return NewDetailedValidationError("invalid activity", []FieldError{{
			Field:   field,
			Value:   value,
			Message: field + " must be at most 200 characters",
			Code:    "max",
		}})
	}
	return nil
}
