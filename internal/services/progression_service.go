package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"learnhub/internal/cache"
	"learnhub/internal/config"
	"learnhub/internal/contextutils"
	"learnhub/internal/events"
	"learnhub/internal/models"
	"learnhub/internal/repositories"
	"learnhub/internal/validation"
)

const defaultActivityReason = "Activity reward"

// progressionService implements ProgressionService
type progressionService struct {
	store   repositories.Store
	locker  cache.Locker
	events  events.EventBus
	catalog *models.BadgeCatalog
	config  *config.ProgressionConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewProgressionService creates the progression engine. The catalog is
// fixed for the lifetime of the service.
func NewProgressionService(
	store repositories.Store,
	locker cache.Locker,
	bus events.EventBus,
	catalog *models.BadgeCatalog,
	cfg *config.ProgressionConfig,
	logger *zap.Logger,
) ProgressionService {
	if cfg == nil {
		cfg = config.DefaultProgressionConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if catalog == nil {
		catalog = models.DefaultBadgeCatalog()
	}
	if locker == nil {
		locker = cache.NewMemoryLocker(nil, logger)
	}
	if bus == nil {
		bus = events.NewEventBus(nil, logger)
	}
	return &progressionService{
		store:   store,
		locker:  locker,
		events:  bus,
		catalog: catalog,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// recordActivityRequest groups the inputs so they validate together.
type recordActivityRequest struct {
	UserID string               `json:"userId" validate:"required,max=255"`
	Delta  models.ActivityDelta `json:"delta"`
}

// ===============================
// RECORD ACTIVITY
// ===============================

func (s *progressionService) RecordActivity(ctx context.Context, userID string, delta models.ActivityDelta) (*ActivityResult, error) {
	if err := validation.ValidateStruct(&recordActivityRequest{UserID: userID, Delta: delta}); err != nil {
		return nil, validationErrorFrom("invalid activity", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var result *ActivityResult
	err := s.runSerialized(ctx, userID, "record_activity", func(col *repositories.Collection) error {
		r, err := s.applyActivity(ctx, col, userID, delta)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.loggerFor(ctx).Info("Activity recorded",
		zap.String("user_id", userID),
		zap.String("idempotency_key", delta.IdempotencyKey),
		zap.Bool("replayed", result.Replayed),
		zap.Int("new_badges", len(result.NewBadges)),
		zap.Int64("xp_earned", result.Statistics.XPEarned),
	)

	s.publish(ctx, events.NewActivityRecordedEvent(userID, delta, result.Statistics, result.NewBadges, result.Replayed))
	s.publishAwards(ctx, userID, result.NewBadges)
	return result, nil
}

// applyActivity is one attempt of RecordActivity inside a transaction.
func (s *progressionService) applyActivity(ctx context.Context, col *repositories.Collection, userID string, delta models.ActivityDelta) (*ActivityResult, error) {
	now := s.now().UTC()

	stats, err := loadStatistics(ctx, col, userID)
	if err != nil {
		return nil, err
	}
	expectedVersion := stats.Version

	if delta.IdempotencyKey != "" {
		seen, err := col.Receipts.Exists(ctx, userID, delta.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if seen {
			return &ActivityResult{Statistics: stats, NewBadges: []models.BadgeDefinition{}, Replayed: true}, nil
		}
	}

	updated, err := delta.Apply(stats)
	if err != nil {
		return nil, NewValidationError("activity delta rejected", err)
	}

	if delta.XPEarned > 0 {
		reason := delta.Reason
		if reason == "" {
			reason = defaultActivityReason
		}
		entry := &models.XPLedgerEntry{
			UserID:      userID,
			Amount:      delta.XPEarned,
			Kind:        models.XPReasonActivity,
			Description: reason,
			SourceKey:   optionalString(delta.IdempotencyKey),
			CreatedAt:   now,
		}
		if err := col.XP.Append(ctx, entry); err != nil {
			return nil, err
		}
	}

	awarded, err := s.awardEligible(ctx, col, &updated, now)
	if err != nil {
		return nil, err
	}

	if delta.IdempotencyKey != "" {
		if err := col.Receipts.Record(ctx, userID, delta.IdempotencyKey, now); err != nil {
			if errors.Is(err, repositories.ErrDuplicateReceipt) {
				// Another writer got there first; the retry will see the receipt.
				return nil, errors.Join(repositories.ErrVersionConflict, err)
			}
			return nil, err
		}
	}

	if err := col.Statistics.Put(ctx, &updated, expectedVersion); err != nil {
		return nil, err
	}

	return &ActivityResult{Statistics: updated, NewBadges: awarded}, nil
}

// ===============================
// BADGE AWARDING
// ===============================

func (s *progressionService) AwardEligibleBadges(ctx context.Context, userID string) ([]models.BadgeDefinition, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var awarded []models.BadgeDefinition
	err := s.runSerialized(ctx, userID, "award_badges", func(col *repositories.Collection) error {
		stats, err := loadStatistics(ctx, col, userID)
		if err != nil {
			return err
		}
		expectedVersion := stats.Version

		newBadges, err := s.awardEligible(ctx, col, &stats, s.now().UTC())
		if err != nil {
			return err
		}
		if len(newBadges) > 0 {
			if err := col.Statistics.Put(ctx, &stats, expectedVersion); err != nil {
				return err
			}
		}
		awarded = newBadges
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(awarded) > 0 {
		s.logger.Info("Reconciled badges",
			zap.String("user_id", userID),
			zap.Int("awarded", len(awarded)),
		)
	}
	s.publishAwards(ctx, userID, awarded)
	return awarded, nil
}

// awardEligible awards every satisfied badge the user does not hold yet.
// Catalog passes repeat until one awards nothing, so XP from a badge
// granted late in a pass is seen by xp_earned criteria. stats.XPEarned
// is credited in place.
func (s *progressionService) awardEligible(ctx context.Context, col *repositories.Collection, stats *models.UserStatistics, now time.Time) ([]models.BadgeDefinition, error) {
	held, err := col.Badges.ListByUser(ctx, stats.UserID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool, len(held))
	for _, b := range held {
		owned[b.BadgeID] = true
	}

	catalog := s.catalog.All()
	awarded := []models.BadgeDefinition{}

	for progressed := true; progressed; {
		progressed = false
		for _, badge := range catalog {
			if owned[badge.ID] || !badge.IsSatisfied(*stats) {
				continue
			}
			credited := *stats
			if err := credited.AddXP(badge.XPReward); err != nil {
				return nil, NewValidationError("badge "+badge.ID+" reward rejected", err)
			}

			err := col.Badges.Award(ctx, models.AwardedBadge{
				UserID:   stats.UserID,
				BadgeID:  badge.ID,
				EarnedAt: now,
			})
			owned[badge.ID] = true
			if errors.Is(err, repositories.ErrAlreadyAwarded) {
				s.logger.Debug("Badge already awarded",
					zap.String("user_id", stats.UserID),
					zap.String("badge_id", badge.ID),
					zap.Error(NewDuplicateAwardError(stats.UserID, badge.ID)),
				)
				continue
			}
			if err != nil {
				return nil, err
			}

			entry := &models.XPLedgerEntry{
				UserID:      stats.UserID,
				Amount:      badge.XPReward,
				Kind:        models.XPReasonBadge,
				Description: fmt.Sprintf("Earned %s badge", badge.Name),
				SourceKey:   optionalString("badge:" + badge.ID),
				CreatedAt:   now,
			}
			if err := col.XP.Append(ctx, entry); err != nil {
				return nil, err
			}

			*stats = credited
			awarded = append(awarded, badge)
			progressed = true
		}
	}
	return awarded, nil
}

// ===============================
// READ OPERATIONS
// ===============================

func (s *progressionService) GetStatistics(ctx context.Context, userID string) (*models.UserStatistics, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stats, err := loadStatistics(ctx, s.store.Repositories(), userID)
	if err != nil {
		return nil, NewPersistenceError("failed to load statistics", err)
	}
	return &stats, nil
}

func (s *progressionService) EvaluateBadgeProgress(ctx context.Context, userID string) ([]models.BadgeProgress, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	progress, _, err := s.evaluate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return progress, nil
}

func (s *progressionService) GetAchievementSummary(ctx context.Context, userID string) (*models.AchievementSummary, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	progress, stats, err := s.evaluate(ctx, userID)
	if err != nil {
		return nil, err
	}
	ledgerXP, err := s.store.Repositories().XP.SumByUser(ctx, userID)
	if err != nil {
		return nil, NewPersistenceError("failed to sum xp ledger", err)
	}

	summary := &models.AchievementSummary{
		UserID:      userID,
		XPEarned:    stats.XPEarned,
		LedgerXP:    ledgerXP,
		BadgesTotal: len(progress),
		ByCategory:  make(map[models.BadgeCategory][]models.BadgeProgress),
	}
	for _, p := range progress {
		if p.Earned {
			summary.BadgesEarned++
		}
		summary.ByCategory[p.Badge.Category] = append(summary.ByCategory[p.Badge.Category], p)
	}

	if !summary.IsConsistent() {
		s.logger.Warn("XP counter does not match ledger",
			zap.String("user_id", userID),
			zap.Int64("xp_earned", summary.XPEarned),
			zap.Int64("ledger_xp", summary.LedgerXP),
		)
	}
	return summary, nil
}

func (s *progressionService) GetXPHistory(ctx context.Context, userID string) ([]models.XPLedgerEntry, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entries, err := s.store.Repositories().XP.ListByUser(ctx, userID)
	if err != nil {
		return nil, NewPersistenceError("failed to list xp history", err)
	}
	if entries == nil {
		entries = []models.XPLedgerEntry{}
	}
	return entries, nil
}

// evaluate computes one progress entry per catalog badge, in catalog order.
func (s *progressionService) evaluate(ctx context.Context, userID string) ([]models.BadgeProgress, models.UserStatistics, error) {
	repos := s.store.Repositories()

	stats, err := loadStatistics(ctx, repos, userID)
	if err != nil {
		return nil, stats, NewPersistenceError("failed to load statistics", err)
	}
	held, err := repos.Badges.ListByUser(ctx, userID)
	if err != nil {
		return nil, stats, NewPersistenceError("failed to list badges", err)
	}
	earnedAt := make(map[string]time.Time, len(held))
	for _, b := range held {
		earnedAt[b.BadgeID] = b.EarnedAt
	}

	catalog := s.catalog.All()
	progress := make([]models.BadgeProgress, 0, len(catalog))
	for _, badge := range catalog {
		p := models.BadgeProgress{
			Badge:           badge,
			ProgressPercent: badge.Criteria.Progress(stats),
		}
		if at, ok := earnedAt[badge.ID]; ok {
			at := at
			p.Earned = true
			p.EarnedAt = &at
		}
		progress = append(progress, p)
	}
	return progress, stats, nil
}

// ===============================
// UNIT OF WORK
// ===============================

// runSerialized runs fn in a store transaction while holding the user's
// lock. Version conflicts retry the whole transaction with exponential
// backoff; everything else aborts. Every failure becomes a
// PersistenceError unless fn already returned a ServiceError.
func (s *progressionService) runSerialized(ctx context.Context, userID, operation string, fn func(*repositories.Collection) error) error {
	start := s.now()
	logger := s.loggerFor(ctx)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.RetryInitialInterval
	policy.MaxInterval = s.config.RetryMaxInterval
	policy.MaxElapsedTime = 0

	attempts := 0
	attempt := func() error {
		attempts++
		err := s.store.WithTransaction(ctx, fn)
		if err == nil || errors.Is(err, repositories.ErrVersionConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("Retrying after version conflict",
			zap.String("user_id", userID),
			zap.String("operation", operation),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
		)
	}

	locked := false
	err := cache.WithLock(ctx, s.locker, "user:"+userID, func(ctx context.Context) error {
		locked = true
		retries := backoff.WithMaxRetries(policy, uint64(max(s.config.MaxRetries, 0)))
		return backoff.RetryNotify(attempt, backoff.WithContext(retries, ctx), notify)
	})
	if err == nil {
		return nil
	}
	if !locked {
		logger.Warn("Failed to acquire user lock",
			zap.String("user_id", userID),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return NewPersistenceError("user is busy, try again", err)
	}

	fields := []zap.Field{
		zap.String("user_id", userID),
		zap.String("operation", operation),
		zap.Int("attempt", attempts),
		zap.Duration("duration", s.now().Sub(start)),
		zap.Error(err),
	}

	switch {
	case GetServiceError(err) != nil:
		return err
	case ctx.Err() != nil:
		logger.Warn("Progression operation timed out", fields...)
		return NewPersistenceError("operation timed out", err)
	case errors.Is(err, repositories.ErrVersionConflict):
		logger.Warn("Gave up after repeated version conflicts", fields...)
		return NewPersistenceError(fmt.Sprintf("concurrent updates, gave up after %d attempts", attempts), err)
	default:
		logger.Error("Progression operation failed", fields...)
		return NewPersistenceError("failed to update progression", err)
	}
}

// loggerFor tags the service logger with the request fields of ctx.
func (s *progressionService) loggerFor(ctx context.Context) *zap.Logger {
	if fields := contextutils.LogFields(ctx); len(fields) > 0 {
		return s.logger.With(fields...)
	}
	return s.logger
}

func (s *progressionService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.OperationTimeout)
}

// ===============================
// EVENTS
// ===============================

func (s *progressionService) publishAwards(ctx context.Context, userID string, badges []models.BadgeDefinition) {
	for _, badge := range badges {
		s.publish(ctx, events.NewBadgeAwardedEvent(userID, badge))
	}
}

// publish runs after commit, so handler failures are only logged.
func (s *progressionService) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("Event handlers failed",
			zap.String("event_type", event.GetEventType()),
			zap.String("user_id", event.GetUserID()),
			zap.Error(err),
		)
	}
}

// ===============================
// HELPERS
// ===============================

// loadStatistics treats a user without a row as all-zero.
func loadStatistics(ctx context.Context, col *repositories.Collection, userID string) (models.UserStatistics, error) {
	stats, err := col.Statistics.Get(ctx, userID)
	if err != nil {
		return models.UserStatistics{}, err
	}
	if stats == nil {
		return models.NewUserStatistics(userID), nil
	}
	return *stats, nil
}

type userIDRequest struct {
	UserID string `json:"userId" validate:"required,max=255"`
}

func validateUserID(userID string) error {
	if err := validation.ValidateStruct(&userIDRequest{UserID: userID}); err != nil {
		return validationErrorFrom("invalid user id", err)
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
