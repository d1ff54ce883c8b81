package repositories

import (
	"context"
	"errors"
	"time"

	"learnhub/internal/models"
)

var (
	// ErrVersionConflict means the statistics row changed since it was read.
	ErrVersionConflict = errors.New("statistics version conflict")
	// ErrAlreadyAwarded means the (user, badge) pair already exists.
	ErrAlreadyAwarded = errors.New("badge already awarded")
	// ErrDuplicateReceipt means the idempotency key was recorded concurrently.
	ErrDuplicateReceipt = errors.New("activity receipt already recorded")
)

// ===============================
// CORE REPOSITORY INTERFACES
// ===============================

// StatisticsRepository stores the per-user activity counters
type StatisticsRepository interface {
	// Get returns nil, nil when the user has no statistics yet.
	Get(ctx context.Context, userID string) (*models.UserStatistics, error)
	// Put writes stats if the stored version still equals expectedVersion
	// (zero for a first write) and bumps stats.Version. A stale version
	// yields ErrVersionConflict.
	Put(ctx context.Context, stats *models.UserStatistics, expectedVersion int64) error
}

// BadgeRepository stores earned badges
type BadgeRepository interface {
	HasBadge(ctx context.Context, userID, badgeID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.AwardedBadge, error)
	// Award returns ErrAlreadyAwarded when the badge is already held.
	Award(ctx context.Context, badge models.AwardedBadge) error
}

// XPRepository is the append-only XP ledger
type XPRepository interface {
	Append(ctx context.Context, entry *models.XPLedgerEntry) error
	ListByUser(ctx context.Context, userID string) ([]models.XPLedgerEntry, error)
	SumByUser(ctx context.Context, userID string) (int64, error)
}

// ReceiptRepository remembers idempotency keys of applied activities
type ReceiptRepository interface {
	Exists(ctx context.Context, userID, key string) (bool, error)
	// Record returns ErrDuplicateReceipt when the key is already stored.
	Record(ctx context.Context, userID, key string, at time.Time) error
}

// Store hands out repositories and runs units of work atomically. Every
// write made through the Collection passed to fn commits together or
// not at all.
type Store interface {
	Repositories() *Collection
	WithTransaction(ctx context.Context, fn func(*Collection) error) error
	Close() error
}
