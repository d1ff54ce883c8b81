package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/models"
)

func TestMemoryStatisticsGetMissing(t *testing.T) {
	store := NewMemoryStore(nil)
	stats, err := store.Repositories().Statistics.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestMemoryStatisticsPutVersioning(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore(nil).Repositories().Statistics

	stats := models.NewUserStatistics("u1")
	stats.ModulesCompleted = 1
	require.NoError(t, repo.Put(ctx, &stats, 0))
	assert.Equal(t, int64(1), stats.Version)

	stale := models.NewUserStatistics("u1")
	assert.ErrorIs(t, repo.Put(ctx, &stale, 0), ErrVersionConflict)

	stats.ModulesCompleted = 2
	require.NoError(t, repo.Put(ctx, &stats, 1))
	assert.Equal(t, int64(2), stats.Version)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ModulesCompleted)
	assert.Equal(t, int64(2), got.Version)
}

func TestMemoryBadgeAwardIsUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore(nil).Repositories().Badges

	badge := models.AwardedBadge{UserID: "u1", BadgeID: "first_module", EarnedAt: time.Now()}
	require.NoError(t, repo.Award(ctx, badge))
	assert.ErrorIs(t, repo.Award(ctx, badge), ErrAlreadyAwarded)

	has, err := repo.HasBadge(ctx, "u1", "first_module")
	require.NoError(t, err)
	assert.True(t, has)

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryXPLedger(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore(nil).Repositories().XP

	require.NoError(t, repo.Append(ctx, &models.XPLedgerEntry{UserID: "u1", Amount: 50, Kind: models.XPReasonActivity}))
	require.NoError(t, repo.Append(ctx, &models.XPLedgerEntry{UserID: "u1", Amount: 100, Kind: models.XPReasonBadge}))
	require.NoError(t, repo.Append(ctx, &models.XPLedgerEntry{UserID: "u2", Amount: 7, Kind: models.XPReasonActivity}))

	assert.Error(t, repo.Append(ctx, &models.XPLedgerEntry{UserID: "u1", Amount: 0, Kind: models.XPReasonActivity}))
	assert.Error(t, repo.Append(ctx, &models.XPLedgerEntry{UserID: "u1", Amount: 5, Kind: "bonus"}))

	total, err := repo.SumByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), total)

	entries, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].ID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.Equal(t, models.XPReasonActivity, entries[0].Kind)
}

func TestMemoryTransactionCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	err := store.WithTransaction(ctx, func(c *Collection) error {
		stats := models.NewUserStatistics("u1")
		stats.XPEarned = 50
		if err := c.Statistics.Put(ctx, &stats, 0); err != nil {
			return err
		}
		if err := c.Badges.Award(ctx, models.AwardedBadge{UserID: "u1", BadgeID: "first_module"}); err != nil {
			return err
		}
		if err := c.XP.Append(ctx, &models.XPLedgerEntry{UserID: "u1", Amount: 50, Kind: models.XPReasonBadge}); err != nil {
			return err
		}

		// Staged writes are visible inside the transaction.
		has, _ := c.Badges.HasBadge(ctx, "u1", "first_module")
		assert.True(t, has)
		sum, _ := c.XP.SumByUser(ctx, "u1")
		assert.Equal(t, int64(50), sum)

		// And invisible outside it until commit.
		outside, _ := store.Repositories().Statistics.Get(ctx, "u1")
		assert.Nil(t, outside)
		return nil
	})
	require.NoError(t, err)

	repos := store.Repositories()
	stats, _ := repos.Statistics.Get(ctx, "u1")
	require.NotNil(t, stats)
	assert.Equal(t, int64(50), stats.XPEarned)
	has, _ := repos.Badges.HasBadge(ctx, "u1", "first_module")
	assert.True(t, has)
	sum, _ := repos.XP.SumByUser(ctx, "u1")
	assert.Equal(t, int64(50), sum)
}

func TestMemoryTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	boom := errors.New("boom")

	err := store.WithTransaction(ctx, func(c *Collection) error {
		stats := models.NewUserStatistics("u1")
		require.NoError(t, c.Statistics.Put(ctx, &stats, 0))
		require.NoError(t, c.Receipts.Record(ctx, "u1", "module:1", time.Now()))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stats, _ := store.Repositories().Statistics.Get(ctx, "u1")
	assert.Nil(t, stats)
	exists, _ := store.Repositories().Receipts.Exists(ctx, "u1", "module:1")
	assert.False(t, exists)
}

func TestMemoryTransactionDetectsConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	err := store.WithTransaction(ctx, func(c *Collection) error {
		stats := models.NewUserStatistics("u1")
		require.NoError(t, c.Statistics.Put(ctx, &stats, 0))

		// Another writer commits first.
		other := models.NewUserStatistics("u1")
		require.NoError(t, store.Repositories().Statistics.Put(ctx, &other, 0))

		require.NoError(t, c.XP.Append(ctx, &models.XPLedgerEntry{UserID: "u1", Amount: 10, Kind: models.XPReasonActivity}))
		return nil
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	sum, _ := store.Repositories().XP.SumByUser(ctx, "u1")
	assert.Zero(t, sum, "ledger writes of the losing transaction are discarded")
}

func TestMemoryReceipts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore(nil).Repositories().Receipts

	require.NoError(t, repo.Record(ctx, "u1", "roadmap:9", time.Now()))
	assert.ErrorIs(t, repo.Record(ctx, "u1", "roadmap:9", time.Now()), ErrDuplicateReceipt)

	exists, err := repo.Exists(ctx, "u1", "roadmap:9")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, "u2", "roadmap:9")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryTransactionHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewMemoryStore(nil).WithTransaction(ctx, func(c *Collection) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
