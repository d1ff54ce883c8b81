package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBadgeCatalog(t *testing.T) {
	catalog := DefaultBadgeCatalog()
	require.Equal(t, 11, catalog.Len())

	expected := []struct {
		id        string
		criteria  CriteriaType
		threshold int64
		reward    int64
		category  BadgeCategory
	}{
		{"first_module", CriteriaModulesCompleted, 1, 50, CategoryLearning},
		{"module_master", CriteriaModulesCompleted, 10, 200, CategoryLearning},
		{"roadmap_completer", CriteriaRoadmapsCompleted, 1, 500, CategoryMastery},
		{"discussion_starter", CriteriaDiscussionsCreated, 1, 100, CategorySocial},
		{"active_commenter", CriteriaCommentsMade, 10, 150, CategoryEngagement},
		{"xp_collector", CriteriaXPEarned, 1000, 200, CategoryMastery},
		{"streak_3", CriteriaConsecutiveDays, 3, 100, CategorySpecial},
		{"streak_7", CriteriaConsecutiveDays, 7, 300, CategorySpecial},
		{"perfect_week", CriteriaPerfectWeek, 1, 500, CategorySpecial},
		{"early_bird", CriteriaEarlyBird, 1, 100, CategorySpecial},
		{"night_owl", CriteriaNightOwl, 1, 100, CategorySpecial},
	}

	all := catalog.All()
	for i, want := range expected {
		got := all[i]
		assert.Equal(t, want.id, got.ID, "catalog order at %d", i)
		assert.Equal(t, want.criteria, got.Criteria.Type, want.id)
		assert.Equal(t, want.threshold, got.Criteria.Threshold, want.id)
		assert.Equal(t, want.reward, got.XPReward, want.id)
		assert.Equal(t, want.category, got.Category, want.id)
	}
}

func TestBadgeCatalogIsImmutable(t *testing.T) {
	catalog := DefaultBadgeCatalog()
	all := catalog.All()
	all[0].XPReward = 9999

	first, ok := catalog.Lookup("first_module")
	require.True(t, ok)
	assert.Equal(t, int64(50), first.XPReward)
}

func TestNewBadgeCatalogRejectsInvalidDefinitions(t *testing.T) {
	valid := BadgeDefinition{
		ID:       "ok",
		Category: CategoryLearning,
		XPReward: 10,
		Criteria: BadgeCriteria{Type: CriteriaModulesCompleted, Threshold: 1},
	}

	tests := []struct {
		name   string
		mutate func(b *BadgeDefinition)
	}{
		{"missing id", func(b *BadgeDefinition) { b.ID = "" }},
		{"zero reward", func(b *BadgeDefinition) { b.XPReward = 0 }},
		{"zero threshold", func(b *BadgeDefinition) { b.Criteria.Threshold = 0 }},
		{"unknown criteria", func(b *BadgeDefinition) { b.Criteria.Type = "logins" }},
		{"unknown category", func(b *BadgeDefinition) { b.Category = "fun" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := valid
			tt.mutate(&def)
			_, err := NewBadgeCatalog(def)
			assert.Error(t, err)
		})
	}

	t.Run("duplicate id", func(t *testing.T) {
		_, err := NewBadgeCatalog(valid, valid)
		assert.Error(t, err)
	})
}

func TestBadgeCriteriaProgress(t *testing.T) {
	tests := []struct {
		name      string
		criteria  BadgeCriteria
		stats     UserStatistics
		want      float64
		satisfied bool
	}{
		{"zero stats", BadgeCriteria{CriteriaModulesCompleted, 10}, UserStatistics{}, 0, false},
		{"partial", BadgeCriteria{CriteriaModulesCompleted, 10}, UserStatistics{ModulesCompleted: 3}, 30, false},
		{"fractional", BadgeCriteria{CriteriaCommentsMade, 3}, UserStatistics{CommentsMade: 1}, 100.0 / 3, false},
		{"exact threshold", BadgeCriteria{CriteriaXPEarned, 1000}, UserStatistics{XPEarned: 1000}, 100, true},
		{"clamped", BadgeCriteria{CriteriaXPEarned, 1000}, UserStatistics{XPEarned: 5000}, 100, true},
		{"just below", BadgeCriteria{CriteriaXPEarned, 1000}, UserStatistics{XPEarned: 999}, 99.9, false},
		{"perfect week", BadgeCriteria{CriteriaPerfectWeek, 1}, UserStatistics{PerfectWeeks: 1}, 100, true},
		{"early bird", BadgeCriteria{CriteriaEarlyBird, 1}, UserStatistics{EarlyBirdCompletions: 2}, 100, true},
		{"night owl", BadgeCriteria{CriteriaNightOwl, 1}, UserStatistics{EarlyBirdCompletions: 2}, 0, false},
		{"streak", BadgeCriteria{CriteriaConsecutiveDays, 7}, UserStatistics{ConsecutiveDays: 7}, 100, true},
		{"unknown type", BadgeCriteria{"logins", 1}, UserStatistics{ModulesCompleted: 5}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.criteria.Progress(tt.stats)
			assert.InDelta(t, tt.want, got, 1e-9)
			def := BadgeDefinition{Criteria: tt.criteria}
			assert.Equal(t, tt.satisfied, def.IsSatisfied(tt.stats))
		})
	}
}

func TestBadgeCriteriaProgressIsMonotonic(t *testing.T) {
	criteria := BadgeCriteria{Type: CriteriaModulesCompleted, Threshold: 7}
	previous := -1.0
	reached := 0
	for value := int64(0); value <= 20; value++ {
		progress := criteria.Progress(UserStatistics{ModulesCompleted: value})
		assert.GreaterOrEqual(t, progress, previous)
		assert.GreaterOrEqual(t, progress, 0.0)
		assert.LessOrEqual(t, progress, 100.0)
		if progress == 100 {
			reached++
			assert.GreaterOrEqual(t, value, criteria.Threshold)
		} else {
			assert.Less(t, value, criteria.Threshold)
		}
		previous = progress
	}
	assert.Equal(t, 14, reached)
}

func TestDisplayPercent(t *testing.T) {
	assert.Equal(t, 33, DisplayPercent(100.0/3))
	assert.Equal(t, 67, DisplayPercent(200.0/3))
	assert.Equal(t, 100, DisplayPercent(100))
	assert.Equal(t, 0, DisplayPercent(0))
}

func TestParseActivityDelta(t *testing.T) {
	delta, err := ParseActivityDelta(map[string]int64{
		"modulesCompleted": 1,
		"xpEarned":         25,
		"consecutiveDays":  4,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), delta.ModulesCompleted)
	assert.Equal(t, int64(25), delta.XPEarned)
	require.NotNil(t, delta.ConsecutiveDays)
	assert.Equal(t, int64(4), *delta.ConsecutiveDays)

	_, err = ParseActivityDelta(map[string]int64{"modulesCompleted": 1, "logins": 3, "badges": 1})
	var unknown *UnknownFieldsError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"badges", "logins"}, unknown.Fields)
}

func TestActivityDeltaUnmarshalJSONRejectsUnknownFields(t *testing.T) {
	var delta ActivityDelta
	require.NoError(t, json.Unmarshal([]byte(`{"modulesCompleted":2,"consecutiveDays":0}`), &delta))
	assert.Equal(t, int64(2), delta.ModulesCompleted)
	require.NotNil(t, delta.ConsecutiveDays)
	assert.Equal(t, int64(0), *delta.ConsecutiveDays)

	err := json.Unmarshal([]byte(`{"modulesCompleted":1,"points":5}`), &delta)
	assert.Error(t, err)
}

func TestActivityDeltaApply(t *testing.T) {
	days := int64(2)
	stats := UserStatistics{
		UserID:           "u1",
		ModulesCompleted: 4,
		XPEarned:         100,
		ConsecutiveDays:  9,
		Version:          3,
	}

	updated, err := ActivityDelta{ModulesCompleted: 1, XPEarned: 50, ConsecutiveDays: &days}.Apply(stats)
	require.NoError(t, err)
	assert.Equal(t, int64(5), updated.ModulesCompleted)
	assert.Equal(t, int64(150), updated.XPEarned)
	assert.Equal(t, int64(2), updated.ConsecutiveDays, "consecutive days overwrites")
	assert.Equal(t, int64(3), updated.Version)

	unchanged, err := ActivityDelta{CommentsMade: 1}.Apply(stats)
	require.NoError(t, err)
	assert.Equal(t, int64(9), unchanged.ConsecutiveDays)
	assert.True(t, ActivityDelta{Reason: "x"}.IsEmpty())
	assert.False(t, ActivityDelta{ConsecutiveDays: &days}.IsEmpty())
}

func TestClassifyCompletionTime(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
	}

	tests := []struct {
		when time.Time
		want TimeOfDay
	}{
		{at(4, 59), TimeOfDayNightOwl},
		{at(5, 0), TimeOfDayEarlyBird},
		{at(8, 59), TimeOfDayEarlyBird},
		{at(9, 0), TimeOfDayNone},
		{at(14, 30), TimeOfDayNone},
		{at(21, 59), TimeOfDayNone},
		{at(22, 0), TimeOfDayNightOwl},
		{at(23, 59), TimeOfDayNightOwl},
		{at(0, 0), TimeOfDayNightOwl},
	}

	for _, tt := range tests {
		t.Run(tt.when.Format("15:04"), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyCompletionTime(tt.when))
		})
	}

	t.Run("uses the time's location", func(t *testing.T) {
		tokyo := time.FixedZone("JST", 9*60*60)
		utcEvening := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
		assert.Equal(t, TimeOfDayNone, ClassifyCompletionTime(utcEvening))
		assert.Equal(t, TimeOfDayEarlyBird, ClassifyCompletionTime(utcEvening.In(tokyo)))
	})
}

func TestRoadmapCompletionPercent(t *testing.T) {
	assert.Equal(t, 0, RoadmapCompletionPercent(0, 0))
	assert.Equal(t, 0, RoadmapCompletionPercent(0, 4))
	assert.Equal(t, 50, RoadmapCompletionPercent(2, 4))
	assert.Equal(t, 33, RoadmapCompletionPercent(1, 3))
	assert.Equal(t, 99, RoadmapCompletionPercent(199, 200))
	assert.Equal(t, 100, RoadmapCompletionPercent(4, 4))
}

func TestActivityDeltaApplyRejectsOverflow(t *testing.T) {
	days := int64(4)
	stats := UserStatistics{UserID: "u1", CommentsMade: 1, XPEarned: 20, ConsecutiveDays: 1}

	got, err := ActivityDelta{CommentsMade: math.MaxInt64, XPEarned: 5, ConsecutiveDays: &days}.Apply(stats)
	var overflow *CounterOverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, "commentsMade", overflow.Field)
	assert.Equal(t, stats, got, "nothing is applied")

	_, err = ActivityDelta{XPEarned: math.MaxInt64 - 19}.Apply(stats)
	assert.Error(t, err)

	edge, err := ActivityDelta{XPEarned: math.MaxInt64 - 20}.Apply(stats)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), edge.XPEarned)

	assert.Error(t, edge.AddXP(1))
	assert.Equal(t, int64(math.MaxInt64), edge.XPEarned)
	require.NoError(t, stats.AddXP(30))
	assert.Equal(t, int64(50), stats.XPEarned)
}

func TestBadgeSatisfiedOnlyAtThresholdForHugeThresholds(t *testing.T) {
	threshold := int64(1) << 60
	badge := BadgeDefinition{ID: "huge", Criteria: BadgeCriteria{Type: CriteriaXPEarned, Threshold: threshold}}

	below := UserStatistics{XPEarned: threshold - 1}
	assert.False(t, badge.IsSatisfied(below))
	assert.Less(t, badge.Criteria.Progress(below), 100.0)

	at := UserStatistics{XPEarned: threshold}
	assert.True(t, badge.IsSatisfied(at))
	assert.Equal(t, 100.0, badge.Criteria.Progress(at))
}
