package models

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/slices"
)

// BadgeCategory groups badges on the achievements page.
type BadgeCategory string

const (
	CategoryLearning   BadgeCategory = "learning"
	CategoryEngagement BadgeCategory = "engagement"
	CategoryMastery    BadgeCategory = "mastery"
	CategorySocial     BadgeCategory = "social"
	CategorySpecial    BadgeCategory = "special"
)

// BadgeCategories lists the categories in display order.
var BadgeCategories = []BadgeCategory{
	CategoryLearning,
	CategoryEngagement,
	CategoryMastery,
	CategorySocial,
	CategorySpecial,
}

// CriteriaType names the statistic a badge criterion is measured against.
type CriteriaType string

const (
	CriteriaModulesCompleted   CriteriaType = "modules_completed"
	CriteriaRoadmapsCompleted  CriteriaType = "roadmaps_completed"
	CriteriaDiscussionsCreated CriteriaType = "discussions_created"
	CriteriaCommentsMade       CriteriaType = "comments_made"
	CriteriaXPEarned           CriteriaType = "xp_earned"
	CriteriaConsecutiveDays    CriteriaType = "consecutive_days"
	CriteriaPerfectWeek        CriteriaType = "perfect_week"
	CriteriaEarlyBird          CriteriaType = "early_bird"
	CriteriaNightOwl           CriteriaType = "night_owl"
)

var criteriaTypes = []CriteriaType{
	CriteriaModulesCompleted,
	CriteriaRoadmapsCompleted,
	CriteriaDiscussionsCreated,
	CriteriaCommentsMade,
	CriteriaXPEarned,
	CriteriaConsecutiveDays,
	CriteriaPerfectWeek,
	CriteriaEarlyBird,
	CriteriaNightOwl,
}

// IsValid reports whether t is one of the known criterion types.
func (t CriteriaType) IsValid() bool {
	return slices.Contains(criteriaTypes, t)
}

// IsValid reports whether c is one of the known categories.
func (c BadgeCategory) IsValid() bool {
	return slices.Contains(BadgeCategories, c)
}

// BadgeCriteria is the single rule a badge is awarded on.
type BadgeCriteria struct {
	Type      CriteriaType `json:"type" db:"criteria_type"`
	Threshold int64        `json:"threshold" db:"criteria_value"`
}

// Progress returns min(100, 100*value/threshold) for the statistic the
// criterion measures. The result is unrounded and always within [0, 100].
func (c BadgeCriteria) Progress(stats UserStatistics) float64 {
	if c.Threshold <= 0 || !c.Type.IsValid() {
		return 0
	}
	value := stats.Value(c.Type)
	if value <= 0 {
		return 0
	}
	if value >= c.Threshold {
		return 100
	}
	progress := float64(value) / float64(c.Threshold) * 100
	// Huge thresholds can round up; 100 is reserved for a met threshold.
	return math.Min(progress, math.Nextafter(100, 0))
}

// BadgeDefinition is an entry of the static badge catalog.
type BadgeDefinition struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`
	Category    BadgeCategory `json:"category"`
	XPReward    int64         `json:"xp_reward"`
	Criteria    BadgeCriteria `json:"criteria"`
}

// IsSatisfied reports whether stats meet the badge criterion. The
// comparison is on integers; Progress is for display.
func (b BadgeDefinition) IsSatisfied(stats UserStatistics) bool {
	c := b.Criteria
	return c.Threshold > 0 && c.Type.IsValid() && stats.Value(c.Type) >= c.Threshold
}

// Validate checks the definition is usable by the progression engine.
func (b BadgeDefinition) Validate() error {
	switch {
	case b.ID == "":
		return fmt.Errorf("badge id is required")
	case b.XPReward <= 0:
		return fmt.Errorf("badge %s: xp_reward must be positive", b.ID)
	case b.Criteria.Threshold <= 0:
		return fmt.Errorf("badge %s: criteria threshold must be positive", b.ID)
	case !b.Criteria.Type.IsValid():
		return fmt.Errorf("badge %s: unknown criteria type %q", b.ID, b.Criteria.Type)
	case !b.Category.IsValid():
		return fmt.Errorf("badge %s: unknown category %q", b.ID, b.Category)
	}
	return nil
}

// AwardedBadge records that a user has permanently earned a badge.
// At most one row exists per (user, badge).
type AwardedBadge struct {
	UserID   string    `json:"user_id" db:"user_id"`
	BadgeID  string    `json:"badge_id" db:"badge_id"`
	EarnedAt time.Time `json:"earned_at" db:"earned_at"`
}

// BadgeProgress is the per-badge view returned by progress evaluation.
type BadgeProgress struct {
	Badge           BadgeDefinition `json:"badge"`
	ProgressPercent float64         `json:"progress_percent"`
	Earned          bool            `json:"earned"`
	EarnedAt        *time.Time      `json:"earned_at,omitempty"`
}

// DisplayPercent rounds a progress value for display.
func DisplayPercent(progress float64) int {
	return int(math.Round(progress))
}
