package events

import "learnhub/internal/models"

const (
	EventTypeActivityRecorded = "progression.activity_recorded"
	EventTypeBadgeAwarded     = "progression.badge_awarded"
)

// ActivityRecordedEvent is published after an activity delta commits
type ActivityRecordedEvent struct {
	BaseEvent
	Delta      models.ActivityDelta     `json:"delta"`
	Statistics models.UserStatistics    `json:"statistics"`
	NewBadges  []models.BadgeDefinition `json:"new_badges"`
	Replayed   bool                     `json:"replayed"`
}

// NewActivityRecordedEvent builds the event for a committed activity
func NewActivityRecordedEvent(userID string, delta models.ActivityDelta, stats models.UserStatistics, newBadges []models.BadgeDefinition, replayed bool) *ActivityRecordedEvent {
	e := &ActivityRecordedEvent{
		BaseEvent:  NewBaseEvent(EventTypeActivityRecorded, userID),
		Delta:      delta,
		Statistics: stats,
		NewBadges:  newBadges,
		Replayed:   replayed,
	}
	if delta.IdempotencyKey != "" {
		e.Metadata = map[string]interface{}{"idempotency_key": delta.IdempotencyKey}
	}
	return e
}

// BadgeAwardedEvent is published once per newly earned badge
type BadgeAwardedEvent struct {
	BaseEvent
	Badge    models.BadgeDefinition `json:"badge"`
	XPReward int64                  `json:"xp_reward"`
}

// NewBadgeAwardedEvent builds the event for an awarded badge
func NewBadgeAwardedEvent(userID string, badge models.BadgeDefinition) *BadgeAwardedEvent {
	return &BadgeAwardedEvent{
		BaseEvent: NewBaseEvent(EventTypeBadgeAwarded, userID),
		Badge:     badge,
		XPReward:  badge.XPReward,
	}
}
