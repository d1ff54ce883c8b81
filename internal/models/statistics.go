package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// UserStatistics holds the cumulative activity counters of one user.
// Version is the optimistic concurrency token; zero means the row has
// not been persisted yet.
type UserStatistics struct {
	UserID               string    `json:"user_id" db:"user_id"`
	ModulesCompleted     int64     `json:"modules_completed" db:"modules_completed"`
	RoadmapsCompleted    int64     `json:"roadmaps_completed" db:"roadmaps_completed"`
	DiscussionsCreated   int64     `json:"discussions_created" db:"discussions_created"`
	CommentsMade         int64     `json:"comments_made" db:"comments_made"`
	XPEarned             int64     `json:"xp_earned" db:"xp_earned"`
	ConsecutiveDays      int64     `json:"consecutive_days" db:"consecutive_days"`
	PerfectWeeks         int64     `json:"perfect_weeks" db:"perfect_weeks"`
	EarlyBirdCompletions int64     `json:"early_bird_completions" db:"early_bird_completions"`
	NightOwlCompletions  int64     `json:"night_owl_completions" db:"night_owl_completions"`
	Version              int64     `json:"version" db:"version"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// NewUserStatistics returns the all-zero statistics of a user with no
// recorded activity.
func NewUserStatistics(userID string) UserStatistics {
	return UserStatistics{UserID: userID}
}

// Value returns the counter a criterion type is compared against.
func (s UserStatistics) Value(t CriteriaType) int64 {
	switch t {
	case CriteriaModulesCompleted:
		return s.ModulesCompleted
	case CriteriaRoadmapsCompleted:
		return s.RoadmapsCompleted
	case CriteriaDiscussionsCreated:
		return s.DiscussionsCreated
	case CriteriaCommentsMade:
		return s.CommentsMade
	case CriteriaXPEarned:
		return s.XPEarned
	case CriteriaConsecutiveDays:
		return s.ConsecutiveDays
	case CriteriaPerfectWeek:
		return s.PerfectWeeks
	case CriteriaEarlyBird:
		return s.EarlyBirdCompletions
	case CriteriaNightOwl:
		return s.NightOwlCompletions
	default:
		return 0
	}
}

// ActivityDelta is a partial set of counter increments produced by one
// activity event. ConsecutiveDays replaces the stored value when set;
// every other counter is added.
type ActivityDelta struct {
	ModulesCompleted     int64  `json:"modulesCompleted,omitempty" validate:"gte=0"`
	RoadmapsCompleted    int64  `json:"roadmapsCompleted,omitempty" validate:"gte=0"`
	DiscussionsCreated   int64  `json:"discussionsCreated,omitempty" validate:"gte=0"`
	CommentsMade         int64  `json:"commentsMade,omitempty" validate:"gte=0"`
	XPEarned             int64  `json:"xpEarned,omitempty" validate:"gte=0"`
	ConsecutiveDays      *int64 `json:"consecutiveDays,omitempty" validate:"omitempty,gte=0"`
	PerfectWeeks         int64  `json:"perfectWeeks,omitempty" validate:"gte=0"`
	EarlyBirdCompletions int64  `json:"earlyBirdCompletions,omitempty" validate:"gte=0"`
	NightOwlCompletions  int64  `json:"nightOwlCompletions,omitempty" validate:"gte=0"`

	// Reason describes activity XP in the ledger.
	Reason string `json:"reason,omitempty" validate:"max=255"`
	// IdempotencyKey makes a replayed event a no-op for the same user.
	IdempotencyKey string `json:"idempotencyKey,omitempty" validate:"max=255"`
}

// deltaFields maps the accepted field names to their setters.
var deltaFields = map[string]func(*ActivityDelta, int64){
	"modulesCompleted":     func(d *ActivityDelta, v int64) { d.ModulesCompleted = v },
	"roadmapsCompleted":    func(d *ActivityDelta, v int64) { d.RoadmapsCompleted = v },
	"discussionsCreated":   func(d *ActivityDelta, v int64) { d.DiscussionsCreated = v },
	"commentsMade":         func(d *ActivityDelta, v int64) { d.CommentsMade = v },
	"xpEarned":             func(d *ActivityDelta, v int64) { d.XPEarned = v },
	"consecutiveDays":      func(d *ActivityDelta, v int64) { d.ConsecutiveDays = &v },
	"perfectWeeks":         func(d *ActivityDelta, v int64) { d.PerfectWeeks = v },
	"earlyBirdCompletions": func(d *ActivityDelta, v int64) { d.EarlyBirdCompletions = v },
	"nightOwlCompletions":  func(d *ActivityDelta, v int64) { d.NightOwlCompletions = v },
}

// UnknownFieldsError is returned when a delta names fields that do not exist.
type UnknownFieldsError struct {
	Fields []string
}

func (e *UnknownFieldsError) Error() string {
	return fmt.Sprintf("unknown activity delta fields: %v", e.Fields)
}

// ParseActivityDelta builds a delta from named counter values. Unknown
// names are rejected; range checks are left to validation.
func ParseActivityDelta(values map[string]int64) (ActivityDelta, error) {
	var delta ActivityDelta
	var unknown []string
	for name, value := range values {
		set, ok := deltaFields[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		set(&delta, value)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return ActivityDelta{}, &UnknownFieldsError{Fields: unknown}
	}
	return delta, nil
}

// UnmarshalJSON decodes a delta strictly: unknown fields are an error.
func (d *ActivityDelta) UnmarshalJSON(data []byte) error {
	type plain ActivityDelta
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var out plain
	if err := dec.Decode(&out); err != nil {
		return fmt.Errorf("decode activity delta: %w", err)
	}
	*d = ActivityDelta(out)
	return nil
}

// IsEmpty reports whether the delta changes no counter.
func (d ActivityDelta) IsEmpty() bool {
	return d.ModulesCompleted == 0 &&
		d.RoadmapsCompleted == 0 &&
		d.DiscussionsCreated == 0 &&
		d.CommentsMade == 0 &&
		d.XPEarned == 0 &&
		d.ConsecutiveDays == nil &&
		d.PerfectWeeks == 0 &&
		d.EarlyBirdCompletions == 0 &&
		d.NightOwlCompletions == 0
}

// CounterOverflowError is returned when an increment would take a
// counter past math.MaxInt64.
type CounterOverflowError struct {
	Field string
}

func (e *CounterOverflowError) Error() string {
	return fmt.Sprintf("%s would overflow", e.Field)
}

func addCounter(field string, current, inc int64) (int64, error) {
	if inc > 0 && current > math.MaxInt64-inc {
		return current, &CounterOverflowError{Field: field}
	}
	return current + inc, nil
}

// AddXP credits amount to XPEarned unless that would overflow.
func (s *UserStatistics) AddXP(amount int64) error {
	xp, err := addCounter("xpEarned", s.XPEarned, amount)
	if err != nil {
		return err
	}
	s.XPEarned = xp
	return nil
}

// Apply returns stats with the delta applied. ConsecutiveDays is a
// direct overwrite, unlike every other counter. Nothing is applied if
// any counter would overflow.
func (d ActivityDelta) Apply(stats UserStatistics) (UserStatistics, error) {
	increments := []struct {
		field   string
		counter *int64
		inc     int64
	}{
		{"modulesCompleted", &stats.ModulesCompleted, d.ModulesCompleted},
		{"roadmapsCompleted", &stats.RoadmapsCompleted, d.RoadmapsCompleted},
		{"discussionsCreated", &stats.DiscussionsCreated, d.DiscussionsCreated},
		{"commentsMade", &stats.CommentsMade, d.CommentsMade},
		{"xpEarned", &stats.XPEarned, d.XPEarned},
		{"perfectWeeks", &stats.PerfectWeeks, d.PerfectWeeks},
		{"earlyBirdCompletions", &stats.EarlyBirdCompletions, d.EarlyBirdCompletions},
		{"nightOwlCompletions", &stats.NightOwlCompletions, d.NightOwlCompletions},
	}
	original := stats
	for _, c := range increments {
		v, err := addCounter(c.field, *c.counter, c.inc)
		if err != nil {
			return original, err
		}
		*c.counter = v
	}
	if d.ConsecutiveDays != nil {
		stats.ConsecutiveDays = *d.ConsecutiveDays
	}
	return stats, nil
}
