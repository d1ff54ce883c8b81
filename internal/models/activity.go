package models

import (
	"math"
	"time"
)

// TimeOfDay classifies when a module was completed.
type TimeOfDay string

const (
	TimeOfDayNone      TimeOfDay = "none"
	TimeOfDayEarlyBird TimeOfDay = "early_bird"
	TimeOfDayNightOwl  TimeOfDay = "night_owl"
)

// ClassifyCompletionTime applies the early-bird window [05:00, 09:00) and
// the night-owl window [22:00, 05:00) to the hour of t in t's location.
// The windows do not overlap.
func ClassifyCompletionTime(t time.Time) TimeOfDay {
	hour := t.Hour()
	switch {
	case hour >= 5 && hour < 9:
		return TimeOfDayEarlyBird
	case hour >= 22 || hour < 5:
		return TimeOfDayNightOwl
	default:
		return TimeOfDayNone
	}
}

// RoadmapCompletionPercent returns the rounded share of completed modules.
// Only a fully completed roadmap reports 100.
func RoadmapCompletionPercent(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	percent := int(math.Round(float64(completed) / float64(total) * 100))
	if percent >= 100 {
		percent = 99
	}
	return percent
}
