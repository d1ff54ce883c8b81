package models

import "time"

// XPReasonKind tells why XP was credited.
type XPReasonKind string

const (
	XPReasonActivity XPReasonKind = "activity"
	XPReasonBadge    XPReasonKind = "badge"
)

// IsValid reports whether k is a known reason kind.
func (k XPReasonKind) IsValid() bool {
	return k == XPReasonActivity || k == XPReasonBadge
}

// XPLedgerEntry is an immutable, append-only XP credit. The sum of a
// user's entries equals the user's XPEarned counter.
type XPLedgerEntry struct {
	ID          string       `json:"id" db:"id"`
	UserID      string       `json:"user_id" db:"user_id"`
	Amount      int64        `json:"amount" db:"amount"`
	Kind        XPReasonKind `json:"type" db:"type"`
	Description string       `json:"description" db:"description"`
	SourceKey   *string      `json:"source_key,omitempty" db:"source_key"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// AchievementSummary aggregates a user's XP and badge state for the
// achievements and profile pages.
type AchievementSummary struct {
	UserID       string                            `json:"user_id"`
	XPEarned     int64                             `json:"xp_earned"`
	LedgerXP     int64                             `json:"ledger_xp"`
	BadgesEarned int                               `json:"badges_earned"`
	BadgesTotal  int                               `json:"badges_total"`
	ByCategory   map[BadgeCategory][]BadgeProgress `json:"by_category"`
}

// IsConsistent reports whether the XP counter matches the ledger.
func (s *AchievementSummary) IsConsistent() bool {
	return s.XPEarned == s.LedgerXP
}
