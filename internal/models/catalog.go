package models

import "fmt"

// BadgeCatalog is an immutable, ordered list of badge definitions.
// The progression engine evaluates badges in catalog order.
type BadgeCatalog struct {
	badges []BadgeDefinition
	index  map[string]int
}

// NewBadgeCatalog validates and copies the given definitions.
func NewBadgeCatalog(defs ...BadgeDefinition) (*BadgeCatalog, error) {
	catalog := &BadgeCatalog{
		badges: make([]BadgeDefinition, 0, len(defs)),
		index:  make(map[string]int, len(defs)),
	}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := catalog.index[def.ID]; dup {
			return nil, fmt.Errorf("duplicate badge id %q", def.ID)
		}
		catalog.index[def.ID] = len(catalog.badges)
		catalog.badges = append(catalog.badges, def)
	}
	return catalog, nil
}

// All returns a copy of the definitions in catalog order.
func (c *BadgeCatalog) All() []BadgeDefinition {
	out := make([]BadgeDefinition, len(c.badges))
	copy(out, c.badges)
	return out
}

// Lookup finds a badge by id.
func (c *BadgeCatalog) Lookup(id string) (BadgeDefinition, bool) {
	i, ok := c.index[id]
	if !ok {
		return BadgeDefinition{}, false
	}
	return c.badges[i], true
}

// Len returns the number of badges in the catalog.
func (c *BadgeCatalog) Len() int {
	return len(c.badges)
}

// DefaultBadgeCatalog returns the catalog the platform ships with. Ids,
// thresholds and rewards are an external contract; do not edit in place.
func DefaultBadgeCatalog() *BadgeCatalog {
	catalog, err := NewBadgeCatalog(defaultBadges...)
	if err != nil {
		panic(fmt.Sprintf("default badge catalog is invalid: %v", err))
	}
	return catalog
}

var defaultBadges = []BadgeDefinition{
	{
		ID:          "first_module",
		Name:        "First Steps",
		Description: "Complete your first module",
		Icon:        "📚",
		Category:    CategoryLearning,
		XPReward:    50,
		Criteria:    BadgeCriteria{Type: CriteriaModulesCompleted, Threshold: 1},
	},
	{
		ID:          "module_master",
		Name:        "Module Master",
		Description: "Complete 10 modules",
		Icon:        "📚",
		Category:    CategoryLearning,
		XPReward:    200,
		Criteria:    BadgeCriteria{Type: CriteriaModulesCompleted, Threshold: 10},
	},
	{
		ID:          "roadmap_completer",
		Name:        "Roadmap Champion",
		Description: "Complete your first roadmap",
		Icon:        "🎯",
		Category:    CategoryMastery,
		XPReward:    500,
		Criteria:    BadgeCriteria{Type: CriteriaRoadmapsCompleted, Threshold: 1},
	},
	{
		ID:          "discussion_starter",
		Name:        "Discussion Starter",
		Description: "Create your first discussion",
		Icon:        "💭",
		Category:    CategorySocial,
		XPReward:    100,
		Criteria:    BadgeCriteria{Type: CriteriaDiscussionsCreated, Threshold: 1},
	},
	{
		ID:          "active_commenter",
		Name:        "Active Commenter",
		Description: "Make 10 comments",
		Icon:        "💬",
		Category:    CategoryEngagement,
		XPReward:    150,
		Criteria:    BadgeCriteria{Type: CriteriaCommentsMade, Threshold: 10},
	},
	{
		ID:          "xp_collector",
		Name:        "XP Collector",
		Description: "Earn 1000 XP",
		Icon:        "✨",
		Category:    CategoryMastery,
		XPReward:    200,
		Criteria:    BadgeCriteria{Type: CriteriaXPEarned, Threshold: 1000},
	},
	{
		ID:          "streak_3",
		Name:        "3-Day Streak",
		Description: "Learn for 3 consecutive days",
		Icon:        "🔥",
		Category:    CategorySpecial,
		XPReward:    100,
		Criteria:    BadgeCriteria{Type: CriteriaConsecutiveDays, Threshold: 3},
	},
	{
		ID:          "streak_7",
		Name:        "7-Day Streak",
		Description: "Learn for 7 consecutive days",
		Icon:        "🔥",
		Category:    CategorySpecial,
		XPReward:    300,
		Criteria:    BadgeCriteria{Type: CriteriaConsecutiveDays, Threshold: 7},
	},
	{
		ID:          "perfect_week",
		Name:        "Perfect Week",
		Description: "Complete all modules in a week",
		Icon:        "🌟",
		Category:    CategorySpecial,
		XPReward:    500,
		Criteria:    BadgeCriteria{Type: CriteriaPerfectWeek, Threshold: 1},
	},
	{
		ID:          "early_bird",
		Name:        "Early Bird",
		Description: "Complete a module before 9 AM",
		Icon:        "🌅",
		Category:    CategorySpecial,
		XPReward:    100,
		Criteria:    BadgeCriteria{Type: CriteriaEarlyBird, Threshold: 1},
	},
	{
		ID:          "night_owl",
		Name:        "Night Owl",
		Description: "Complete a module after 9 PM",
		Icon:        "🌙",
		Category:    CategorySpecial,
		XPReward:    100,
		Criteria:    BadgeCriteria{Type: CriteriaNightOwl, Threshold: 1},
	},
}
