package domain

import "time"

// Tier is one visibility rule. A post qualifies for the feed when it
// satisfies at least one tier: likes >= MinLikes AND age <= MaxAgeDays.
type Tier struct {
	Name       string `json:"name" yaml:"name"`
	MinLikes   int    `json:"min_likes" yaml:"min_likes"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// DefaultTiers admits fresh posts regardless of engagement and keeps
// well-liked posts around for three weeks.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "fresh", MinLikes: 0, MaxAgeDays: 3},
		{Name: "popular", MinLikes: 10, MaxAgeDays: 21},
	}
}

// Visible reports whether the post belongs in the feed under the given
// tiers. Tiers are evaluated independently: AND within a tier, OR across
// tiers. An unparsable timestamp makes the post visible: suppressing
// content erroneously is worse than over-showing it.
func Visible(p *Post, tiers []Tier, now time.Time) bool {
	created, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return true
	}
	age := now.Sub(created)
	for _, t := range tiers {
		if p.Likes >= t.MinLikes && age <= time.Duration(t.MaxAgeDays)*24*time.Hour {
			return true
		}
	}
	return false
}
