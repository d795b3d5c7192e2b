package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVisibleORAcrossTiers(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	// One day old, zero likes.
	post := &Post{Timestamp: now.Add(-24 * time.Hour).Format(time.RFC3339)}

	fresh := Tier{Name: "fresh", MinLikes: 0, MaxAgeDays: 3}
	popular := Tier{Name: "popular", MinLikes: 50, MaxAgeDays: 21}

	assert.True(t, Visible(post, []Tier{fresh}, now), "fresh tier alone admits it")
	assert.False(t, Visible(post, []Tier{popular}, now), "popular tier alone rejects it")
	assert.True(t, Visible(post, []Tier{fresh, popular}, now), "both tiers together admit it")
}

func TestVisibleANDWithinTier(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	tier := Tier{MinLikes: 5, MaxAgeDays: 3}

	liked := &Post{Likes: 5, Timestamp: now.Add(-24 * time.Hour).Format(time.RFC3339)}
	old := &Post{Likes: 5, Timestamp: now.Add(-5 * 24 * time.Hour).Format(time.RFC3339)}
	unliked := &Post{Likes: 4, Timestamp: now.Add(-24 * time.Hour).Format(time.RFC3339)}

	assert.True(t, Visible(liked, []Tier{tier}, now))
	assert.False(t, Visible(old, []Tier{tier}, now), "age must also pass")
	assert.False(t, Visible(unliked, []Tier{tier}, now), "likes must also pass")
}

func TestVisibleFailsOpenOnBadTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	post := &Post{Timestamp: "not a timestamp"}
	assert.True(t, Visible(post, []Tier{{MinLikes: 999, MaxAgeDays: 0}}, now))
}

func TestVisibleNoTiers(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	post := &Post{Timestamp: now.Format(time.RFC3339)}
	assert.False(t, Visible(post, nil, now))
}
