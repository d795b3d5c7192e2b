package agent

import (
	"math/rand"
	"sort"

	"github.com/murmurfeed/murmur/internal/config"
	"github.com/murmurfeed/murmur/internal/domain"
)

// Snapshot is one cycle's bounded sample of the visible feed. Its id sets
// are the only universe of valid targets for that cycle: a proposal
// referencing anything outside them is rejected.
type Snapshot struct {
	Entries  []domain.FeedEntry
	posts    map[string]struct{}
	comments map[string]string // comment id -> parent post id
}

// HasPost reports whether the post id was sampled this cycle.
func (s *Snapshot) HasPost(id string) bool {
	_, ok := s.posts[id]
	return ok
}

// CommentPost returns the parent post id of a sampled comment.
func (s *Snapshot) CommentPost(id string) (string, bool) {
	postID, ok := s.comments[id]
	return postID, ok
}

// Shrink returns a snapshot over the first half of the entries, used when
// the proposer chokes on the full sample.
func (s *Snapshot) Shrink() *Snapshot {
	return newSnapshot(s.Entries[:len(s.Entries)/2])
}

// BuildSnapshot partitions the target size across three weighted buckets
// (most recent, highest engagement, uniformly random from the remainder)
// and deduplicates across them, preserving pick order.
func BuildSnapshot(entries []domain.FeedEntry, size int, ratios config.SampleRatios, rng *rand.Rand) *Snapshot {
	if size <= 0 || len(entries) == 0 {
		return newSnapshot(nil)
	}
	if size > len(entries) {
		size = len(entries)
	}

	recentCount := int(float64(size) * ratios.Recent)
	engagedCount := int(float64(size) * ratios.Engaged)
	randomCount := size - recentCount - engagedCount
	if randomCount < 0 {
		randomCount = 0
	}

	byRecency := make([]domain.FeedEntry, len(entries))
	copy(byRecency, entries)
	sort.SliceStable(byRecency, func(i, j int) bool {
		return byRecency[i].Timestamp > byRecency[j].Timestamp
	})

	byEngagement := make([]domain.FeedEntry, len(entries))
	copy(byEngagement, entries)
	sort.SliceStable(byEngagement, func(i, j int) bool {
		return engagement(byEngagement[i]) > engagement(byEngagement[j])
	})

	picked := make([]domain.FeedEntry, 0, size)
	seen := make(map[string]struct{}, size)
	take := func(pool []domain.FeedEntry, n int) {
		for _, entry := range pool {
			if n <= 0 {
				return
			}
			if _, dup := seen[entry.ID]; dup {
				continue
			}
			seen[entry.ID] = struct{}{}
			picked = append(picked, entry)
			n--
		}
	}

	take(byRecency, recentCount)
	take(byEngagement, engagedCount)

	var remainder []domain.FeedEntry
	for _, entry := range entries {
		if _, dup := seen[entry.ID]; !dup {
			remainder = append(remainder, entry)
		}
	}
	rng.Shuffle(len(remainder), func(i, j int) {
		remainder[i], remainder[j] = remainder[j], remainder[i]
	})
	take(remainder, randomCount)

	return newSnapshot(picked)
}

func engagement(e domain.FeedEntry) int {
	return e.Likes + e.CommentCount + e.ShareCount
}

func newSnapshot(entries []domain.FeedEntry) *Snapshot {
	snap := &Snapshot{
		Entries:  entries,
		posts:    make(map[string]struct{}, len(entries)),
		comments: make(map[string]string),
	}
	for _, entry := range entries {
		snap.posts[entry.ID] = struct{}{}
		for _, c := range entry.Comments {
			snap.comments[c.ID] = entry.ID
		}
	}
	return snap
}
