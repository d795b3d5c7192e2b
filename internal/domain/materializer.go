package domain

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// rebuildLocked performs a full, non-incremental regeneration of the
// derived feed document from current store state, writes it, and re-saves
// the canonical documents (a rebuild is also a save point). A rebuild
// requested while one is already running on this call stack is a no-op:
// loading can synthesize missing ids, which looks like a mutation and
// would otherwise chain rebuilds forever.
func (e *Engine) rebuildLocked(ctx context.Context) error {
	if e.rebuilding {
		e.metrics.RebuildSkipsTotal.Inc()
		return nil
	}
	e.rebuilding = true
	defer func() { e.rebuilding = false }()

	now := e.now().UTC()
	doc := &FeedDocument{
		Meta:  FeedMeta{LastUpdated: now.Format(time.RFC3339)},
		Posts: []FeedEntry{},
	}
	visible := make([]*Post, 0, len(e.posts))
	for _, p := range e.posts {
		if Visible(p, e.tiers, now) {
			visible = append(visible, p)
		}
	}
	sortPosts(visible, e.ranking)
	for _, p := range visible {
		doc.Posts = append(doc.Posts, e.buildEntry(p))
	}
	doc.Meta.EntryCount = len(doc.Posts)

	if err := e.store.WriteFeedDocument(ctx, doc); err != nil {
		return fmt.Errorf("write feed document: %w", err)
	}
	e.feed = doc
	e.saveLocked(ctx)
	e.metrics.RebuildsTotal.Inc()

	// The load-time rebuild has no audience yet; subscribers attach after
	// Load returns and start from their first read.
	if !e.loading {
		ids := make([]string, len(doc.Posts))
		for i, entry := range doc.Posts {
			ids[i] = entry.ID
		}
		e.broadcast(FeedUpdate{EntryIDs: ids, At: doc.Meta.LastUpdated})
	}
	return nil
}

// Feed sort orders.
const (
	SortNewestFirst = "newest_first"
	SortMostLiked   = "most_liked"
)

// sortPosts orders the visible posts for the feed. The ordering is total
// (id breaks every tie) so rebuilding an unchanged store always emits a
// byte-identical document regardless of scope iteration order.
func sortPosts(posts []*Post, order string) {
	switch order {
	case SortMostLiked:
		sort.SliceStable(posts, func(i, j int) bool {
			if posts[i].Likes != posts[j].Likes {
				return posts[i].Likes > posts[j].Likes
			}
			return posts[i].ID < posts[j].ID
		})
	default:
		sort.SliceStable(posts, func(i, j int) bool {
			ti, tj := parseWhen(posts[i].Timestamp), parseWhen(posts[j].Timestamp)
			if !ti.Equal(tj) {
				return ti.After(tj)
			}
			return posts[i].ID < posts[j].ID
		})
	}
}

// buildEntry flattens one post and its comment/reply subtree into the
// external read-model shape.
func (e *Engine) buildEntry(p *Post) FeedEntry {
	entry := FeedEntry{
		ID:           p.ID,
		Type:         p.Kind,
		Author:       p.Author,
		AuthorKind:   p.AuthorKind,
		Content:      p.Content,
		Timestamp:    p.Timestamp,
		Likes:        p.Likes,
		CommentCount: len(p.Comments),
		ShareCount:   p.Shares,
		Embedded:     p.Embedded,
		Comments:     make([]FeedComment, 0, len(p.Comments)),
	}
	// A repost or quote always reports zero shares of its own; the
	// embedded original is the one whose counter moves.
	if p.Kind != KindOriginal {
		entry.ShareCount = 0
	}

	for _, c := range p.Comments {
		entry.Comments = append(entry.Comments, buildComment(c))
	}
	// Top-level display is newest-first.
	sort.SliceStable(entry.Comments, func(i, j int) bool {
		return parseWhen(entry.Comments[i].Timestamp).After(parseWhen(entry.Comments[j].Timestamp))
	})
	return entry
}

func buildComment(c *Comment) FeedComment {
	fc := FeedComment{
		ID:        c.ID,
		Author:    c.Author,
		Content:   c.Content,
		Likes:     c.Likes,
		Reacts:    append([]Reaction{}, c.Reacts...),
		Timestamp: c.Timestamp,
		Replies:   make([]FeedReply, 0, len(c.Replies)),
	}
	for _, r := range c.Replies {
		fc.Replies = append(fc.Replies, FeedReply{
			ID:        r.ID,
			Author:    r.Author,
			Content:   r.Content,
			Likes:     len(r.LikedBy),
			Timestamp: r.Timestamp,
		})
	}
	// Two orderings of the same reply list, both computed here and never
	// stored: chronological for the expanded read path, most-liked-first
	// for the collapsed one.
	sort.SliceStable(fc.Replies, func(i, j int) bool {
		return parseWhen(fc.Replies[i].Timestamp).Before(parseWhen(fc.Replies[j].Timestamp))
	})
	fc.RepliesByLikes = append([]FeedReply{}, fc.Replies...)
	sort.SliceStable(fc.RepliesByLikes, func(i, j int) bool {
		return fc.RepliesByLikes[i].Likes > fc.RepliesByLikes[j].Likes
	})
	return fc
}

// entryToPost reverses the projection for agent-authored entries recovered
// from the feed document on load. Post-level attributed reactions and
// reply liker sets are not part of the read model, so recovery keeps the
// counters and drops the attributions. Acceptable for session-scoped
// agent content.
func entryToPost(entry *FeedEntry) *Post {
	p := &Post{
		ID:         entry.ID,
		Author:     entry.Author,
		AuthorKind: entry.AuthorKind,
		Kind:       entry.Type,
		Content:    entry.Content,
		Timestamp:  entry.Timestamp,
		Likes:      entry.Likes,
		Shares:     entry.ShareCount,
		Embedded:   entry.Embedded,
		Comments:   make([]*Comment, 0, len(entry.Comments)),
	}
	for _, fc := range entry.Comments {
		c := &Comment{
			ID:        fc.ID,
			Author:    fc.Author,
			Content:   fc.Content,
			Timestamp: fc.Timestamp,
			Likes:     fc.Likes,
			Reacts:    append([]Reaction{}, fc.Reacts...),
			Replies:   make([]*Reply, 0, len(fc.Replies)),
		}
		for _, fr := range fc.Replies {
			c.Replies = append(c.Replies, &Reply{
				ID:        fr.ID,
				Author:    fr.Author,
				Content:   fr.Content,
				Timestamp: fr.Timestamp,
			})
		}
		p.Comments = append(p.Comments, c)
	}
	return p
}

// parseWhen parses an RFC3339 timestamp, mapping unparsable values to the
// zero time so ordering stays deterministic.
func parseWhen(ts string) time.Time {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
