package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/murmurfeed/murmur/internal/metrics"
)

// commentSlot locates a comment inside its parent post.
type commentSlot struct {
	post    *Post
	comment *Comment
}

// replySlot locates a reply inside its parent comment and post.
type replySlot struct {
	post    *Post
	comment *Comment
	reply   *Reply
}

// Engine owns the canonical nested post/comment/reply graph and is the only
// component allowed to mutate it. Every public mutation runs under the
// engine mutex, applies in place, and ends with a single materializer
// rebuild. The reentrancy and loading flags are explicit engine state, not
// process globals.
type Engine struct {
	mu sync.Mutex

	store   DocumentStore
	tiers   []Tier
	ranking string
	persona string
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	posts      []*Post
	postIdx    map[string]*Post
	commentIdx map[string]commentSlot
	replyIdx   map[string]replySlot

	feed       *FeedDocument
	rebuilding bool
	loading    bool

	subMu   sync.Mutex
	subs    map[int]chan FeedUpdate
	nextSub int
}

// NewEngine creates an Engine over the given document store. The ranking is
// the feed sort order (SortNewestFirst when empty); the persona is the
// author name used for agent-issued content.
func NewEngine(store DocumentStore, tiers []Tier, ranking, persona string, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		store:      store,
		tiers:      tiers,
		ranking:    ranking,
		persona:    persona,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
		postIdx:    make(map[string]*Post),
		commentIdx: make(map[string]commentSlot),
		replyIdx:   make(map[string]replySlot),
		subs:       make(map[int]chan FeedUpdate),
	}
}

// SetTiers replaces the visibility tiers (config hot-reload) and rebuilds
// so the feed reflects the new policy.
func (e *Engine) SetTiers(ctx context.Context, tiers []Tier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tiers = tiers
	if err := e.rebuildLocked(ctx); err != nil {
		e.logger.Error("rebuild after tier change failed", "error", err)
	}
}

// SetRanking replaces the feed sort order (config hot-reload) and rebuilds.
func (e *Engine) SetRanking(ctx context.Context, ranking string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ranking = ranking
	if err := e.rebuildLocked(ctx); err != nil {
		e.logger.Error("rebuild after ranking change failed", "error", err)
	}
}

// Persona returns the agent author name this engine stamps on agent content.
func (e *Engine) Persona() string {
	return e.persona
}

// Load reads the scope documents plus any agent-authored entries recovered
// from the last materialized feed, assigns missing ids, persists repairs
// immediately, and materializes. Malformed or absent documents degrade to
// an empty store.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loading = true
	defer func() { e.loading = false }()

	scopes, err := e.store.ReadScopeDocuments(ctx)
	if err != nil {
		// Degrade to empty rather than propagate: a missing store is a
		// first run, a corrupt one is recovered at the document level.
		e.logger.Error("read scope documents failed, starting empty", "error", err)
		e.metrics.StorageRecoveriesTotal.Inc()
		scopes = map[string][]*Post{}
	}

	e.posts = nil
	for _, posts := range scopes {
		e.posts = append(e.posts, posts...)
	}

	// Agent content is never persisted as its own scope document; it lives
	// only in the derived feed, so it must be reconstructed from there.
	if doc, err := e.store.ReadFeedDocument(ctx); err != nil {
		e.logger.Error("read feed document failed, skipping agent recovery", "error", err)
		e.metrics.StorageRecoveriesTotal.Inc()
	} else if doc != nil {
		for i := range doc.Posts {
			entry := &doc.Posts[i]
			if entry.AuthorKind != AuthorAgent {
				continue
			}
			e.posts = append(e.posts, entryToPost(entry))
		}
	}

	healed := e.reindexLocked()
	if healed {
		e.logger.Info("assigned missing ids during load, persisting repair")
		e.saveLocked(ctx)
	}
	return e.rebuildLocked(ctx)
}

// reindexLocked rebuilds every index and assigns ids to records that lack
// one. Returns true when any id was assigned.
func (e *Engine) reindexLocked() bool {
	healed := false
	e.postIdx = make(map[string]*Post, len(e.posts))
	e.commentIdx = make(map[string]commentSlot)
	e.replyIdx = make(map[string]replySlot)

	deduped := e.posts[:0]
	for _, p := range e.posts {
		if p.ID == "" {
			p.ID = AssignID(p.Author, p.Timestamp, p.Content)
			healed = true
		}
		if p.AuthorKind == "" {
			p.AuthorKind = AuthorUser
		}
		if p.Kind == "" {
			p.Kind = KindOriginal
		}
		if _, dup := e.postIdx[p.ID]; dup {
			continue
		}
		deduped = append(deduped, p)
		e.postIdx[p.ID] = p
		for _, c := range p.Comments {
			if c.ID == "" {
				c.ID = NewToken("c")
				healed = true
			}
			e.commentIdx[c.ID] = commentSlot{post: p, comment: c}
			for _, r := range c.Replies {
				if r.ID == "" {
					r.ID = NewToken("r")
					healed = true
				}
				e.replyIdx[r.ID] = replySlot{post: p, comment: c, reply: r}
			}
		}
	}
	e.posts = deduped
	return healed
}

// findPostLocked resolves a post by id, with a fallback to timestamp
// equality for legacy records persisted before ids existed.
func (e *Engine) findPostLocked(key string) (*Post, bool) {
	if p, ok := e.postIdx[key]; ok {
		return p, true
	}
	for _, p := range e.posts {
		if p.Timestamp == key {
			return p, true
		}
	}
	return nil, false
}

// FeedEntries returns the entries of the last materialized feed document. The
// returned slice is a copy; callers never receive references into engine
// state.
func (e *Engine) FeedEntries() []FeedEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.feed == nil {
		return nil
	}
	entries := make([]FeedEntry, len(e.feed.Posts))
	copy(entries, e.feed.Posts)
	return entries
}

// FeedMeta returns the meta block of the last materialized feed document.
func (e *Engine) FeedMeta() FeedMeta {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.feed == nil {
		return FeedMeta{}
	}
	return e.feed.Meta
}

// Subscribe registers a change-notification channel fed on every completed
// rebuild. The returned cancel func must be called when done.
func (e *Engine) Subscribe() (<-chan FeedUpdate, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSub
	e.nextSub++
	ch := make(chan FeedUpdate, 8)
	e.subs[id] = ch
	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
	}
}

func (e *Engine) broadcast(update FeedUpdate) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- update:
		default:
			// Slow consumer; it will reconcile on its next read.
		}
	}
}

// CreatePost composes a new human-authored post. Creating the identical
// post twice within the same timestamp resolves to the existing entity
// instead of a duplicate.
func (e *Engine) CreatePost(ctx context.Context, author, content string) (*Post, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.createPostLocked(author, AuthorUser, content)
	return p, e.rebuildLocked(ctx)
}

func (e *Engine) createPostLocked(author string, kind AuthorKind, content string) *Post {
	ts := e.now().UTC().Format(time.RFC3339)
	id := AssignID(author, ts, content)
	if existing, ok := e.postIdx[id]; ok {
		return existing
	}
	p := &Post{
		ID:         id,
		Author:     author,
		AuthorKind: kind,
		Kind:       KindOriginal,
		Content:    content,
		Timestamp:  ts,
		Comments:   []*Comment{},
	}
	e.posts = append(e.posts, p)
	e.postIdx[id] = p
	return p
}

// React records an attributed reaction on a post, comment, or reply. A
// duplicate (user, emoji) pair is a no-op. On posts and comments the
// count-only like counter is incremented alongside the attributed record;
// on replies the deduplicated liked-by set is the counter.
func (e *Engine) React(ctx context.Context, targetID, user, emoji string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.reactLocked(targetID, user, emoji) {
		return fmt.Errorf("react %q: %w", targetID, ErrNotFound)
	}
	return e.rebuildLocked(ctx)
}

func (e *Engine) reactLocked(targetID, user, emoji string) bool {
	if p, ok := e.findPostLocked(targetID); ok {
		if !p.HasReaction(user, emoji) {
			p.Reacts = append(p.Reacts, Reaction{User: user, Emoji: emoji})
			p.Likes++
		}
		return true
	}
	if slot, ok := e.commentIdx[targetID]; ok {
		if !slot.comment.HasReaction(user, emoji) {
			slot.comment.Reacts = append(slot.comment.Reacts, Reaction{User: user, Emoji: emoji})
			slot.comment.Likes++
		}
		return true
	}
	if slot, ok := e.replyIdx[targetID]; ok {
		if !slot.reply.HasLike(user) {
			slot.reply.LikedBy = append(slot.reply.LikedBy, user)
		}
		return true
	}
	return false
}

// CommentOn appends a comment to a post.
func (e *Engine) CommentOn(ctx context.Context, postID, author, content string) (*Comment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.commentOnLocked(postID, author, content)
	if !ok {
		return nil, fmt.Errorf("comment on %q: %w", postID, ErrNotFound)
	}
	return c, e.rebuildLocked(ctx)
}

func (e *Engine) commentOnLocked(postID, author, content string) (*Comment, bool) {
	p, ok := e.findPostLocked(postID)
	if !ok {
		return nil, false
	}
	c := &Comment{
		ID:        NewToken("c"),
		Author:    author,
		Content:   content,
		Timestamp: e.now().UTC().Format(time.RFC3339),
		Replies:   []*Reply{},
	}
	p.Comments = append(p.Comments, c)
	e.commentIdx[c.ID] = commentSlot{post: p, comment: c}
	return c, true
}

// ReplyTo appends a reply to a comment.
func (e *Engine) ReplyTo(ctx context.Context, commentID, author, content string) (*Reply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.replyToLocked(commentID, author, content)
	if !ok {
		return nil, fmt.Errorf("reply to %q: %w", commentID, ErrNotFound)
	}
	return r, e.rebuildLocked(ctx)
}

func (e *Engine) replyToLocked(commentID, author, content string) (*Reply, bool) {
	slot, ok := e.commentIdx[commentID]
	if !ok {
		return nil, false
	}
	r := &Reply{
		ID:        NewToken("r"),
		Author:    author,
		Content:   content,
		Timestamp: e.now().UTC().Format(time.RFC3339),
	}
	slot.comment.Replies = append(slot.comment.Replies, r)
	e.replyIdx[r.ID] = replySlot{post: slot.post, comment: slot.comment, reply: r}
	return r, true
}

// Edit replaces a post's content, recording the replaced text in the edit
// history. The post id is never recomputed.
func (e *Engine) Edit(ctx context.Context, postID, newContent string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.findPostLocked(postID)
	if !ok {
		return fmt.Errorf("edit %q: %w", postID, ErrNotFound)
	}
	p.EditHistory = append(p.EditHistory, Edit{
		Content:   p.Content,
		Timestamp: e.now().UTC().Format(time.RFC3339),
	})
	p.Content = newContent
	return e.rebuildLocked(ctx)
}

// Report adds the reporter to the post's distinct reporter set. Reaching
// the threshold deletes the post.
func (e *Engine) Report(ctx context.Context, postID, reporter string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.findPostLocked(postID)
	if !ok {
		return fmt.Errorf("report %q: %w", postID, ErrNotFound)
	}
	for _, existing := range p.Reporters {
		if existing == reporter {
			return e.rebuildLocked(ctx)
		}
	}
	p.Reporters = append(p.Reporters, reporter)
	p.ReportCount = len(p.Reporters)
	if p.ReportCount >= ReportThreshold {
		e.logger.Info("post removed after reaching report threshold", "post_id", p.ID, "reports", p.ReportCount)
		e.deletePostLocked(p)
	}
	return e.rebuildLocked(ctx)
}

// Delete removes a post by explicit owner request.
func (e *Engine) Delete(ctx context.Context, postID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.findPostLocked(postID)
	if !ok {
		return fmt.Errorf("delete %q: %w", postID, ErrNotFound)
	}
	e.deletePostLocked(p)
	return e.rebuildLocked(ctx)
}

func (e *Engine) deletePostLocked(p *Post) {
	for i, candidate := range e.posts {
		if candidate == p {
			e.posts = append(e.posts[:i], e.posts[i+1:]...)
			break
		}
	}
	delete(e.postIdx, p.ID)
	for _, c := range p.Comments {
		delete(e.commentIdx, c.ID)
		for _, r := range c.Replies {
			delete(e.replyIdx, r.ID)
		}
	}
}

// Share creates a repost or quote of an existing post. The new document
// embeds a snapshot of the original frozen at share time and always
// reports zero shares of its own; the original's share counter is the one
// that increments.
func (e *Engine) Share(ctx context.Context, postID string, kind PostKind, author, quote string) (*Post, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.shareLocked(postID, kind, author, AuthorUser, quote)
	if err != nil {
		return nil, err
	}
	return p, e.rebuildLocked(ctx)
}

func (e *Engine) shareLocked(postID string, kind PostKind, author string, authorKind AuthorKind, quote string) (*Post, error) {
	if kind != KindRepost && kind != KindQuote {
		return nil, fmt.Errorf("share %q: unknown mode %q", postID, kind)
	}
	original, ok := e.findPostLocked(postID)
	if !ok {
		return nil, fmt.Errorf("share %q: %w", postID, ErrNotFound)
	}
	ts := e.now().UTC().Format(time.RFC3339)
	content := quote
	if kind == KindRepost {
		content = ""
	}
	shared := &Post{
		ID:         AssignID(author, ts, content+original.ID),
		Author:     author,
		AuthorKind: authorKind,
		Kind:       kind,
		Content:    content,
		Timestamp:  ts,
		Comments:   []*Comment{},
		Embedded: &EmbeddedPost{
			ID:        original.ID,
			Author:    original.Author,
			Content:   original.Content,
			Timestamp: original.Timestamp,
		},
	}
	original.Shares++
	e.posts = append(e.posts, shared)
	e.postIdx[shared.ID] = shared
	return shared, nil
}

// ApplyAgentBatch applies validated agent actions in order through the
// standard mutation path, then triggers exactly one rebuild for the whole
// batch. An action that fails mid-batch is logged and skipped; there is no
// rollback of mutations already applied; the inconsistency window closes
// at the rebuild.
func (e *Engine) ApplyAgentBatch(ctx context.Context, actions []AgentAction) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	applied := 0
	for _, a := range actions {
		if err := e.applyAgentActionLocked(a); err != nil {
			e.logger.Warn("agent action skipped", "tool", a.Tool, "error", err)
			continue
		}
		e.metrics.ActionsAppliedTotal.WithLabelValues(a.Tool).Inc()
		applied++
	}
	if err := e.rebuildLocked(ctx); err != nil {
		e.logger.Error("rebuild after agent batch failed", "error", err)
	}
	return applied
}

func (e *Engine) applyAgentActionLocked(a AgentAction) error {
	switch a.Tool {
	case ToolCreatePost:
		e.createPostLocked(e.persona, AuthorAgent, a.Content)
		return nil
	case ToolLikePost:
		// Count-only engagement: the counter moves, the attributed
		// reaction list does not.
		p, ok := e.findPostLocked(a.PostID)
		if !ok {
			return fmt.Errorf("like post %q: %w", a.PostID, ErrNotFound)
		}
		p.Likes++
		return nil
	case ToolReactPost:
		if !e.reactLocked(a.PostID, e.persona, a.Emoji) {
			return fmt.Errorf("react post %q: %w", a.PostID, ErrNotFound)
		}
		return nil
	case ToolCommentOnPost:
		if _, ok := e.commentOnLocked(a.PostID, e.persona, a.Content); !ok {
			return fmt.Errorf("comment on %q: %w", a.PostID, ErrNotFound)
		}
		return nil
	case ToolSharePost:
		kind := KindRepost
		if a.Content != "" {
			kind = KindQuote
		}
		_, err := e.shareLocked(a.PostID, kind, e.persona, AuthorAgent, a.Content)
		return err
	case ToolLikeComment:
		slot, ok := e.commentIdx[a.CommentID]
		if !ok {
			return fmt.Errorf("like comment %q: %w", a.CommentID, ErrNotFound)
		}
		slot.comment.Likes++
		return nil
	case ToolReplyToComment:
		if _, ok := e.replyToLocked(a.CommentID, e.persona, a.Content); !ok {
			return fmt.Errorf("reply to %q: %w", a.CommentID, ErrNotFound)
		}
		return nil
	default:
		return fmt.Errorf("unknown tool %q", a.Tool)
	}
}

// Rebuild materializes the feed from current store state. It is the public
// entry point for the reconciliation tick and the rebuild command.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rebuildLocked(ctx)
}

// RunReconciliation re-materializes the feed at the given cadence until
// the context is cancelled.
func (e *Engine) RunReconciliation(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Rebuild(ctx); err != nil {
				e.logger.Error("reconciliation rebuild failed", "error", err)
			}
		}
	}
}

// saveLocked partitions the posts by author scope and persists one content
// document per scope. Agent-authored posts are excluded: they live only in
// the derived feed.
func (e *Engine) saveLocked(ctx context.Context) {
	scopes := make(map[string][]*Post)
	for _, p := range e.posts {
		if p.AuthorKind == AuthorAgent {
			continue
		}
		scopes[p.Author] = append(scopes[p.Author], p)
	}
	if err := e.store.WriteScopeDocuments(ctx, scopes); err != nil {
		e.logger.Error("write scope documents failed", "error", err)
	}
}
