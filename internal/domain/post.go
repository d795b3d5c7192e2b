package domain

// PostKind discriminates original posts from the two share flavors.
type PostKind string

const (
	KindOriginal PostKind = "original"
	KindRepost   PostKind = "repost"
	KindQuote    PostKind = "quote"
)

// AuthorKind distinguishes human-authored content from agent-authored content.
// Agent posts are session-scoped: they are never written to scope documents,
// only to the derived feed document.
type AuthorKind string

const (
	AuthorUser  AuthorKind = "user"
	AuthorAgent AuthorKind = "agent"
)

// ReportThreshold is the number of distinct reporters that deletes a post.
const ReportThreshold = 10

// Reaction is a single attributed reaction. At most one entry exists per
// (emoji, user) pair on any post or comment.
type Reaction struct {
	User  string `json:"user"`
	Emoji string `json:"emoji"`
}

// Edit is one entry in a post's edit history. Content holds the text that
// was replaced by the edit, so the history plus the current content
// reconstructs every version.
type Edit struct {
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// EmbeddedPost is a frozen snapshot of a shared post, captured at share
// time. It is never updated when the original changes.
type EmbeddedPost struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Post is the canonical internal representation of a post. Timestamps are
// RFC3339 strings because documents written by older versions may carry
// values we cannot parse; the visibility policy fails open on those.
//
// The Comments slice, each comment's Replies slice, and the Reacts slices
// are mutated strictly in place (append/remove). They are never replaced
// with fresh slice objects while the post is indexed.
type Post struct {
	ID          string        `json:"id"`
	Author      string        `json:"author"`
	AuthorKind  AuthorKind    `json:"author_kind"`
	Kind        PostKind      `json:"kind"`
	Content     string        `json:"content"`
	Timestamp   string        `json:"timestamp"`
	Likes       int           `json:"likes"`
	Shares      int           `json:"shares"`
	ReportCount int           `json:"report_count"`
	Reporters   []string      `json:"reporters,omitempty"`
	EditHistory []Edit        `json:"edit_history,omitempty"`
	Embedded    *EmbeddedPost `json:"embedded,omitempty"`
	Reacts      []Reaction    `json:"reacts,omitempty"`
	Comments    []*Comment    `json:"comments"`
}

// Comment is a nested comment on a post. Likes is a count-only counter:
// attributed reactions and agent count-only likes both increment it, and it
// is deliberately not required to equal len(Reacts).
type Comment struct {
	ID        string     `json:"id"`
	Author    string     `json:"author"`
	Content   string     `json:"content"`
	Timestamp string     `json:"timestamp"`
	Likes     int        `json:"likes"`
	Reacts    []Reaction `json:"reacts,omitempty"`
	Replies   []*Reply   `json:"replies"`
}

// Reply is a leaf reply on a comment. LikedBy is a deduplicated set of
// usernames; its length is the reply's like count.
type Reply struct {
	ID        string   `json:"id"`
	Author    string   `json:"author"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp"`
	LikedBy   []string `json:"liked_by,omitempty"`
}

// HasReaction reports whether the post already carries a reaction for the
// given (user, emoji) pair.
func (p *Post) HasReaction(user, emoji string) bool {
	for _, r := range p.Reacts {
		if r.User == user && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// HasReaction reports whether the comment already carries a reaction for
// the given (user, emoji) pair.
func (c *Comment) HasReaction(user, emoji string) bool {
	for _, r := range c.Reacts {
		if r.User == user && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// HasLike reports whether the given user already liked the reply.
func (r *Reply) HasLike(user string) bool {
	for _, u := range r.LikedBy {
		if u == user {
			return true
		}
	}
	return false
}
