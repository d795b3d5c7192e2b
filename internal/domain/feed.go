package domain

// FeedMeta describes the derived feed document as a whole.
type FeedMeta struct {
	LastUpdated string `json:"last_updated"`
	EntryCount  int    `json:"entry_count"`
}

// FeedDocument is the materialized read model. It is rebuilt in full on
// every write and never hand-edited.
type FeedDocument struct {
	Meta  FeedMeta    `json:"meta"`
	Posts []FeedEntry `json:"posts"`
}

// FeedEntry is the external, flattened view of one visible post. Field
// names are the read-model convention and deliberately differ from the
// internal storage shape.
type FeedEntry struct {
	ID           string        `json:"id"`
	Type         PostKind      `json:"type"`
	Author       string        `json:"author"`
	AuthorKind   AuthorKind    `json:"author_kind"`
	Content      string        `json:"content"`
	Timestamp    string        `json:"timestamp"`
	Likes        int           `json:"likes"`
	CommentCount int           `json:"comment_count"`
	ShareCount   int           `json:"share_count"`
	Embedded     *EmbeddedPost `json:"embedded,omitempty"`
	Comments     []FeedComment `json:"comments"`
}

// FeedComment is a flattened comment inside a feed entry. Replies holds the
// chronological ordering for the expanded read path; RepliesByLikes holds
// the most-liked-first ordering for the collapsed read path. Both are
// computed at rebuild time from the same underlying list.
type FeedComment struct {
	ID             string      `json:"id"`
	Author         string      `json:"author"`
	Content        string      `json:"content"`
	Likes          int         `json:"likes"`
	Reacts         []Reaction  `json:"reacts"`
	Timestamp      string      `json:"timestamp"`
	Replies        []FeedReply `json:"replies"`
	RepliesByLikes []FeedReply `json:"replies_by_likes"`
}

// FeedReply is a flattened reply inside a feed comment.
type FeedReply struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Likes     int    `json:"likes"`
	Timestamp string `json:"timestamp"`
}

// FeedUpdate is pushed to subscribers after every completed rebuild so the
// display path can reconcile instead of polling.
type FeedUpdate struct {
	EntryIDs []string `json:"entry_ids"`
	At       string   `json:"at"`
}
