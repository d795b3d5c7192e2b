package domain

// Agent tool names. Post-level tools never accept a comment id; comment-
// level tools always require one.
const (
	ToolCreatePost     = "create_post"
	ToolLikePost       = "like_post"
	ToolReactPost      = "react_post"
	ToolCommentOnPost  = "comment_on_post"
	ToolSharePost      = "share_post"
	ToolLikeComment    = "like_comment"
	ToolReplyToComment = "reply_to_comment"
)

// ActionProposal is an untrusted candidate action as decoded from the
// proposer's output. Nothing in it may be believed until the validator has
// checked the tool name, the target ids against the cycle's snapshot, and
// the per-tool required fields.
type ActionProposal struct {
	Tool      string `json:"tool"`
	PostID    string `json:"post_id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

// AgentAction is a proposal that survived validation. It is safe to apply
// through the standard store-mutation path.
type AgentAction struct {
	Tool      string
	PostID    string
	CommentID string
	Content   string
	Emoji     string
}
