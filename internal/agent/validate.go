package agent

import "github.com/murmurfeed/murmur/internal/domain"

// Rejection reasons, used as metric labels.
const (
	RejectUnknownTool    = "unknown_tool"
	RejectUnknownPost    = "unknown_post"
	RejectUnknownComment = "unknown_comment"
	RejectTargetMismatch = "target_mismatch"
	RejectMissingField   = "missing_field"
)

type targetKind int

const (
	targetNone targetKind = iota
	targetPost
	targetComment
)

type toolSpec struct {
	target       targetKind
	needsContent bool
	needsEmoji   bool
}

var toolSpecs = map[string]toolSpec{
	domain.ToolCreatePost:     {target: targetNone, needsContent: true},
	domain.ToolLikePost:       {target: targetPost},
	domain.ToolReactPost:      {target: targetPost, needsEmoji: true},
	domain.ToolCommentOnPost:  {target: targetPost, needsContent: true},
	domain.ToolSharePost:      {target: targetPost},
	domain.ToolLikeComment:    {target: targetComment},
	domain.ToolReplyToComment: {target: targetComment, needsContent: true},
}

// Validate filters untrusted proposals against the cycle's snapshot. A
// rejected proposal is dropped and counted; the rest of the batch is
// unaffected. Target typing is strict: post-level tools never accept a
// comment id and comment-level tools always require one drawn from the
// snapshot's comment set.
func Validate(proposals []domain.ActionProposal, snap *Snapshot) ([]domain.AgentAction, map[string]int) {
	actions := make([]domain.AgentAction, 0, len(proposals))
	rejected := make(map[string]int)
	reject := func(reason string) {
		rejected[reason]++
	}

	for _, p := range proposals {
		spec, ok := toolSpecs[p.Tool]
		if !ok {
			reject(RejectUnknownTool)
			continue
		}

		switch spec.target {
		case targetNone:
			if p.CommentID != "" || p.PostID != "" {
				reject(RejectTargetMismatch)
				continue
			}
		case targetPost:
			if p.CommentID != "" {
				reject(RejectTargetMismatch)
				continue
			}
			if p.PostID == "" {
				reject(RejectMissingField)
				continue
			}
			if !snap.HasPost(p.PostID) {
				reject(RejectUnknownPost)
				continue
			}
		case targetComment:
			if p.CommentID == "" {
				reject(RejectMissingField)
				continue
			}
			parent, ok := snap.CommentPost(p.CommentID)
			if !ok {
				reject(RejectUnknownComment)
				continue
			}
			if p.PostID != "" && p.PostID != parent {
				reject(RejectTargetMismatch)
				continue
			}
		}

		if spec.needsContent && p.Content == "" {
			reject(RejectMissingField)
			continue
		}
		if spec.needsEmoji && p.Emoji == "" {
			reject(RejectMissingField)
			continue
		}

		actions = append(actions, domain.AgentAction{
			Tool:      p.Tool,
			PostID:    p.PostID,
			CommentID: p.CommentID,
			Content:   p.Content,
			Emoji:     p.Emoji,
		})
	}
	return actions, rejected
}
