// Package proposer implements the content-proposer contract on top of the
// OpenAI chat completion API, plus a simulation stand-in for credential-
// less runs.
package proposer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/murmurfeed/murmur/internal/domain"
)

const systemPrompt = `You are %s, a regular member of the %s social platform.
You browse the feed and decide how to engage, like any other member: like
and react to posts you enjoy, comment when you have something to add, reply
to interesting comments, occasionally share a post or write your own.

You will receive a JSON snapshot of the current feed and a weight table of
preferred action types. Respond with a JSON array of between %d and %d
actions. Each action is an object with fields:
  tool        one of create_post, like_post, react_post, comment_on_post,
              share_post, like_comment, reply_to_comment
  post_id     required for post-level tools; must come from the snapshot
  comment_id  required for comment-level tools; must come from the snapshot
  content     required for create_post, comment_on_post, reply_to_comment
  emoji       required for react_post

Only reference ids present in the snapshot. Respond with the JSON array and
nothing else.`

// OpenAIProposer generates action proposals with a chat completion call.
type OpenAIProposer struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ domain.Proposer = (*OpenAIProposer)(nil)

// NewOpenAI builds a proposer from OPENAI_API_KEY. A missing key returns
// domain.ErrProposerUnavailable so the caller can fall back to simulation
// mode.
func NewOpenAI(model string, logger *slog.Logger) (*OpenAIProposer, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set: %w", domain.ErrProposerUnavailable)
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	logger.Info("initializing content proposer", "model", model)
	return &OpenAIProposer{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}, nil
}

// Propose sends the snapshot and preference weights to the model and
// decodes the returned action array.
func (p *OpenAIProposer) Propose(ctx context.Context, pctx domain.ProposalContext) ([]domain.ActionProposal, error) {
	payload, err := json.Marshal(map[string]any{
		"feed":    pctx.Entries,
		"weights": pctx.Weights,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(systemPrompt, pctx.Persona, pctx.Platform, pctx.MinActions, pctx.MaxActions),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: string(payload),
			},
		},
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned: %w", domain.ErrProposerParse)
	}

	proposals, err := extractProposals(resp.Choices[0].Message.Content)
	if err != nil {
		p.logger.Warn("failed to decode proposer output", "error", err)
		return nil, err
	}
	return proposals, nil
}

// classify maps transport-level failures onto the proposer error taxonomy.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", domain.ErrProposerRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", domain.ErrProposerUnavailable, err)
		}
	}
	return fmt.Errorf("proposer call: %w", err)
}

// extractProposals pulls the JSON array out of the raw model output, which
// may be wrapped in prose or a markdown fence.
func extractProposals(raw string) ([]domain.ActionProposal, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in output: %w", domain.ErrProposerParse)
	}
	var proposals []domain.ActionProposal
	if err := json.Unmarshal([]byte(raw[start:end+1]), &proposals); err != nil {
		return nil, fmt.Errorf("decode proposals: %v: %w", err, domain.ErrProposerParse)
	}
	return proposals, nil
}
