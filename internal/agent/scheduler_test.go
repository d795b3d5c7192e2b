package agent

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurfeed/murmur/internal/config"
	"github.com/murmurfeed/murmur/internal/domain"
	"github.com/murmurfeed/murmur/internal/metrics"
)

type fakeStore struct {
	feed *domain.FeedDocument
}

func (s *fakeStore) ReadScopeDocuments(context.Context) (map[string][]*domain.Post, error) {
	return map[string][]*domain.Post{}, nil
}

func (s *fakeStore) WriteScopeDocuments(context.Context, map[string][]*domain.Post) error {
	return nil
}

func (s *fakeStore) ReadFeedDocument(context.Context) (*domain.FeedDocument, error) {
	return s.feed, nil
}

func (s *fakeStore) WriteFeedDocument(_ context.Context, doc *domain.FeedDocument) error {
	s.feed = doc
	return nil
}

type ledgerEntry struct {
	tool string
	at   time.Time
}

type fakeLedger struct {
	entries []ledgerEntry
	err     error
}

func (l *fakeLedger) Record(_ context.Context, tool, _ string, at time.Time) error {
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, ledgerEntry{tool: tool, at: at})
	return nil
}

func (l *fakeLedger) CountSince(_ context.Context, t time.Time) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	n := 0
	for _, e := range l.entries {
		if !e.at.Before(t) {
			n++
		}
	}
	return n, nil
}

type fakeProposer struct {
	calls     int
	responses []func(domain.ProposalContext) ([]domain.ActionProposal, error)
}

func (p *fakeProposer) Propose(_ context.Context, pctx domain.ProposalContext) ([]domain.ActionProposal, error) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	return p.responses[idx](pctx)
}

func respond(proposals []domain.ActionProposal, err error) func(domain.ProposalContext) ([]domain.ActionProposal, error) {
	return func(domain.ProposalContext) ([]domain.ActionProposal, error) {
		return proposals, err
	}
}

func testAgentConfig() config.AgentConfig {
	cfg := config.DefaultConfig().Agent
	cfg.ActProbabilityPercent = 100 // the roll is in [1,100], so always act
	cfg.DeclinePercent = 0
	return cfg
}

func newTestScheduler(t *testing.T, proposer domain.Proposer, ledger domain.Ledger, cfg config.AgentConfig) (*Scheduler, *domain.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := domain.NewEngine(&fakeStore{}, domain.DefaultTiers(), domain.SortNewestFirst, cfg.Persona, logger, metrics.New())
	require.NoError(t, engine.Load(context.Background()))
	return New(engine, proposer, ledger, cfg, logger, metrics.New()), engine
}

func seedPost(t *testing.T, engine *domain.Engine) *domain.Post {
	t.Helper()
	post, err := engine.CreatePost(context.Background(), "alice", "Hello")
	require.NoError(t, err)
	return post
}

func TestRunCycleDisabled(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Enabled = false
	s, _ := newTestScheduler(t, nil, &fakeLedger{}, cfg)

	result := s.RunCycle(context.Background())
	assert.Equal(t, OutcomeDisabled, result.Outcome)
}

func TestRunCycleRateCapped(t *testing.T) {
	cfg := testAgentConfig()
	cfg.ActionsPerMinute = 3
	ledger := &fakeLedger{}
	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, ledger.Record(context.Background(), domain.ToolLikePost, "x", now))
	}

	s, _ := newTestScheduler(t, nil, ledger, cfg)
	result := s.RunCycle(context.Background())
	assert.Equal(t, OutcomeRateCapped, result.Outcome)
}

func TestRunCycleOldLedgerEntriesDoNotCap(t *testing.T) {
	cfg := testAgentConfig()
	cfg.ActionsPerMinute = 3
	ledger := &fakeLedger{}
	stale := time.Now().Add(-2 * time.Minute)
	for i := 0; i < 5; i++ {
		require.NoError(t, ledger.Record(context.Background(), domain.ToolLikePost, "x", stale))
	}

	s, _ := newTestScheduler(t, nil, ledger, cfg)
	result := s.RunCycle(context.Background())
	assert.Equal(t, OutcomeSimulated, result.Outcome, "nil proposer simulates once past the gates")
}

func TestRunCycleLedgerErrorTreatedAsEmptyWindow(t *testing.T) {
	cfg := testAgentConfig()
	s, _ := newTestScheduler(t, nil, &fakeLedger{err: assert.AnError}, cfg)

	result := s.RunCycle(context.Background())
	assert.Equal(t, OutcomeSimulated, result.Outcome)
}

func TestRunCycleProbabilityZeroAlwaysSkips(t *testing.T) {
	cfg := testAgentConfig()
	cfg.ActProbabilityPercent = 0
	s, _ := newTestScheduler(t, nil, &fakeLedger{}, cfg)

	for i := 0; i < 20; i++ {
		result := s.RunCycle(context.Background())
		assert.Equal(t, OutcomeProbability, result.Outcome)
	}
}

func TestRunCycleAppliesValidatedActions(t *testing.T) {
	cfg := testAgentConfig()
	ledger := &fakeLedger{}

	var post *domain.Post
	proposer := &fakeProposer{responses: []func(domain.ProposalContext) ([]domain.ActionProposal, error){
		func(domain.ProposalContext) ([]domain.ActionProposal, error) {
			return []domain.ActionProposal{
				{Tool: domain.ToolLikePost, PostID: post.ID},
				{Tool: domain.ToolLikePost, PostID: "nobody_00000000"},
			}, nil
		},
	}}

	s, engine := newTestScheduler(t, proposer, ledger, cfg)
	post = seedPost(t, engine)

	result := s.RunCycle(context.Background())
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, 2, result.Proposed)
	assert.Equal(t, 1, result.Rejected)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, post.Likes)
	require.Len(t, ledger.entries, 1)
	assert.Equal(t, domain.ToolLikePost, ledger.entries[0].tool)
}

func TestRunCycleClampsToMaxActions(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxActionsPerCycle = 1

	var post *domain.Post
	proposer := &fakeProposer{responses: []func(domain.ProposalContext) ([]domain.ActionProposal, error){
		func(domain.ProposalContext) ([]domain.ActionProposal, error) {
			return []domain.ActionProposal{
				{Tool: domain.ToolLikePost, PostID: post.ID},
				{Tool: domain.ToolCommentOnPost, PostID: post.ID, Content: "one"},
				{Tool: domain.ToolCommentOnPost, PostID: post.ID, Content: "two"},
			}, nil
		},
	}}

	s, engine := newTestScheduler(t, proposer, &fakeLedger{}, cfg)
	post = seedPost(t, engine)

	result := s.RunCycle(context.Background())
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, post.Likes)
	assert.Empty(t, post.Comments)
}

func TestRunCycleDeclineHundredDropsEverything(t *testing.T) {
	cfg := testAgentConfig()
	cfg.DeclinePercent = 100

	var post *domain.Post
	proposer := &fakeProposer{responses: []func(domain.ProposalContext) ([]domain.ActionProposal, error){
		func(domain.ProposalContext) ([]domain.ActionProposal, error) {
			return []domain.ActionProposal{{Tool: domain.ToolLikePost, PostID: post.ID}}, nil
		},
	}}

	s, engine := newTestScheduler(t, proposer, &fakeLedger{}, cfg)
	post = seedPost(t, engine)

	result := s.RunCycle(context.Background())
	assert.Equal(t, OutcomeEmpty, result.Outcome)
	assert.Equal(t, 1, result.Declined)
	assert.Equal(t, 0, post.Likes)
}

func TestRunCycleParseErrorRetriesWithSmallerSample(t *testing.T) {
	cfg := testAgentConfig()

	var post *domain.Post
	var sizes []int
	proposer := &fakeProposer{responses: []func(domain.ProposalContext) ([]domain.ActionProposal, error){
		func(pctx domain.ProposalContext) ([]domain.ActionProposal, error) {
			sizes = append(sizes, len(pctx.Entries))
			return nil, domain.ErrProposerParse
		},
		func(pctx domain.ProposalContext) ([]domain.ActionProposal, error) {
			sizes = append(sizes, len(pctx.Entries))
			return []domain.ActionProposal{{Tool: domain.ToolLikePost, PostID: post.ID}}, nil
		},
	}}

	s, engine := newTestScheduler(t, proposer, &fakeLedger{}, cfg)
	post = seedPost(t, engine)
	for i := 0; i < 3; i++ {
		_, err := engine.CreatePost(context.Background(), "bob", string(rune('a'+i)))
		require.NoError(t, err)
	}

	result := s.RunCycle(context.Background())
	assert.Equal(t, OutcomeApplied, result.Outcome)
	require.Len(t, sizes, 2)
	assert.Less(t, sizes[1], sizes[0], "retry sees a halved sample")
}

func TestRunCycleRateLimitStartsBackoff(t *testing.T) {
	cfg := testAgentConfig()
	cfg.RateLimitBackoff = config.Duration(2 * time.Minute)

	proposer := &fakeProposer{responses: []func(domain.ProposalContext) ([]domain.ActionProposal, error){
		respond(nil, domain.ErrProposerRateLimited),
	}}
	s, engine := newTestScheduler(t, proposer, &fakeLedger{}, cfg)
	seedPost(t, engine)

	result := s.RunCycle(context.Background())
	assert.Equal(t, OutcomeEmpty, result.Outcome)

	result = s.RunCycle(context.Background())
	assert.Equal(t, OutcomeBackoff, result.Outcome)

	// Past the backoff horizon, cycles resume.
	s.now = func() time.Time { return time.Now().Add(3 * time.Minute) }
	result = s.RunCycle(context.Background())
	assert.NotEqual(t, OutcomeBackoff, result.Outcome)
}

func TestRunCycleUnavailableEntersPermanentSimulation(t *testing.T) {
	cfg := testAgentConfig()
	proposer := &fakeProposer{responses: []func(domain.ProposalContext) ([]domain.ActionProposal, error){
		respond(nil, domain.ErrProposerUnavailable),
	}}
	s, engine := newTestScheduler(t, proposer, &fakeLedger{}, cfg)
	seedPost(t, engine)

	result := s.RunCycle(context.Background())
	assert.Equal(t, OutcomeEmpty, result.Outcome)

	for i := 0; i < 3; i++ {
		result = s.RunCycle(context.Background())
		assert.Equal(t, OutcomeSimulated, result.Outcome)
	}
	assert.Equal(t, 1, proposer.calls, "the proposer is never called again")
}

func TestSetConfigHotSwapsWeights(t *testing.T) {
	cfg := testAgentConfig()
	s, _ := newTestScheduler(t, nil, &fakeLedger{}, cfg)

	cfg.Enabled = false
	s.SetConfig(cfg)
	result := s.RunCycle(context.Background())
	assert.Equal(t, OutcomeDisabled, result.Outcome)
}
