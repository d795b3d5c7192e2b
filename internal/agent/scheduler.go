// Package agent runs the autonomous engagement scheduler: admission
// control, feed sampling, proposal validation, and batched application of
// generated actions through the engine's standard mutation path.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/murmurfeed/murmur/internal/config"
	"github.com/murmurfeed/murmur/internal/domain"
	"github.com/murmurfeed/murmur/internal/metrics"
)

// rateWindow is the trailing window the per-minute action cap is measured
// over.
const rateWindow = time.Minute

// Cycle outcome labels.
const (
	OutcomeApplied     = "applied"
	OutcomeEmpty       = "empty"
	OutcomeSimulated   = "simulated"
	OutcomeRateCapped  = "rate_capped"
	OutcomeProbability = "probability_skip"
	OutcomeBackoff     = "backoff"
	OutcomeDisabled    = "disabled"
)

// CycleResult summarizes one scheduler cycle.
type CycleResult struct {
	Outcome  string
	Proposed int
	Rejected int
	Declined int
	Applied  int
}

// Scheduler drives the agent on a fixed cadence. A nil proposer, or a
// proposer that reports itself unavailable, puts the scheduler in
// simulation mode: every cycle completes with zero actions instead of
// failing.
type Scheduler struct {
	engine   *domain.Engine
	proposer domain.Proposer
	ledger   domain.Ledger
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu           sync.Mutex
	cfg          config.AgentConfig
	simulation   bool
	backoffUntil time.Time

	rng *rand.Rand
	now func() time.Time
}

// New creates a Scheduler. Pass a nil proposer to start in simulation mode.
func New(engine *domain.Engine, proposer domain.Proposer, ledger domain.Ledger, cfg config.AgentConfig, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		engine:     engine,
		proposer:   proposer,
		ledger:     ledger,
		logger:     logger,
		metrics:    m,
		cfg:        cfg,
		simulation: proposer == nil,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}
}

// SetConfig replaces the behavior weights (config hot-reload). The cycle
// cadence itself is fixed at startup.
func (s *Scheduler) SetConfig(cfg config.AgentConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Scheduler) config() config.AgentConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Run executes cycles at the configured cadence until the context is
// cancelled. No cycle outcome, including proposer failures, aborts the
// loop.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.config().CycleCadence.Std()
	if interval <= 0 {
		interval = 45 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := s.RunCycle(ctx)
			if result.Applied > 0 || result.Rejected > 0 {
				s.logger.Info("agent cycle finished",
					"outcome", result.Outcome,
					"proposed", result.Proposed,
					"rejected", result.Rejected,
					"declined", result.Declined,
					"applied", result.Applied,
				)
			}
		}
	}
}

// RunCycle executes exactly one scheduler cycle: admission gates, snapshot
// sampling, proposal, validation, decline sampling, and batched apply.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	cfg := s.config()
	if !cfg.Enabled {
		return s.finish(CycleResult{Outcome: OutcomeDisabled})
	}
	now := s.now()

	s.mu.Lock()
	backoffUntil := s.backoffUntil
	s.mu.Unlock()
	if now.Before(backoffUntil) {
		return s.finish(CycleResult{Outcome: OutcomeBackoff})
	}

	// Admission gate: trailing-window rate cap. A ledger read failure is
	// treated as an empty window, consistent with storage never being
	// fatal.
	recent, err := s.ledger.CountSince(ctx, now.Add(-rateWindow))
	if err != nil {
		s.logger.Error("ledger window count failed", "error", err)
		recent = 0
	}
	if recent >= cfg.ActionsPerMinute {
		return s.finish(CycleResult{Outcome: OutcomeRateCapped})
	}

	// Admission gate: probability. Applies even on an empty feed, which
	// can still yield a create-content action.
	if s.roll() > cfg.ActProbabilityPercent {
		return s.finish(CycleResult{Outcome: OutcomeProbability})
	}

	snap := BuildSnapshot(s.engine.FeedEntries(), cfg.SampleSize, cfg.SampleRatios, s.rng)

	proposals, simulated := s.propose(ctx, snap, cfg)
	if simulated {
		return s.finish(CycleResult{Outcome: OutcomeSimulated})
	}
	result := CycleResult{Proposed: len(proposals)}

	actions, rejected := Validate(proposals, snap)
	for reason, count := range rejected {
		s.metrics.ProposalsRejectedTotal.WithLabelValues(reason).Add(float64(count))
		result.Rejected += count
	}

	actions, declined := s.decline(actions, cfg.DeclinePercent)
	result.Declined = declined

	if len(actions) > cfg.MaxActionsPerCycle {
		actions = actions[:cfg.MaxActionsPerCycle]
	}
	if len(actions) == 0 {
		result.Outcome = OutcomeEmpty
		return s.finish(result)
	}

	result.Applied = s.engine.ApplyAgentBatch(ctx, actions)
	for _, a := range actions {
		target := a.PostID
		if a.CommentID != "" {
			target = a.CommentID
		}
		if err := s.ledger.Record(ctx, a.Tool, target, s.now()); err != nil {
			s.logger.Error("ledger record failed", "tool", a.Tool, "error", err)
		}
	}
	result.Outcome = OutcomeApplied
	return s.finish(result)
}

// propose calls the content proposer, classifying its failures: a parse
// failure retries once with a halved sample; rate limiting starts the
// configured backoff; unavailability flips the scheduler into permanent
// simulation mode. The second return value reports a simulated cycle.
func (s *Scheduler) propose(ctx context.Context, snap *Snapshot, cfg config.AgentConfig) ([]domain.ActionProposal, bool) {
	s.mu.Lock()
	simulation := s.simulation
	s.mu.Unlock()
	if simulation || s.proposer == nil {
		return nil, true
	}

	pctx := domain.ProposalContext{
		Platform:   cfg.Platform,
		Persona:    cfg.Persona,
		Entries:    snap.Entries,
		Weights:    cfg.ActionWeights,
		MinActions: cfg.MinActionsPerCycle,
		MaxActions: cfg.MaxActionsPerCycle,
	}

	proposals, err := s.proposer.Propose(ctx, pctx)
	if err == nil {
		return proposals, false
	}

	switch {
	case errors.Is(err, domain.ErrProposerParse):
		s.logger.Warn("proposer output unparsable, retrying with smaller sample", "error", err)
		pctx.Entries = snap.Shrink().Entries
		proposals, err = s.proposer.Propose(ctx, pctx)
		if err == nil {
			return proposals, false
		}
		s.logger.Warn("proposer retry failed, giving up for this cycle", "error", err)
	case errors.Is(err, domain.ErrProposerRateLimited):
		s.mu.Lock()
		s.backoffUntil = s.now().Add(cfg.RateLimitBackoff.Std())
		s.mu.Unlock()
		s.logger.Warn("proposer rate limited, backing off", "until", s.backoffUntil)
	case errors.Is(err, domain.ErrProposerUnavailable):
		s.mu.Lock()
		s.simulation = true
		s.mu.Unlock()
		s.logger.Warn("proposer unavailable, entering simulation mode for the rest of the process")
	default:
		s.logger.Error("proposer failed", "error", err)
	}
	return nil, false
}

// decline randomly retains validated actions to simulate selective
// engagement. Returns the survivors and the number dropped.
func (s *Scheduler) decline(actions []domain.AgentAction, declinePercent int) ([]domain.AgentAction, int) {
	if declinePercent <= 0 || len(actions) == 0 {
		return actions, 0
	}
	kept := actions[:0]
	declined := 0
	for _, a := range actions {
		if s.roll() <= declinePercent {
			declined++
			continue
		}
		kept = append(kept, a)
	}
	return kept, declined
}

// roll draws a uniform integer in [1, 100].
func (s *Scheduler) roll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(100) + 1
}

func (s *Scheduler) finish(result CycleResult) CycleResult {
	if result.Outcome == "" {
		result.Outcome = OutcomeEmpty
	}
	s.metrics.AgentCyclesTotal.WithLabelValues(result.Outcome).Inc()
	return result
}
