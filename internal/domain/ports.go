package domain

import (
	"context"
	"time"
)

// DocumentStore defines persistence for the canonical scope documents and
// the derived feed document.
type DocumentStore interface {
	// ReadScopeDocuments loads every per-scope content document. A missing
	// or malformed document degrades to an absent scope, never an error a
	// caller has to handle as fatal.
	ReadScopeDocuments(ctx context.Context) (map[string][]*Post, error)

	// WriteScopeDocuments persists one content document per author scope.
	WriteScopeDocuments(ctx context.Context, scopes map[string][]*Post) error

	// ReadFeedDocument loads the last materialized feed document. Returns
	// nil with no error when none has been written yet.
	ReadFeedDocument(ctx context.Context) (*FeedDocument, error)

	// WriteFeedDocument persists the materialized feed document.
	WriteFeedDocument(ctx context.Context, doc *FeedDocument) error
}

// Proposer generates candidate engagement actions from a feed snapshot.
// Implementations may fail with ErrProposerParse, ErrProposerRateLimited,
// or ErrProposerUnavailable; the scheduler classifies and absorbs all of
// them.
type Proposer interface {
	Propose(ctx context.Context, pctx ProposalContext) ([]ActionProposal, error)
}

// ProposalContext is everything the proposer sees for one cycle. Entries
// is the sampled snapshot and the only universe of valid target ids.
type ProposalContext struct {
	Platform   string
	Persona    string
	Entries    []FeedEntry
	Weights    map[string]int
	MinActions int
	MaxActions int
}

// Ledger records accepted agent actions so the trailing rate window
// survives restarts.
type Ledger interface {
	Record(ctx context.Context, tool, target string, at time.Time) error
	CountSince(ctx context.Context, t time.Time) (int, error)
}
