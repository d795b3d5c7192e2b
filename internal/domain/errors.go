package domain

import "errors"

var (
	// ErrNotFound is returned when a mutation references a post, comment,
	// or reply id that does not exist in the canonical store.
	ErrNotFound = errors.New("target not found")

	// ErrProposerParse means the proposer returned output that could not
	// be decoded into action proposals. The cycle retries once with a
	// smaller sample before giving up.
	ErrProposerParse = errors.New("proposer output unparsable")

	// ErrProposerRateLimited means the proposer refused the call due to
	// rate limiting. The scheduler skips the cycle and backs off.
	ErrProposerRateLimited = errors.New("proposer rate limited")

	// ErrProposerUnavailable means the proposer cannot be used at all
	// (missing or rejected credentials). The scheduler falls back to
	// simulation mode for the rest of the process lifetime.
	ErrProposerUnavailable = errors.New("proposer unavailable")
)
