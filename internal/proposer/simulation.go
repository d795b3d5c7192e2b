package proposer

import (
	"context"

	"github.com/murmurfeed/murmur/internal/domain"
)

// Simulation is the degraded-mode proposer: it completes every cycle with
// zero actions. Used when no credentials are configured.
type Simulation struct{}

var _ domain.Proposer = Simulation{}

// Propose returns no proposals and no error.
func (Simulation) Propose(context.Context, domain.ProposalContext) ([]domain.ActionProposal, error) {
	return nil, nil
}
