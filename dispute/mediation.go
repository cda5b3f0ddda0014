package dispute

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// MediateParams captures one party's proposed settlement text.
type MediateParams struct {
	DisputeID     string
	Actor         Actor
	AgreedOutcome string
}

// Mediate runs one step of the two-party consensus protocol. The comment
// ledger is the proposal record: the latest mediation_proposal comment
// decides the branch.
//
// If no proposal exists, the latest was authored by the same party, or its
// trimmed text differs, the submission becomes the new standing proposal:
// the dispute moves to status mediation / tier mediation and the proposal
// comment is recorded in the same transaction, so a failed record never
// leaves the dispute mediating without a proposal.
//
// If the latest proposal came from the other party with exactly matching
// trimmed text, both parties have agreed: the dispute terminates as mediated
// with the agreed text as resolution notes. The follow-up confirmation
// comment is best-effort audit trail; its failure is logged and tolerated.
// No points settlement occurs for a mediated outcome.
func (s *Service) Mediate(ctx context.Context, params MediateParams) (Dispute, error) {
	d, err := s.store.Get(ctx, params.DisputeID)
	if err != nil {
		return Dispute{}, err
	}
	if err := CanMediate(d, params.Actor); err != nil {
		return Dispute{}, err
	}
	if err := checkTransition(ActionMediate, d.Status); err != nil {
		return Dispute{}, err
	}

	now := s.now().UTC()
	if DeadlinePast(d.MediationDeadline, now) {
		return Dispute{}, fmt.Errorf("%w: mediation deadline has passed", ErrDeadlineExpired)
	}

	text := strings.TrimSpace(params.AgreedOutcome)
	if text == "" {
		return Dispute{}, fmt.Errorf("%w: agreed outcome required", ErrValidation)
	}

	last, err := s.store.LatestProposal(ctx, d.ID)
	if err != nil {
		return Dispute{}, fmt.Errorf("%w: read proposal ledger: %v", ErrDependency, err)
	}

	if last != nil && last.UserID != params.Actor.UserID && strings.TrimSpace(last.Content) == text {
		settled, err := s.store.AcceptMediation(ctx, d.ID, d.Status, text, now)
		if err != nil {
			return Dispute{}, err
		}
		if _, err := s.store.AppendComment(ctx, Comment{
			DisputeID:  d.ID,
			UserID:     params.Actor.UserID,
			Kind:       CommentMediationConfirmation,
			Content:    text,
			Visibility: VisibilityParties,
		}); err != nil {
			// Status is the source of truth; the confirmation comment is
			// audit trail only.
			log.Printf("dispute: mediation confirmation comment for %s: %v", d.ID, err)
		}
		return settled, nil
	}

	return s.store.ProposeMediation(ctx, d.ID, d.Status, Comment{
		DisputeID:  d.ID,
		UserID:     params.Actor.UserID,
		Kind:       CommentMediationProposal,
		Content:    text,
		Visibility: VisibilityParties,
	})
}
