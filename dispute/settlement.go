package dispute

import (
	"fmt"
	"math"
)

// compromiseMultiplier maps a renegotiated quality score to the fraction of
// the task's base points the submission earns.
var compromiseMultiplier = map[int]float64{
	1: 0.2,
	2: 0.4,
	3: 0.6,
	4: 0.8,
	5: 1.0,
}

// Settlement enumerates the submission and points writes applied in the same
// transaction as a terminal resolve. A nil settlement means the original
// review stands untouched (upheld, dismissed).
type Settlement struct {
	SubmissionID string
	QualityScore int
	EarnedPoints int
	// CreditUserID receives an increment of EarnedPoints on their
	// cumulative total.
	CreditUserID string
}

// Settle computes the deterministic side effects of a resolution.
//
// overturned restores full credit: the submission is approved at quality 5
// and the disputant earns the task's base points. compromise approves at the
// negotiated score with earned points rounded from the multiplier table.
// upheld and dismissed leave the submission untouched.
func Settle(res Resolution, d Dispute, basePoints int, newQualityScore *int) (*Settlement, error) {
	switch res {
	case ResolutionUpheld, ResolutionDismissed:
		if newQualityScore != nil {
			return nil, fmt.Errorf("%w: quality score only applies to compromise", ErrValidation)
		}
		return nil, nil
	case ResolutionOverturned:
		if newQualityScore != nil {
			return nil, fmt.Errorf("%w: quality score only applies to compromise", ErrValidation)
		}
		return &Settlement{
			SubmissionID: d.SubmissionID,
			QualityScore: 5,
			EarnedPoints: basePoints,
			CreditUserID: d.DisputantID,
		}, nil
	case ResolutionCompromise:
		if newQualityScore == nil {
			return nil, fmt.Errorf("%w: compromise requires a quality score", ErrValidation)
		}
		score := *newQualityScore
		mult, ok := compromiseMultiplier[score]
		if !ok {
			return nil, fmt.Errorf("%w: quality score must be between 1 and 5", ErrValidation)
		}
		earned := int(math.Round(float64(basePoints) * mult))
		return &Settlement{
			SubmissionID: d.SubmissionID,
			QualityScore: score,
			EarnedPoints: earned,
			CreditUserID: d.DisputantID,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown resolution %q", ErrValidation, res)
	}
}

// terminalStatus maps a resolution onto the dispute status it commits.
func terminalStatus(res Resolution) Status {
	if res == ResolutionDismissed {
		return StatusDismissed
	}
	return StatusResolved
}
