package dispute

import "fmt"

// Action names a status-mutating operation on a dispute.
type Action string

const (
	ActionRespond  Action = "respond"
	ActionAssign   Action = "assign"
	ActionRecuse   Action = "recuse"
	ActionResolve  Action = "resolve"
	ActionAppeal   Action = "appeal"
	ActionWithdraw Action = "withdraw"
	ActionMediate  Action = "mediate"
	ActionComment  Action = "comment"
)

// transitions is the single source of truth for which statuses admit each
// action. A nil entry means "any non-terminal status".
var transitions = map[Action][]Status{
	ActionRespond:  {StatusOpen, StatusMediation, StatusAwaitingResponse},
	ActionAssign:   {StatusOpen, StatusAwaitingResponse, StatusUnderReview, StatusAppealed, StatusAppealReview},
	ActionRecuse:   nil,
	ActionResolve:  {StatusUnderReview, StatusAppealReview},
	ActionAppeal:   {StatusResolved, StatusDismissed},
	ActionWithdraw: nil,
	ActionMediate:  {StatusOpen, StatusMediation, StatusAwaitingResponse},
	ActionComment:  nil,
}

// checkTransition verifies the action is admissible from the current status.
// Appeal is the one action allowed to act on a terminal status; its admission
// list already restricts it to resolved and dismissed.
func checkTransition(action Action, from Status) error {
	allowed, ok := transitions[action]
	if !ok {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidState, action)
	}
	if allowed == nil {
		if from.Terminal() {
			return fmt.Errorf("%w: dispute is %s", ErrInvalidState, from)
		}
		return nil
	}
	for _, s := range allowed {
		if s == from {
			return nil
		}
	}
	if from.Terminal() && action != ActionAppeal {
		return fmt.Errorf("%w: dispute is %s", ErrInvalidState, from)
	}
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidState, action, from)
}

// assignTarget computes the status an assignment lands in.
func assignTarget(from Status) Status {
	switch from {
	case StatusAppealed, StatusAppealReview:
		return StatusAppealReview
	default:
		return StatusUnderReview
	}
}

// recuseTarget computes the status a recusal reverts to. A dispute that
// already holds a reviewer response stays under review; one without a
// response reopens.
func recuseTarget(from Status, responded bool) Status {
	switch from {
	case StatusAppealReview:
		return StatusAppealed
	case StatusUnderReview:
		if responded {
			return StatusUnderReview
		}
		return StatusOpen
	default:
		return from
	}
}

// promoteTier lifts a mediation-tier dispute to council. Higher tiers are
// left untouched; the tier never regresses except through mediation.
func promoteTier(t Tier) Tier {
	if t == TierMediation {
		return TierCouncil
	}
	return t
}
