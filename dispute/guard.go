package dispute

import "fmt"

// Role mirrors the platform's user directory roles. The engine only ever
// inspects roles; it never writes them.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCouncil Role = "council"
	RoleMember  Role = "member"
	RoleGuest   Role = "guest"
)

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

// Guard predicates. Each is a pure check over (dispute, actor); a failed
// predicate yields ErrForbidden (or ErrConflict for already-applied actions)
// before any mutation is attempted. Status admissibility is checked
// separately against the transition table.

// CanRespond permits only the reviewer, and only while no response exists.
func CanRespond(d Dispute, actor Actor) error {
	if actor.UserID == "" {
		return ErrUnauthenticated
	}
	if actor.UserID != d.ReviewerID {
		return fmt.Errorf("%w: only the reviewer may respond", ErrForbidden)
	}
	if d.ResponseSubmittedAt != nil {
		return fmt.Errorf("%w: response already submitted", ErrConflict)
	}
	return nil
}

// CanMediate permits the two original parties.
func CanMediate(d Dispute, actor Actor) error {
	if actor.UserID == "" {
		return ErrUnauthenticated
	}
	if actor.UserID != d.DisputantID && actor.UserID != d.ReviewerID {
		return fmt.Errorf("%w: only the disputant or reviewer may mediate", ErrForbidden)
	}
	return nil
}

// CanAssign permits council and admin users who are not the disputed
// reviewer; admin-tier disputes require an admin.
func CanAssign(d Dispute, actor Actor) error {
	if actor.UserID == "" {
		return ErrUnauthenticated
	}
	if actor.Role != RoleAdmin && actor.Role != RoleCouncil {
		return fmt.Errorf("%w: assignment requires council or admin role", ErrForbidden)
	}
	if actor.UserID == d.ReviewerID {
		return fmt.Errorf("%w: reviewer may not arbitrate own review", ErrForbidden)
	}
	if d.Tier == TierAdmin && actor.Role != RoleAdmin {
		return fmt.Errorf("%w: admin-tier disputes require an admin arbitrator", ErrForbidden)
	}
	return nil
}

// CanRecuse permits only the currently assigned arbitrator.
func CanRecuse(d Dispute, actor Actor) error {
	if actor.UserID == "" {
		return ErrUnauthenticated
	}
	if d.ArbitratorID == nil || *d.ArbitratorID != actor.UserID {
		return fmt.Errorf("%w: only the assigned arbitrator may recuse", ErrForbidden)
	}
	return nil
}

// CanResolve permits the assigned arbitrator or any admin, excluding the
// disputed reviewer in both cases.
func CanResolve(d Dispute, actor Actor) error {
	if actor.UserID == "" {
		return ErrUnauthenticated
	}
	if actor.UserID == d.ReviewerID {
		return fmt.Errorf("%w: reviewer may not resolve own review", ErrForbidden)
	}
	if actor.Role == RoleAdmin {
		return nil
	}
	if d.ArbitratorID == nil || *d.ArbitratorID != actor.UserID {
		return fmt.Errorf("%w: only the assigned arbitrator may resolve", ErrForbidden)
	}
	return nil
}

// CanAppeal permits the disputant on disputes that have not yet escalated to
// the admin tier.
func CanAppeal(d Dispute, actor Actor) error {
	if actor.UserID == "" {
		return ErrUnauthenticated
	}
	if actor.UserID != d.DisputantID {
		return fmt.Errorf("%w: only the disputant may appeal", ErrForbidden)
	}
	if d.Tier == TierAdmin {
		return fmt.Errorf("%w: admin-tier resolutions are final", ErrForbidden)
	}
	return nil
}

// CanWithdraw permits the disputant.
func CanWithdraw(d Dispute, actor Actor) error {
	if actor.UserID == "" {
		return ErrUnauthenticated
	}
	if actor.UserID != d.DisputantID {
		return fmt.Errorf("%w: only the disputant may withdraw", ErrForbidden)
	}
	return nil
}

// CanViewFull reports whether the viewer sees evidence and response content.
// All other authenticated viewers receive the redacted projection.
func CanViewFull(d Dispute, actor Actor) bool {
	if d.IsParty(actor.UserID) {
		return true
	}
	return actor.Role == RoleAdmin || actor.Role == RoleCouncil
}

// CanComment permits parties and the council or admin roles.
func CanComment(d Dispute, actor Actor) error {
	if actor.UserID == "" {
		return ErrUnauthenticated
	}
	if !CanViewFull(d, actor) {
		return fmt.Errorf("%w: commenting requires a party, council, or admin", ErrForbidden)
	}
	return nil
}
