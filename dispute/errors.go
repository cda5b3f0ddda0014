package dispute

import "errors"

var (
	// ErrUnauthenticated signals the request carried no caller identity.
	ErrUnauthenticated = errors.New("dispute: unauthenticated")
	// ErrForbidden signals the caller is known but fails a party, role, or
	// conflict-of-interest check.
	ErrForbidden = errors.New("dispute: forbidden")
	// ErrNotFound signals the dispute or a referenced record does not exist.
	ErrNotFound = errors.New("dispute: not found")
	// ErrInvalidState signals the action is not permitted from the current
	// status, including any action against an already terminal dispute.
	ErrInvalidState = errors.New("dispute: invalid status transition")
	// ErrDeadlineExpired signals a time-boxed precondition failed.
	ErrDeadlineExpired = errors.New("dispute: deadline expired")
	// ErrConflict signals the optimistic-concurrency precondition failed or
	// the action was already applied (e.g. a response already submitted).
	ErrConflict = errors.New("dispute: conflict")
	// ErrValidation signals a malformed input payload.
	ErrValidation = errors.New("dispute: invalid input")
	// ErrDependency signals a collaborator write required for correctness
	// failed; any tentative status change is rolled back.
	ErrDependency = errors.New("dispute: dependency failure")
)
