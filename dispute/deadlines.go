package dispute

import "time"

// Deadline checks are evaluated lazily at the moment of a dependent action;
// there is no background scheduler. A dispute can sit past its deadline until
// someone acts, at which point the check fires.

// DeadlinePast reports whether a non-nil deadline lies strictly before now.
func DeadlinePast(deadline *time.Time, now time.Time) bool {
	return deadline != nil && deadline.Before(now)
}

// WindowClosed reports whether a non-nil sprint dispute window end lies
// strictly before now.
func WindowClosed(endsAt *time.Time, now time.Time) bool {
	return endsAt != nil && endsAt.Before(now)
}

// AppealWindowClosed reports whether the appeal window anchored at the
// resolution time has elapsed. A dispute with no resolution time has no open
// appeal window.
func AppealWindowClosed(resolvedAt *time.Time, window time.Duration, now time.Time) bool {
	if resolvedAt == nil {
		return true
	}
	return now.After(resolvedAt.Add(window))
}
