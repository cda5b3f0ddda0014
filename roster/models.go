package roster

import "time"

// Profile captures the subset of arbitrator data exposed via the public API layer.
type Profile struct {
	ID           string
	FullName     string
	Role         string
	Points       int64
	OpenCaseload int
	CreatedAt    time.Time
}
