package submission

import "time"

// ReviewStatus represents the review lifecycle of a task submission.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Submission mirrors the task_submissions table joined with the owning
// task's base point value.
type Submission struct {
	ID           string
	TaskID       string
	SubmitterID  string
	ReviewStatus ReviewStatus
	QualityScore *int
	EarnedPoints *int
	ReviewedAt   *time.Time
	BasePoints   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
