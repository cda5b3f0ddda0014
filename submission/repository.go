package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the submission does not exist.
var ErrNotFound = errors.New("submission: not found")

// Repository provides read access to submissions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches a submission with the owning task's base points.
func (r *Repository) Get(ctx context.Context, id string) (Submission, error) {
	const query = `
		SELECT s.id, s.task_id, s.submitter_id, s.review_status::text,
		       s.quality_score, s.earned_points, s.reviewed_at,
		       t.base_points, s.created_at, s.updated_at
		FROM task_submissions s
		JOIN tasks t ON t.id = s.task_id
		WHERE s.id = $1
	`

	var sub Submission
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&sub.ID,
		&sub.TaskID,
		&sub.SubmitterID,
		&sub.ReviewStatus,
		&sub.QualityScore,
		&sub.EarnedPoints,
		&sub.ReviewedAt,
		&sub.BasePoints,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Submission{}, ErrNotFound
		}
		return Submission{}, fmt.Errorf("submission: get: %w", err)
	}
	return sub, nil
}

// ApplyParams enumerates the review fields rewritten by a dispute settlement.
type ApplyParams struct {
	SubmissionID string
	QualityScore int
	EarnedPoints int
	ReviewedAt   time.Time
}

// ApplyReviewOutcome marks the submission approved with the settled score and
// points. It runs inside the caller's transaction so the write commits or
// aborts together with the dispute's terminal status change.
func ApplyReviewOutcome(ctx context.Context, tx pgx.Tx, params ApplyParams) error {
	const update = `
		UPDATE task_submissions
		SET review_status = 'approved',
		    quality_score = $2,
		    earned_points = $3,
		    reviewed_at = $4,
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, update, params.SubmissionID, params.QualityScore, params.EarnedPoints, params.ReviewedAt)
	if err != nil {
		return fmt.Errorf("submission: apply review outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreditPoints increments a user's cumulative point total inside the caller's
// transaction.
func CreditPoints(ctx context.Context, tx pgx.Tx, userID string, delta int) error {
	tag, err := tx.Exec(ctx, `UPDATE users SET points = points + $2, updated_at = now() WHERE id = $1`, userID, delta)
	if err != nil {
		return fmt.Errorf("submission: credit points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("submission: credit points: user %s not found", userID)
	}
	return nil
}
