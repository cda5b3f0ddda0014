package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"meritflow/submission"
)

// Repository implements Store backed by PostgreSQL. Optimistic concurrency
// is expressed as UPDATE ... WHERE status = $expected; a zero-row update
// against an existing dispute means a concurrent transition won the race and
// surfaces as ErrConflict.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const disputeColumns = `
	id, task_id, submission_id, disputant_id, reviewer_id, arbitrator_id,
	status::text, tier::text, reason, response_text, response_links,
	evidence_files, response_submitted_at, response_deadline,
	mediation_deadline, appeal_deadline, resolved_at, resolution::text,
	resolution_notes, new_quality_score, created_at, updated_at`

func scanDispute(row pgx.Row) (Dispute, error) {
	var (
		d          Dispute
		resolution *string
	)
	err := row.Scan(
		&d.ID,
		&d.TaskID,
		&d.SubmissionID,
		&d.DisputantID,
		&d.ReviewerID,
		&d.ArbitratorID,
		&d.Status,
		&d.Tier,
		&d.Reason,
		&d.ResponseText,
		&d.ResponseLinks,
		&d.EvidenceFiles,
		&d.ResponseSubmittedAt,
		&d.ResponseDeadline,
		&d.MediationDeadline,
		&d.AppealDeadline,
		&d.ResolvedAt,
		&resolution,
		&d.ResolutionNotes,
		&d.NewQualityScore,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return Dispute{}, err
	}
	if resolution != nil {
		res := Resolution(*resolution)
		d.Resolution = &res
	}
	return d, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Dispute, error) {
	query := `SELECT` + disputeColumns + ` FROM disputes WHERE id = $1`
	d, err := scanDispute(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: get: %w", err)
	}
	return d, nil
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]Dispute, error) {
	query := `SELECT` + disputeColumns + ` FROM disputes WHERE 1=1`
	args := []any{}
	if f.PartyID != "" {
		args = append(args, f.PartyID)
		query += fmt.Sprintf(" AND (disputant_id = $%d OR reviewer_id = $%d OR arbitrator_id = $%d)", len(args), len(args), len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d::dispute_status", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Dispute, 0, 8)
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) Create(ctx context.Context, d Dispute) (Dispute, error) {
	query := `
		INSERT INTO disputes (
			id, task_id, submission_id, disputant_id, reviewer_id,
			status, tier, reason, evidence_files,
			response_deadline, mediation_deadline
		)
		VALUES ($1, $2, $3, $4, $5, $6::dispute_status, $7::dispute_tier, $8, $9, $10, $11)
		RETURNING` + disputeColumns

	created, err := scanDispute(r.pool.QueryRow(ctx, query,
		d.ID,
		d.TaskID,
		d.SubmissionID,
		d.DisputantID,
		d.ReviewerID,
		d.Status,
		d.Tier,
		d.Reason,
		d.EvidenceFiles,
		d.ResponseDeadline,
		d.MediationDeadline,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Dispute{}, fmt.Errorf("%w: submission already disputed", ErrConflict)
			case "23503":
				return Dispute{}, fmt.Errorf("%w: referenced task, submission, or user", ErrNotFound)
			}
		}
		return Dispute{}, fmt.Errorf("dispute: create: %w", err)
	}
	return created, nil
}

// classifyStale distinguishes a vanished dispute from one whose status moved
// underneath the caller.
func (r *Repository) classifyStale(ctx context.Context, id string, expect Status) error {
	var current Status
	if err := r.pool.QueryRow(ctx, `SELECT status::text FROM disputes WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("dispute: recheck status: %w", err)
	}
	return fmt.Errorf("%w: status moved from %s to %s", ErrConflict, expect, current)
}

func (r *Repository) SubmitResponse(ctx context.Context, id string, expect Status, upd ResponseUpdate) (Dispute, error) {
	query := `
		UPDATE disputes
		SET status = $3::dispute_status,
		    tier = $4::dispute_tier,
		    response_text = $5,
		    response_links = $6,
		    response_submitted_at = $7,
		    updated_at = now()
		WHERE id = $1 AND status = $2::dispute_status AND response_submitted_at IS NULL
		RETURNING` + disputeColumns

	links := upd.Links
	if links == nil {
		links = []string{}
	}
	d, err := scanDispute(r.pool.QueryRow(ctx, query, id, expect, upd.Next, upd.Tier, upd.Text, links, upd.SubmittedAt))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Dispute{}, fmt.Errorf("dispute: submit response: %w", err)
	}
	return Dispute{}, r.classifyStale(ctx, id, expect)
}

func (r *Repository) AssignArbitrator(ctx context.Context, id string, expect Status, arbitratorID string, next Status, tier Tier) (Dispute, error) {
	query := `
		UPDATE disputes
		SET arbitrator_id = $3,
		    status = $4::dispute_status,
		    tier = $5::dispute_tier,
		    updated_at = now()
		WHERE id = $1 AND status = $2::dispute_status AND arbitrator_id IS NULL
		RETURNING` + disputeColumns

	d, err := scanDispute(r.pool.QueryRow(ctx, query, id, expect, arbitratorID, next, tier))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			// disputes_no_self_arbitration backstop; the guard normally
			// rejects this earlier.
			return Dispute{}, fmt.Errorf("%w: reviewer may not arbitrate own review", ErrForbidden)
		}
		return Dispute{}, fmt.Errorf("dispute: assign arbitrator: %w", err)
	}
	return Dispute{}, r.classifyStale(ctx, id, expect)
}

func (r *Repository) ClearArbitrator(ctx context.Context, id string, expect Status, next Status) (Dispute, error) {
	query := `
		UPDATE disputes
		SET arbitrator_id = NULL,
		    status = $3::dispute_status,
		    updated_at = now()
		WHERE id = $1 AND status = $2::dispute_status AND arbitrator_id IS NOT NULL
		RETURNING` + disputeColumns

	d, err := scanDispute(r.pool.QueryRow(ctx, query, id, expect, next))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Dispute{}, fmt.Errorf("dispute: clear arbitrator: %w", err)
	}
	return Dispute{}, r.classifyStale(ctx, id, expect)
}

// ResolveAndSettle commits the terminal status together with its settlement
// side effects in one transaction. If any settlement write fails the whole
// transition aborts; a retried resolve then re-runs cleanly against the
// original status.
func (r *Repository) ResolveAndSettle(ctx context.Context, id string, expect Status, upd ResolveUpdate, settle *Settlement) (Dispute, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin resolve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE disputes
		SET status = $3::dispute_status,
		    resolution = $4::dispute_resolution,
		    resolution_notes = $5,
		    new_quality_score = $6,
		    resolved_at = $7,
		    updated_at = now()
		WHERE id = $1 AND status = $2::dispute_status
		RETURNING` + disputeColumns

	d, err := scanDispute(tx.QueryRow(ctx, query, id, expect, upd.Next, upd.Resolution, upd.Notes, upd.NewQualityScore, upd.ResolvedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, r.classifyStale(ctx, id, expect)
		}
		return Dispute{}, fmt.Errorf("dispute: resolve: %w", err)
	}

	if settle != nil {
		if err := submission.ApplyReviewOutcome(ctx, tx, submission.ApplyParams{
			SubmissionID: settle.SubmissionID,
			QualityScore: settle.QualityScore,
			EarnedPoints: settle.EarnedPoints,
			ReviewedAt:   upd.ResolvedAt,
		}); err != nil {
			return Dispute{}, fmt.Errorf("%w: settle submission: %v", ErrDependency, err)
		}
		if err := submission.CreditPoints(ctx, tx, settle.CreditUserID, settle.EarnedPoints); err != nil {
			return Dispute{}, fmt.Errorf("%w: credit points: %v", ErrDependency, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit resolve: %w", err)
	}
	return d, nil
}

func (r *Repository) MarkAppealed(ctx context.Context, id string, expect Status, appealDeadline time.Time) (Dispute, error) {
	query := `
		UPDATE disputes
		SET status = 'appealed',
		    tier = 'admin',
		    arbitrator_id = NULL,
		    resolution = NULL,
		    resolution_notes = NULL,
		    new_quality_score = NULL,
		    resolved_at = NULL,
		    appeal_deadline = $3,
		    updated_at = now()
		WHERE id = $1 AND status = $2::dispute_status
		RETURNING` + disputeColumns

	d, err := scanDispute(r.pool.QueryRow(ctx, query, id, expect, appealDeadline))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Dispute{}, fmt.Errorf("dispute: appeal: %w", err)
	}
	return Dispute{}, r.classifyStale(ctx, id, expect)
}

func (r *Repository) MarkWithdrawn(ctx context.Context, id string, expect Status) (Dispute, error) {
	query := `
		UPDATE disputes
		SET status = 'withdrawn',
		    updated_at = now()
		WHERE id = $1 AND status = $2::dispute_status
		RETURNING` + disputeColumns

	d, err := scanDispute(r.pool.QueryRow(ctx, query, id, expect))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Dispute{}, fmt.Errorf("dispute: withdraw: %w", err)
	}
	return Dispute{}, r.classifyStale(ctx, id, expect)
}

// ProposeMediation records a new standing proposal. The status/tier change
// and the proposal comment commit atomically: if the comment insert fails
// the transaction aborts and the dispute keeps its prior status, because the
// comment is the proposal record.
func (r *Repository) ProposeMediation(ctx context.Context, id string, expect Status, proposal Comment) (Dispute, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin mediation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE disputes
		SET status = 'mediation',
		    tier = 'mediation',
		    updated_at = now()
		WHERE id = $1 AND status = $2::dispute_status
		RETURNING` + disputeColumns

	d, err := scanDispute(tx.QueryRow(ctx, query, id, expect))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, r.classifyStale(ctx, id, expect)
		}
		return Dispute{}, fmt.Errorf("dispute: mark mediating: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO dispute_comments (dispute_id, user_id, kind, content, visibility)
		VALUES ($1, $2, $3::dispute_comment_kind, $4, $5::dispute_comment_visibility)
	`, proposal.DisputeID, proposal.UserID, proposal.Kind, proposal.Content, proposal.Visibility); err != nil {
		return Dispute{}, fmt.Errorf("%w: record mediation proposal: %v", ErrDependency, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit mediation proposal: %w", err)
	}
	return d, nil
}

func (r *Repository) AcceptMediation(ctx context.Context, id string, expect Status, notes string, resolvedAt time.Time) (Dispute, error) {
	query := `
		UPDATE disputes
		SET status = 'mediated',
		    resolution_notes = $3,
		    resolved_at = $4,
		    updated_at = now()
		WHERE id = $1 AND status = $2::dispute_status
		RETURNING` + disputeColumns

	d, err := scanDispute(r.pool.QueryRow(ctx, query, id, expect, notes, resolvedAt))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Dispute{}, fmt.Errorf("dispute: accept mediation: %w", err)
	}
	return Dispute{}, r.classifyStale(ctx, id, expect)
}

func (r *Repository) AppendComment(ctx context.Context, c Comment) (Comment, error) {
	const query = `
		INSERT INTO dispute_comments (dispute_id, user_id, kind, content, visibility)
		VALUES ($1, $2, $3::dispute_comment_kind, $4, $5::dispute_comment_visibility)
		RETURNING id, dispute_id, user_id, kind::text, content, visibility::text, created_at
	`

	var out Comment
	err := r.pool.QueryRow(ctx, query, c.DisputeID, c.UserID, c.Kind, c.Content, c.Visibility).Scan(
		&out.ID, &out.DisputeID, &out.UserID, &out.Kind, &out.Content, &out.Visibility, &out.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Comment{}, ErrNotFound
		}
		return Comment{}, fmt.Errorf("dispute: append comment: %w", err)
	}
	return out, nil
}

func (r *Repository) LatestProposal(ctx context.Context, disputeID string) (*Comment, error) {
	const query = `
		SELECT id, dispute_id, user_id, kind::text, content, visibility::text, created_at
		FROM dispute_comments
		WHERE dispute_id = $1 AND kind = 'mediation_proposal'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var c Comment
	err := r.pool.QueryRow(ctx, query, disputeID).Scan(
		&c.ID, &c.DisputeID, &c.UserID, &c.Kind, &c.Content, &c.Visibility, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("dispute: latest proposal: %w", err)
	}
	return &c, nil
}

func (r *Repository) ListComments(ctx context.Context, disputeID string) ([]Comment, error) {
	const query = `
		SELECT id, dispute_id, user_id, kind::text, content, visibility::text, created_at
		FROM dispute_comments
		WHERE dispute_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, disputeID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list comments: %w", err)
	}
	defer rows.Close()

	out := make([]Comment, 0, 8)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.DisputeID, &c.UserID, &c.Kind, &c.Content, &c.Visibility, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate comments: %w", err)
	}
	return out, nil
}
