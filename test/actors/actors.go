package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The actors hammer the disputes schema with the same SQL shapes the
// repositories use, so the database-level invariants (unique dispute per
// submission, compare-and-swap on status, self-arbitration check, append-only
// comments) are exercised under real contention.
//
// The chaos actor kills connections at random, so only integrity violations
// (class 23) are treated as fatal; everything else is retried.

func integrityViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}

// Opener files new disputes. Most iterations create a fresh submission and
// dispute it; some retry the seed submission, which must fail on the unique
// constraint once a dispute exists.
func Opener(ctx context.Context, pool *pgxpool.Pool, taskID, seedSubmission, disputantID, reviewerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if rand.Intn(4) == 0 {
			_, err := pool.Exec(ctx, `INSERT INTO disputes (task_id, submission_id, disputant_id, reviewer_id, reason)
                                       VALUES ($1,$2,$3,$4,'duplicate attempt')`, taskID, seedSubmission, disputantID, reviewerID)
			var pgErr *pgconn.PgError
			if integrityViolation(err) && errors.As(err, &pgErr) && pgErr.Code != "23505" {
				return fmt.Errorf("opener duplicate insert: %w", err)
			}
			// 23505 is the expected outcome here
		} else {
			var subID string
			if err := pool.QueryRow(ctx, `INSERT INTO task_submissions (task_id, submitter_id) VALUES ($1,$2) RETURNING id`, taskID, disputantID).Scan(&subID); err != nil {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			if _, err := pool.Exec(ctx, `INSERT INTO disputes (task_id, submission_id, disputant_id, reviewer_id, reason, response_deadline, mediation_deadline)
                                      VALUES ($1,$2,$3,$4,'stress dispute', NOW() + interval '1 hour', NOW() + interval '2 hours')`,
				taskID, subID, disputantID, reviewerID); integrityViolation(err) {
				return fmt.Errorf("opener insert: %w", err)
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Responder submits reviewer responses with the engine's compare-and-swap
// shape: the update lands only while the status is still respondable and no
// response exists.
func Responder(ctx context.Context, pool *pgxpool.Pool, reviewerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `UPDATE disputes
                                   SET response_text='standing by the score', response_submitted_at=NOW(),
                                       status='under_review', tier='council', updated_at=NOW()
                                   WHERE id = (SELECT id FROM disputes
                                               WHERE reviewer_id=$1 AND status IN ('open','mediation','awaiting_response')
                                                 AND response_submitted_at IS NULL
                                               LIMIT 1)
                                     AND status IN ('open','mediation','awaiting_response')
                                     AND response_submitted_at IS NULL`, reviewerID)
		if integrityViolation(err) {
			return fmt.Errorf("responder update: %w", err)
		}
		time.Sleep(time.Duration(25+rand.Intn(50)) * time.Millisecond)
	}
}

// Arbitrator races to claim unassigned disputes and resolves its claims with
// random verdicts, applying the settlement writes in one transaction.
func Arbitrator(ctx context.Context, pool *pgxpool.Pool, arbitratorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		// claim
		_, err := pool.Exec(ctx, `UPDATE disputes
                                   SET arbitrator_id=$1, updated_at=NOW()
                                   WHERE id = (SELECT id FROM disputes
                                               WHERE status='under_review' AND arbitrator_id IS NULL AND reviewer_id <> $1
                                               LIMIT 1)
                                     AND status='under_review' AND arbitrator_id IS NULL`, arbitratorID)
		if integrityViolation(err) {
			return fmt.Errorf("arbitrator claim: %w", err)
		}

		if err := resolveOne(ctx, pool, arbitratorID); err != nil {
			return err
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

func resolveOne(ctx context.Context, pool *pgxpool.Pool, arbitratorID string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil
	}
	defer tx.Rollback(ctx)

	var dispID, subID, disputantID string
	var basePoints int
	err = tx.QueryRow(ctx, `SELECT d.id, d.submission_id, d.disputant_id, t.base_points
                             FROM disputes d JOIN tasks t ON t.id = d.task_id
                             WHERE d.arbitrator_id=$1 AND d.status='under_review'
                             LIMIT 1 FOR UPDATE OF d`, arbitratorID).Scan(&dispID, &subID, &disputantID, &basePoints)
	if err != nil {
		return nil // nothing claimed yet
	}

	verdicts := []string{"upheld", "overturned", "compromise", "dismissed"}
	verdict := verdicts[rand.Intn(len(verdicts))]

	switch verdict {
	case "compromise":
		score := 1 + rand.Intn(5)
		earned := int(float64(basePoints)*0.2*float64(score) + 0.5)
		if _, err := tx.Exec(ctx, `UPDATE disputes SET status='resolved', resolution='compromise', new_quality_score=$2,
                                    resolution_notes='stress compromise', resolved_at=NOW(), updated_at=NOW()
                                    WHERE id=$1 AND status='under_review'`, dispID, score); err != nil {
			if integrityViolation(err) {
				return fmt.Errorf("resolve compromise: %w", err)
			}
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE task_submissions SET review_status='approved', quality_score=$2, earned_points=$3, reviewed_at=NOW(), updated_at=NOW() WHERE id=$1`, subID, score, earned); err != nil {
			if integrityViolation(err) {
				return fmt.Errorf("settle submission: %w", err)
			}
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET points = points + $2, updated_at=NOW() WHERE id=$1`, disputantID, earned); err != nil {
			if integrityViolation(err) {
				return fmt.Errorf("credit points: %w", err)
			}
			return nil
		}
	case "overturned":
		if _, err := tx.Exec(ctx, `UPDATE disputes SET status='resolved', resolution='overturned',
                                    resolution_notes='stress overturn', resolved_at=NOW(), updated_at=NOW()
                                    WHERE id=$1 AND status='under_review'`, dispID); err != nil {
			if integrityViolation(err) {
				return fmt.Errorf("resolve overturned: %w", err)
			}
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE task_submissions SET review_status='approved', quality_score=5, earned_points=$2, reviewed_at=NOW(), updated_at=NOW() WHERE id=$1`, subID, basePoints); err != nil {
			if integrityViolation(err) {
				return fmt.Errorf("settle submission: %w", err)
			}
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET points = points + $2, updated_at=NOW() WHERE id=$1`, disputantID, basePoints); err != nil {
			if integrityViolation(err) {
				return fmt.Errorf("credit points: %w", err)
			}
			return nil
		}
	case "dismissed":
		if _, err := tx.Exec(ctx, `UPDATE disputes SET status='dismissed', resolution='dismissed',
                                    resolution_notes='stress dismissal', resolved_at=NOW(), updated_at=NOW()
                                    WHERE id=$1 AND status='under_review'`, dispID); err != nil {
			if integrityViolation(err) {
				return fmt.Errorf("resolve dismissed: %w", err)
			}
			return nil
		}
	default:
		if _, err := tx.Exec(ctx, `UPDATE disputes SET status='resolved', resolution='upheld',
                                    resolution_notes='stress uphold', resolved_at=NOW(), updated_at=NOW()
                                    WHERE id=$1 AND status='under_review'`, dispID); err != nil {
			if integrityViolation(err) {
				return fmt.Errorf("resolve upheld: %w", err)
			}
			return nil
		}
	}
	if err := tx.Commit(ctx); integrityViolation(err) {
		return err
	}
	return nil
}

// Mediator drives the two-party consensus ledger: it records proposals in the
// same transaction as the status flip, and occasionally echoes the standing
// proposal from the other party to settle the dispute as mediated.
func Mediator(ctx context.Context, pool *pgxpool.Pool, disputantID, reviewerID string, stop <-chan struct{}) error {
	parties := []string{disputantID, reviewerID}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		actor := parties[rand.Intn(len(parties))]

		tx, err := pool.Begin(ctx)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		var dispID string
		err = tx.QueryRow(ctx, `SELECT id FROM disputes
                                 WHERE status IN ('open','mediation') AND (disputant_id=$1 OR reviewer_id=$1)
                                 LIMIT 1 FOR UPDATE`, actor).Scan(&dispID)
		if err == nil {
			var lastAuthor, lastText string
			_ = tx.QueryRow(ctx, `SELECT user_id, content FROM dispute_comments
                                   WHERE dispute_id=$1 AND kind='mediation_proposal'
                                   ORDER BY created_at DESC, id DESC LIMIT 1`, dispID).Scan(&lastAuthor, &lastText)

			if lastText != "" && lastAuthor != actor && rand.Intn(2) == 0 {
				// accept the standing proposal
				var tag pgconn.CommandTag
				tag, err = tx.Exec(ctx, `UPDATE disputes SET status='mediated', resolution_notes=$2, resolved_at=NOW(), updated_at=NOW()
                                        WHERE id=$1 AND status IN ('open','mediation')`, dispID, lastText)
				if err == nil && tag.RowsAffected() > 0 {
					_, _ = tx.Exec(ctx, `INSERT INTO dispute_comments (dispute_id, user_id, kind, content)
                                          VALUES ($1,$2,'mediation_confirmation',$3)`, dispID, actor, lastText)
				}
			} else {
				text := fmt.Sprintf("settle at score %d", 1+rand.Intn(5))
				_, err = tx.Exec(ctx, `UPDATE disputes SET status='mediation', tier='mediation', updated_at=NOW()
                                        WHERE id=$1 AND status IN ('open','mediation')`, dispID)
				if err == nil {
					_, err = tx.Exec(ctx, `INSERT INTO dispute_comments (dispute_id, user_id, kind, content)
                                            VALUES ($1,$2,'mediation_proposal',$3)`, dispID, actor, text)
				}
			}
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// Withdrawer abandons open disputes, competing with responders and mediators
// over the same rows.
func Withdrawer(ctx context.Context, pool *pgxpool.Pool, disputantID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `UPDATE disputes SET status='withdrawn', updated_at=NOW()
                                   WHERE id = (SELECT id FROM disputes
                                               WHERE disputant_id=$1 AND status IN ('open','mediation','awaiting_response')
                                               LIMIT 1)
                                     AND status IN ('open','mediation','awaiting_response')`, disputantID)
		if integrityViolation(err) {
			return fmt.Errorf("withdrawer update: %w", err)
		}
		time.Sleep(time.Duration(150+rand.Intn(150)) * time.Millisecond)
	}
}

// CommentVandal tries to rewrite ledger history; the append-only trigger must
// reject every attempt.
func CommentVandal(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tag, err := pool.Exec(ctx, `UPDATE dispute_comments SET content='rewritten' WHERE id = (SELECT id FROM dispute_comments LIMIT 1)`)
		if err == nil && tag.RowsAffected() > 0 {
			// the trigger let a rewrite through; surface it
			return errors.New("comment vandal: update unexpectedly succeeded")
		}
		tag, err = pool.Exec(ctx, `DELETE FROM dispute_comments WHERE id = (SELECT id FROM dispute_comments LIMIT 1)`)
		if err == nil && tag.RowsAffected() > 0 {
			return errors.New("comment vandal: delete unexpectedly succeeded")
		}
		time.Sleep(250 * time.Millisecond)
	}
}
