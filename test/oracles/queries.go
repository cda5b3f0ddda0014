package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant queries. Each query selects violating rows, so an
// empty result set means the invariant holds.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_dispute_per_submission",
			SQL: `SELECT submission_id, COUNT(*) FROM disputes
                  GROUP BY submission_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_no_self_arbitration",
			SQL:  `SELECT id FROM disputes WHERE arbitrator_id = reviewer_id`,
		},
		{
			Name: "O3_resolved_has_resolution",
			SQL: `SELECT id, status, resolution FROM disputes
                  WHERE (status = 'resolved' AND resolution IS NULL)
                     OR (status = 'dismissed' AND resolution IS DISTINCT FROM 'dismissed')`,
		},
		{
			Name: "O4_compromise_score_pairing",
			SQL: `SELECT id FROM disputes
                  WHERE (resolution = 'compromise' AND new_quality_score IS NULL)
                     OR (resolution IS DISTINCT FROM 'compromise' AND new_quality_score IS NOT NULL)`,
		},
		{
			Name: "O5_mediated_consistency",
			SQL: `SELECT id FROM disputes
                  WHERE status = 'mediated'
                    AND (resolution IS NOT NULL OR resolution_notes IS NULL OR resolved_at IS NULL)`,
		},
		{
			Name: "O6_mediated_has_proposal",
			SQL: `SELECT d.id FROM disputes d
                  WHERE d.status = 'mediated'
                    AND NOT EXISTS (SELECT 1 FROM dispute_comments c
                                    WHERE c.dispute_id = d.id AND c.kind = 'mediation_proposal')`,
		},
		{
			Name: "O7_appeal_tier_admin",
			SQL: `SELECT id, status, tier FROM disputes
                  WHERE status IN ('appealed','appeal_review') AND tier <> 'admin'`,
		},
		{
			Name: "O8_earned_points_bounded",
			SQL: `SELECT s.id, s.earned_points, t.base_points
                  FROM task_submissions s JOIN tasks t ON t.id = s.task_id
                  WHERE s.earned_points IS NOT NULL
                    AND (s.earned_points < 0 OR s.earned_points > t.base_points)`,
		},
		{
			Name: "O9_user_points_nonnegative",
			SQL:  `SELECT id, points FROM users WHERE points < 0`,
		},
		{
			Name: "O10_comment_ledger_guard",
			SQL: `SELECT 'missing_append_only_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname='no_rewrite_dispute_comments')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
