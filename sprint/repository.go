package sprint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the task does not resolve to a sprint.
var ErrNotFound = errors.New("sprint: not found")

// Repository provides read access to sprint scheduling data.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DisputeWindowEndsAt returns when the dispute window of the task's owning
// sprint closes. Tasks outside any sprint, or sprints without a configured
// window, have no closing time (nil).
func (r *Repository) DisputeWindowEndsAt(ctx context.Context, taskID string) (*time.Time, error) {
	const query = `
		SELECT s.dispute_window_ends_at
		FROM tasks t
		LEFT JOIN sprints s ON s.id = t.sprint_id
		WHERE t.id = $1
	`

	var endsAt *time.Time
	if err := r.pool.QueryRow(ctx, query, taskID).Scan(&endsAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sprint: dispute window: %w", err)
	}
	return endsAt, nil
}
