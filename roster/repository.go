package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested arbitrator does not exist.
var ErrNotFound = errors.New("roster: not found")

// Repository provides read access to the arbitrator roster. The open caseload
// counts disputes the user currently arbitrates that have not reached a
// terminal status.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileColumns = `
	u.id, u.full_name, u.role::text, u.points, u.created_at,
	COUNT(d.id) FILTER (
		WHERE d.status NOT IN ('resolved', 'dismissed', 'withdrawn', 'mediated')
	) AS open_caseload
`

// GetByID fetches an arbitrator profile by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM users u
		LEFT JOIN disputes d ON d.arbitrator_id = u.id
		WHERE u.id = $1 AND u.role IN ('council', 'admin')
		GROUP BY u.id
	`

	var profile Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.FullName,
		&profile.Role,
		&profile.Points,
		&profile.CreatedAt,
		&profile.OpenCaseload,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("roster: query by id: %w", err)
	}

	return profile, nil
}

// List fetches up to limit arbitrator profiles, least loaded first.
func (r *Repository) List(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT ` + profileColumns + `
		FROM users u
		LEFT JOIN disputes d ON d.arbitrator_id = u.id
		WHERE u.role IN ('council', 'admin')
		GROUP BY u.id
		ORDER BY open_caseload ASC, u.full_name ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("roster: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, limit)
	for rows.Next() {
		var profile Profile
		if err := rows.Scan(&profile.ID, &profile.FullName, &profile.Role, &profile.Points, &profile.CreatedAt, &profile.OpenCaseload); err != nil {
			return nil, fmt.Errorf("roster: scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster: iterate profiles: %w", err)
	}

	return profiles, nil
}
