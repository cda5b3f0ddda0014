package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"meritflow/dispute"
)

// DefaultOrgID is the policy row consulted when the deployment runs a single
// organization.
const DefaultOrgID = "default"

// Store reads per-organization dispute policy. It performs a fresh read per
// call; callers that want caching layer it here, never inside the engine.
type Store struct {
	pool  *pgxpool.Pool
	orgID string
}

func NewStore(pool *pgxpool.Pool, orgID string) *Store {
	if orgID == "" {
		orgID = DefaultOrgID
	}
	return &Store{pool: pool, orgID: orgID}
}

// Load resolves the organization's dispute windows. A missing row or unset
// column falls back to the engine defaults.
func (s *Store) Load(ctx context.Context) (dispute.Config, error) {
	const query = `
		SELECT dispute_appeal_hours, dispute_response_hours, dispute_mediation_hours
		FROM org_policies
		WHERE org_id = $1
	`

	var appealHours, responseHours, mediationHours *int
	err := s.pool.QueryRow(ctx, query, s.orgID).Scan(&appealHours, &responseHours, &mediationHours)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dispute.DefaultConfig(), nil
		}
		return dispute.Config{}, fmt.Errorf("policy: load %s: %w", s.orgID, err)
	}

	cfg := dispute.Config{}
	if appealHours != nil {
		cfg.AppealWindow = time.Duration(*appealHours) * time.Hour
	}
	if responseHours != nil {
		cfg.ResponseWindow = time.Duration(*responseHours) * time.Hour
	}
	if mediationHours != nil {
		cfg.MediationWindow = time.Duration(*mediationHours) * time.Hour
	}
	return cfg.WithDefaults(), nil
}
