package entitlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/patronkit/patronkit/pkg/pg"
)

// DB is the read-only subset of pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repo struct {
	db DB
}

// NewStore returns a Postgres-backed Store.
func NewStore(db DB) Store {
	return &repo{db: db}
}

func (r *repo) GetContent(ctx context.Context, contentID uuid.UUID) (*GatedContent, error) {
	var c GatedContent
	query := `SELECT id, creator_id, min_tier_id FROM gated_content WHERE id = $1`
	err := r.db.QueryRow(ctx, query, contentID).Scan(&c.ID, &c.CreatorID, &c.MinTierID)
	if pg.IsNotFoundError(err) {
		return nil, ErrContentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) HighestAccessRank(ctx context.Context, subscriberID, creatorID uuid.UUID) (int, bool, error) {
	// The partial unique index guarantees at most one access-granting row
	// per (subscriber, creator); MAX collapses it to a scalar.
	var rank *int
	query := `
		SELECT MAX(t.rank)
		FROM subscriptions s
		JOIN tiers t ON t.id = s.tier_id
		WHERE s.subscriber_id = $1 AND s.creator_id = $2 AND s.status IN ('active', 'past_due')
	`
	if err := r.db.QueryRow(ctx, query, subscriberID, creatorID).Scan(&rank); err != nil {
		return 0, false, err
	}
	if rank == nil {
		return 0, false, nil
	}
	return *rank, true, nil
}

func (r *repo) TierRank(ctx context.Context, tierID uuid.UUID) (int, error) {
	var rank int
	err := r.db.QueryRow(ctx, `SELECT rank FROM tiers WHERE id = $1`, tierID).Scan(&rank)
	return rank, err
}
