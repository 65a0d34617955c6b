package tier

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/patronkit/patronkit/pkg/pg"
)

// Store defines tier persistence. Implementations must map unique
// constraint violations on (creator_id, rank) to ErrDuplicateRank.
type Store interface {
	Insert(ctx context.Context, t *Tier) error
	Get(ctx context.Context, id uuid.UUID) (*Tier, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]Tier, error)
	Update(ctx context.Context, t *Tier) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// HasSubscriptions reports whether any subscription (any status)
	// references the tier. Gates price/interval immutability.
	HasSubscriptions(ctx context.Context, tierID uuid.UUID) (bool, error)

	// CountNonTerminal returns the number of pending/active/past_due
	// subscriptions on the tier. Advisory only; the authoritative cap check
	// runs inside the webhook confirmation transaction.
	CountNonTerminal(ctx context.Context, tierID uuid.UUID) (int, error)
}

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repo struct {
	db DB
}

// NewStore returns a Postgres-backed Store.
func NewStore(db DB) Store {
	return &repo{db: db}
}

const tierColumns = `id, creator_id, name, price_cents, currency, billing_interval, processor_price_id, perks, rank, active, subscriber_cap, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, t *Tier) error {
	query := `
		INSERT INTO tiers (id, creator_id, name, price_cents, currency, billing_interval, processor_price_id, perks, rank, active, subscriber_cap, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		t.ID, t.CreatorID, t.Name, t.PriceCents, t.Currency, t.Interval, t.ProcessorPriceID, t.Perks, t.Rank, t.Active, t.SubscriberCap)
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateRank
	}
	return err
}

func (r *repo) Get(ctx context.Context, id uuid.UUID) (*Tier, error) {
	query := `SELECT ` + tierColumns + ` FROM tiers WHERE id = $1`
	t, err := scanTier(r.db.QueryRow(ctx, query, id))
	if pg.IsNotFoundError(err) {
		return nil, ErrTierNotFound
	}
	return t, err
}

func (r *repo) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]Tier, error) {
	query := `SELECT ` + tierColumns + ` FROM tiers WHERE creator_id = $1 ORDER BY rank`
	rows, err := r.db.Query(ctx, query, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []Tier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, *t)
	}
	return tiers, rows.Err()
}

func (r *repo) Update(ctx context.Context, t *Tier) error {
	query := `
		UPDATE tiers
		SET name = $1, price_cents = $2, currency = $3, billing_interval = $4, perks = $5, subscriber_cap = $6, updated_at = NOW()
		WHERE id = $7
	`
	tag, err := r.db.Exec(ctx, query,
		t.Name, t.PriceCents, t.Currency, t.Interval, t.Perks, t.SubscriberCap, t.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTierNotFound
	}
	return nil
}

func (r *repo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE tiers SET active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTierNotFound
	}
	return nil
}

func (r *repo) HasSubscriptions(ctx context.Context, tierID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE tier_id = $1)`, tierID).Scan(&exists)
	return exists, err
}

func (r *repo) CountNonTerminal(ctx context.Context, tierID uuid.UUID) (int, error) {
	var n int
	query := `
		SELECT COUNT(*) FROM subscriptions
		WHERE tier_id = $1 AND status IN ('pending', 'active', 'past_due')
	`
	err := r.db.QueryRow(ctx, query, tierID).Scan(&n)
	return n, err
}

func scanTier(row pgx.Row) (*Tier, error) {
	var t Tier
	err := row.Scan(&t.ID, &t.CreatorID, &t.Name, &t.PriceCents, &t.Currency, &t.Interval, &t.ProcessorPriceID, &t.Perks, &t.Rank, &t.Active, &t.SubscriberCap, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
