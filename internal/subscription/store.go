package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/patronkit/patronkit/pkg/pg"
)

// Store is the non-transactional subscription persistence used by checkout
// and the reconciler. Webhook ingestion uses its own transactional store;
// see the webhook package.
type Store interface {
	// Insert creates a PENDING row. Maps the at-most-one-active partial
	// unique index violation to ErrAlreadySubscribed.
	Insert(ctx context.Context, sub *Subscription) error

	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// FindNonTerminal returns the single pending/active/past_due
	// subscription of a subscriber with a creator, or
	// ErrSubscriptionNotFound.
	FindNonTerminal(ctx context.Context, subscriberID, creatorID uuid.UUID) (*Subscription, error)

	// ListPendingOlderThan returns PENDING rows created before the cutoff,
	// candidates for the abandoned-checkout sweep.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]Subscription, error)

	// ExpireIfStillPending flips a PENDING row to EXPIRED. Returns false if
	// the row changed state in the meantime (a webhook won the race).
	ExpireIfStillPending(ctx context.Context, id uuid.UUID) (bool, error)

	// ExpireLapsedActive marks ACTIVE rows whose period ended before now as
	// EXPIRED. Returns the number of rows swept.
	ExpireLapsedActive(ctx context.Context, now time.Time) (int64, error)

	// ListPastDueLapsedBefore returns PAST_DUE rows whose period ended
	// before the grace cutoff, candidates for forced cancellation.
	ListPastDueLapsedBefore(ctx context.Context, graceCutoff time.Time) ([]Subscription, error)

	// CancelIfStillPastDue flips a PAST_DUE row to CANCELED. Returns false
	// if the row changed state in the meantime (a recovery webhook won the
	// race).
	CancelIfStillPastDue(ctx context.Context, id uuid.UUID) (bool, error)
}

// DB is the subset of pgxpool.Pool the repository needs.
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

// Columns selects the full subscription row; shared with the webhook
// package's transactional store.
const Columns = `id, subscriber_id, creator_id, tier_id, processor_subscription_id, checkout_session_id, status, current_period_start, current_period_end, last_event_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, sub *Subscription) error {
	query := `
		INSERT INTO subscriptions (id, subscriber_id, creator_id, tier_id, processor_subscription_id, checkout_session_id, status, current_period_start, current_period_end, last_event_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.SubscriberID, sub.CreatorID, sub.TierID, sub.ProcessorSubID, sub.CheckoutSessionID,
		sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.LastEventAt)
	if pg.IsDuplicateKeyError(err) {
		return ErrAlreadySubscribed
	}
	return err
}

func (r *repo) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	query := `SELECT ` + Columns + ` FROM subscriptions WHERE id = $1`
	sub, err := Scan(r.db.QueryRow(ctx, query, id))
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

func (r *repo) FindNonTerminal(ctx context.Context, subscriberID, creatorID uuid.UUID) (*Subscription, error) {
	query := `
		SELECT ` + Columns + ` FROM subscriptions
		WHERE subscriber_id = $1 AND creator_id = $2 AND status IN ('pending', 'active', 'past_due')
	`
	sub, err := Scan(r.db.QueryRow(ctx, query, subscriberID, creatorID))
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

func (r *repo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]Subscription, error) {
	query := `SELECT ` + Columns + ` FROM subscriptions WHERE status = 'pending' AND created_at < $1`
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (r *repo) ExpireIfStillPending(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = 'expired', updated_at = NOW() WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repo) ExpireLapsedActive(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscriptions SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND current_period_end IS NOT NULL AND current_period_end < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repo) ListPastDueLapsedBefore(ctx context.Context, graceCutoff time.Time) ([]Subscription, error) {
	query := `
		SELECT ` + Columns + ` FROM subscriptions
		WHERE status = 'past_due' AND current_period_end IS NOT NULL AND current_period_end < $1
	`
	rows, err := r.db.Query(ctx, query, graceCutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (r *repo) CancelIfStillPastDue(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = 'canceled', updated_at = NOW() WHERE id = $1 AND status = 'past_due'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Scan reads a subscription row in Columns order.
func Scan(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	var processorSubID *string
	err := row.Scan(&sub.ID, &sub.SubscriberID, &sub.CreatorID, &sub.TierID,
		&processorSubID, &sub.CheckoutSessionID, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.LastEventAt,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if processorSubID != nil {
		sub.ProcessorSubID = *processorSubID
	}
	return &sub, nil
}
