package webhook

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patronkit/patronkit/internal/subscription"
	"github.com/patronkit/patronkit/pkg/pg"
)

// Store opens the transaction a webhook event is processed in. Everything —
// dedup insert, subscription mutation, cap recount, refund intent, outcome —
// commits or rolls back together, so a crash mid-processing can neither
// drop a replay nor double-apply one.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional surface event processing runs against.
type Tx interface {
	// InsertProcessedEvent claims the event id. Returns false when the id
	// was already logged; the caller must then skip all state changes.
	InsertProcessedEvent(ctx context.Context, eventID, eventType string) (bool, error)

	// SetEventOutcome records how processing ended, in the same transaction.
	SetEventOutcome(ctx context.Context, eventID, outcome string) error

	// LockSubscriptionByID fetches the row FOR UPDATE, serializing
	// concurrent events for the same subscription while letting events for
	// different subscriptions proceed in parallel.
	LockSubscriptionByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error)
	LockSubscriptionByProcessorID(ctx context.Context, processorSubID string) (*subscription.Subscription, error)

	UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error

	// TierCapAndActiveCount locks the tier row and recounts its active
	// subscriptions. The count is always derived under the lock, never
	// cached, so concurrent confirmations cannot race past the cap.
	TierCapAndActiveCount(ctx context.Context, tierID uuid.UUID) (capacity *int32, active int, err error)

	InsertRefundIntent(ctx context.Context, intent subscription.RefundIntent) error
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore returns a Postgres-backed Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertProcessedEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	query := `
		INSERT INTO processed_events (event_id, event_type, outcome, received_at)
		VALUES ($1, $2, 'received', NOW())
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := t.tx.Exec(ctx, query, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) SetEventOutcome(ctx context.Context, eventID, outcome string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE processed_events SET outcome = $1 WHERE event_id = $2`, outcome, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("processed event %s vanished mid-transaction", eventID)
	}
	return nil
}

func (t *pgTx) LockSubscriptionByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	query := `SELECT ` + subscription.Columns + ` FROM subscriptions WHERE id = $1 FOR UPDATE`
	sub, err := subscription.Scan(t.tx.QueryRow(ctx, query, id))
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return sub, err
}

func (t *pgTx) LockSubscriptionByProcessorID(ctx context.Context, processorSubID string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscription.Columns + ` FROM subscriptions WHERE processor_subscription_id = $1 FOR UPDATE`
	sub, err := subscription.Scan(t.tx.QueryRow(ctx, query, processorSubID))
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return sub, err
}

func (t *pgTx) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		UPDATE subscriptions
		SET processor_subscription_id = NULLIF($1, ''), status = $2, current_period_start = $3,
		    current_period_end = $4, last_event_at = $5, updated_at = $6
		WHERE id = $7
	`
	_, err := t.tx.Exec(ctx, query,
		sub.ProcessorSubID, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.LastEventAt, sub.UpdatedAt, sub.ID)
	return err
}

func (t *pgTx) TierCapAndActiveCount(ctx context.Context, tierID uuid.UUID) (*int32, int, error) {
	// Concurrent confirmations serialize on the tier row. Lock order is
	// always subscription then tier, so confirmations cannot deadlock.
	var capacity *int32
	err := t.tx.QueryRow(ctx,
		`SELECT subscriber_cap FROM tiers WHERE id = $1 FOR UPDATE`, tierID).Scan(&capacity)
	if err != nil {
		return nil, 0, err
	}

	var active int
	err = t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE tier_id = $1 AND status = 'active'`, tierID).Scan(&active)
	if err != nil {
		return nil, 0, err
	}
	return capacity, active, nil
}

func (t *pgTx) InsertRefundIntent(ctx context.Context, intent subscription.RefundIntent) error {
	query := `
		INSERT INTO refund_intents (id, subscription_id, event_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.tx.Exec(ctx, query,
		intent.ID, intent.SubscriptionID, intent.EventID, intent.Reason, intent.CreatedAt)
	return err
}
