// Package webhook receives the payment processor's event stream and turns
// at-least-once, unordered delivery into exactly-once state transitions.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/patronkit/patronkit/internal/subscription"
)

// Config holds the shared secret the processor signs webhooks with.
type Config struct {
	Secret string `env:"PAYMENT_WEBHOOK_SECRET,required"`
}

// Result tells the HTTP handler what happened; every Result maps to 200.
type Result string

const (
	// ResultApplied means a state transition was committed.
	ResultApplied Result = "applied"
	// ResultDeduplicated means the event id was seen before; nothing was
	// reapplied.
	ResultDeduplicated Result = "deduplicated"
	// ResultDiscarded means the event was logged but superseded (stale,
	// terminal, or illegal for the current state). Steady-state traffic,
	// not an error.
	ResultDiscarded Result = "discarded"
	// ResultIgnored covers unknown event types and events naming no
	// subscription we know.
	ResultIgnored Result = "ignored"
)

// Event processing outcomes recorded in the processed_events log.
const (
	outcomeApplied           = "applied"
	outcomeDiscardedStale    = "discarded_stale"
	outcomeDiscardedTerminal = "discarded_terminal"
	outcomeDiscardedIllegal  = "discarded_illegal"
	outcomeIgnored           = "ignored"
	outcomeOrphaned          = "orphaned"
	outcomeCanceledCap       = "canceled_cap"
)

const capExceededReason = "tier_cap_exceeded"

// Ingestor verifies, deduplicates, and dispatches processor events.
type Ingestor struct {
	secret string
	store  Store
	log    *slog.Logger
	now    func() time.Time
}

// NewIngestor wires the ingestion pipeline. Panics on missing dependencies.
func NewIngestor(cfg Config, store Store, log *slog.Logger) *Ingestor {
	if cfg.Secret == "" {
		panic("webhook: shared secret is required")
	}
	if store == nil {
		panic("webhook: Store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{secret: cfg.Secret, store: store, log: log, now: time.Now}
}

// Ingest processes one raw webhook delivery.
//
// Contract: signature failures reject immediately with nothing logged;
// malformed payloads likewise. Everything past the boundary is logged to
// processed_events inside the same transaction as any state change, making
// replays true no-ops.
func (i *Ingestor) Ingest(ctx context.Context, payload []byte, signature string) (Result, error) {
	if err := VerifySignature(i.secret, payload, signature); err != nil {
		return "", err
	}

	ev, err := ParseEnvelope(payload)
	if err != nil {
		return "", err
	}

	var result Result
	err = i.store.InTx(ctx, func(tx Tx) error {
		inserted, err := tx.InsertProcessedEvent(ctx, ev.ID, string(ev.Type))
		if err != nil {
			return err
		}
		if !inserted {
			// True duplicate: acknowledged without reapplying anything.
			result = ResultDeduplicated
			return nil
		}

		if ev.Type == subscription.EventUnknown {
			result = ResultIgnored
			i.log.InfoContext(ctx, "unknown webhook event type acknowledged", "event_id", ev.ID)
			return tx.SetEventOutcome(ctx, ev.ID, outcomeIgnored)
		}

		sub, err := i.lockSubscription(ctx, tx, ev)
		if err != nil {
			if errors.Is(err, subscription.ErrSubscriptionNotFound) {
				result = ResultIgnored
				i.log.WarnContext(ctx, "webhook event references no known subscription",
					"event_id", ev.ID, "processor_sub_id", ev.ProcessorSubID)
				return tx.SetEventOutcome(ctx, ev.ID, outcomeOrphaned)
			}
			return err
		}

		next, outcome := subscription.Apply(*sub, ev, i.now().UTC())
		switch outcome.Kind {
		case subscription.OutcomeDiscardedStale:
			result = ResultDiscarded
			i.log.DebugContext(ctx, "stale webhook event discarded",
				"event_id", ev.ID, "subscription_id", sub.ID, "reason", outcome.Reason)
			return tx.SetEventOutcome(ctx, ev.ID, outcomeDiscardedStale)

		case subscription.OutcomeDiscardedTerminal:
			result = ResultDiscarded
			i.log.DebugContext(ctx, "webhook event for terminal subscription discarded",
				"event_id", ev.ID, "subscription_id", sub.ID, "reason", outcome.Reason)
			return tx.SetEventOutcome(ctx, ev.ID, outcomeDiscardedTerminal)

		case subscription.OutcomeDiscardedIllegal:
			result = ResultDiscarded
			i.log.InfoContext(ctx, "illegal transition discarded",
				"event_id", ev.ID, "subscription_id", sub.ID, "reason", outcome.Reason)
			return tx.SetEventOutcome(ctx, ev.ID, outcomeDiscardedIllegal)
		}

		// Confirmation transitions re-check the subscriber cap under the
		// tier row lock: the checkout-time check was only advisory.
		if sub.Status == subscription.StatusPending && next.Status == subscription.StatusActive {
			capped, err := i.enforceCap(ctx, tx, &next, ev)
			if err != nil {
				return err
			}
			if capped {
				result = ResultApplied
				return nil
			}
		}

		if err := tx.UpdateSubscription(ctx, &next); err != nil {
			return err
		}
		result = ResultApplied
		i.log.InfoContext(ctx, "subscription transitioned",
			"event_id", ev.ID, "subscription_id", next.ID,
			"from", sub.Status, "to", next.Status)
		return tx.SetEventOutcome(ctx, ev.ID, outcomeApplied)
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// lockSubscription locates the target row FOR UPDATE, preferring our own id
// from checkout custom data over the processor's subscription id.
func (i *Ingestor) lockSubscription(ctx context.Context, tx Tx, ev subscription.Event) (*subscription.Subscription, error) {
	if ev.SubscriptionID != uuid.Nil {
		sub, err := tx.LockSubscriptionByID(ctx, ev.SubscriptionID)
		if err == nil || !errors.Is(err, subscription.ErrSubscriptionNotFound) {
			return sub, err
		}
	}
	if ev.ProcessorSubID != "" {
		return tx.LockSubscriptionByProcessorID(ctx, ev.ProcessorSubID)
	}
	return nil, subscription.ErrSubscriptionNotFound
}

// enforceCap recounts active subscriptions under the tier lock. When the
// cap lost a race, the new claim is canceled — never the standing ones —
// and a refund intent is written for the billing collaborator. Returns true
// when the confirmation was converted into a cancellation.
func (i *Ingestor) enforceCap(ctx context.Context, tx Tx, next *subscription.Subscription, ev subscription.Event) (bool, error) {
	capacity, active, err := tx.TierCapAndActiveCount(ctx, next.TierID)
	if err != nil {
		return false, err
	}
	if capacity == nil || active < int(*capacity) {
		return false, nil
	}

	next.Status = subscription.StatusCanceled
	if err := tx.UpdateSubscription(ctx, next); err != nil {
		return false, err
	}
	if err := tx.InsertRefundIntent(ctx, subscription.RefundIntent{
		ID:             uuid.New(),
		SubscriptionID: next.ID,
		EventID:        ev.ID,
		Reason:         capExceededReason,
		CreatedAt:      i.now().UTC(),
	}); err != nil {
		return false, err
	}
	if err := tx.SetEventOutcome(ctx, ev.ID, outcomeCanceledCap); err != nil {
		return false, err
	}

	i.log.WarnContext(ctx, "subscriber cap exceeded by concurrent confirmation, canceling new claim",
		"event_id", ev.ID, "subscription_id", next.ID, "tier_id", next.TierID,
		"cap", *capacity, "active", active)
	return true, nil
}
