// Package entitlement answers "can this subscriber read this content right
// now". It runs on every gated-content read: one read-only query over
// committed state, no locks, no writes.
package entitlement

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

var ErrContentNotFound = errors.New("gated content not found")

// GatedContent is a content item with an optional minimum tier. Owned by
// the content-serving collaborator; read-only here.
type GatedContent struct {
	ID        uuid.UUID
	CreatorID uuid.UUID
	MinTierID *uuid.UUID
}

// Store reads the committed state the evaluation needs.
type Store interface {
	GetContent(ctx context.Context, contentID uuid.UUID) (*GatedContent, error)

	// HighestAccessRank returns the tier rank of the subscriber's
	// access-granting (active or past_due) subscription with the creator,
	// or (0, false) when there is none.
	HighestAccessRank(ctx context.Context, subscriberID, creatorID uuid.UUID) (int, bool, error)

	// TierRank returns the configured ordinal of a tier.
	TierRank(ctx context.Context, tierID uuid.UUID) (int, error)
}

// Evaluator gates content reads against committed subscription state.
// It never blocks on in-flight webhook processing: a payment failure still
// being ingested may grant one extra read, which is an accepted tradeoff in
// favor of availability.
type Evaluator struct {
	store Store
	log   *slog.Logger
}

// NewEvaluator creates an Evaluator. Panics on a nil store.
func NewEvaluator(store Store, log *slog.Logger) *Evaluator {
	if store == nil {
		panic("entitlement: Store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{store: store, log: log}
}

// HasAccess reports whether the subscriber may read the content. Ungated
// content is always readable. Otherwise the subscriber needs an active or
// past_due (grace period) subscription with the content's creator whose tier
// rank is at least the required tier's rank. Rank is the creator's explicit
// ordering — never inferred from price.
//
// Fails closed: lookup errors deny access rather than leak gated content.
func (e *Evaluator) HasAccess(ctx context.Context, subscriberID, contentID uuid.UUID) (bool, error) {
	content, err := e.store.GetContent(ctx, contentID)
	if err != nil {
		return false, err
	}
	if content.MinTierID == nil {
		return true, nil
	}

	requiredRank, err := e.store.TierRank(ctx, *content.MinTierID)
	if err != nil {
		return false, err
	}

	rank, ok, err := e.store.HighestAccessRank(ctx, subscriberID, content.CreatorID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	return rank >= requiredRank, nil
}
