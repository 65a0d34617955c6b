// Package subscription holds the central subscription record and the pure
// state machine that applies verified payment-processor events to it.
package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status is the subscription lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
// Terminal rows are kept forever for audit and entitlement history.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusExpired
}

// GrantsAccess reports whether the status entitles the subscriber to gated
// content. PAST_DUE keeps access as a grace period for transient card
// failures.
func (s Status) GrantsAccess() bool {
	return s == StatusActive || s == StatusPastDue
}

// Subscription links a subscriber to one tier of one creator. At most one
// non-terminal row may exist per (subscriber, creator) pair; the database
// enforces this with a partial unique index.
type Subscription struct {
	ID           uuid.UUID
	SubscriberID uuid.UUID
	CreatorID    uuid.UUID
	TierID       uuid.UUID

	// ProcessorSubID is empty until the first confirming webhook names the
	// processor's subscription.
	ProcessorSubID string
	// CheckoutSessionID identifies the hosted checkout that created the row,
	// used by the reconciler to re-verify abandoned PENDING rows.
	CheckoutSessionID string

	Status             Status
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time

	// LastEventAt is the monotonic sequence marker: only events with a
	// strictly newer processor timestamp are applied.
	LastEventAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PeriodLapsed reports whether the current billing period ended before now.
func (s *Subscription) PeriodLapsed(now time.Time) bool {
	return s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(now)
}

// RefundIntent is emitted when an invariant violation is resolved by
// canceling a freshly-confirmed subscription (e.g. a cap race). The billing
// collaborator consumes these and issues the actual refund.
type RefundIntent struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	EventID        string
	Reason         string
	CreatedAt      time.Time
}
