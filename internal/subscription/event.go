package subscription

import (
	"time"

	"github.com/google/uuid"
)

// EventType is a canonical processor event consumed by the state machine.
type EventType string

const (
	EventCheckoutCompleted     EventType = "checkout_completed"
	EventSubscriptionActivated EventType = "subscription_activated"
	EventSubscriptionRenewed   EventType = "subscription_renewed"
	EventSubscriptionPastDue   EventType = "subscription_past_due"
	EventSubscriptionCanceled  EventType = "subscription_canceled"
	EventPaymentFailed         EventType = "payment_failed"

	// EventUnknown marks processor event types this version does not handle.
	// They are acknowledged and logged, never errored, so the processor can
	// add event types without breaking us.
	EventUnknown EventType = "unknown"
)

// Event is a normalized, signature-verified processor notification.
type Event struct {
	// ID is the processor's globally unique event id; the dedup key.
	ID   string
	Type EventType

	// OccurredAt is the processor's own sequence timestamp, compared against
	// the subscription's LastEventAt marker.
	OccurredAt time.Time

	// SubscriptionID is our subscription id echoed back through checkout
	// custom data. Zero when the processor did not carry it.
	SubscriptionID uuid.UUID
	// ProcessorSubID is the processor's subscription identifier.
	ProcessorSubID string

	// Billing period bounds, present on confirmation and renewal events.
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}
