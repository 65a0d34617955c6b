package webhook

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/patronkit/patronkit/internal/subscription"
)

// envelope is the processor's native event wrapper.
type envelope struct {
	EventID    string       `json:"event_id"`
	EventType  string       `json:"event_type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Data       envelopeData `json:"data"`
}

type envelopeData struct {
	SubscriptionID     string            `json:"subscription_id"`
	CustomData         map[string]string `json:"custom_data"`
	CurrentPeriodStart *time.Time        `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time        `json:"current_period_end"`
}

// eventTypeMap translates the processor's event names into canonical types.
// Absence means EventUnknown, which is acknowledged but not applied.
var eventTypeMap = map[string]subscription.EventType{
	"checkout.completed":     subscription.EventCheckoutCompleted,
	"subscription.activated": subscription.EventSubscriptionActivated,
	"subscription.renewed":   subscription.EventSubscriptionRenewed,
	"subscription.past_due":  subscription.EventSubscriptionPastDue,
	"subscription.canceled":  subscription.EventSubscriptionCanceled,
	"payment.failed":         subscription.EventPaymentFailed,
}

// ParseEnvelope validates and normalizes a raw webhook body. Signature
// verification must already have happened.
func ParseEnvelope(payload []byte) (subscription.Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return subscription.Event{}, errors.Join(ErrMalformedPayload, err)
	}
	if env.EventID == "" || env.EventType == "" || env.OccurredAt.IsZero() {
		return subscription.Event{}, ErrMalformedPayload
	}

	ev := subscription.Event{
		ID:             env.EventID,
		OccurredAt:     env.OccurredAt,
		ProcessorSubID: env.Data.SubscriptionID,
		PeriodStart:    env.Data.CurrentPeriodStart,
		PeriodEnd:      env.Data.CurrentPeriodEnd,
	}

	if t, ok := eventTypeMap[env.EventType]; ok {
		ev.Type = t
	} else {
		ev.Type = subscription.EventUnknown
	}

	// Our subscription id travels through checkout custom data and is the
	// preferred way to locate the row; the processor's subscription id is
	// the fallback for events that predate the mapping.
	if raw, ok := env.Data.CustomData["subscription_id"]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			ev.SubscriptionID = id
		}
	}

	return ev, nil
}
