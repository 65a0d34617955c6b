package subscription

import (
	"fmt"
	"time"
)

// OutcomeKind classifies the result of applying an event.
type OutcomeKind int

const (
	// OutcomeApplied means the subscription transitioned (or re-entered the
	// same state with updated period bookkeeping).
	OutcomeApplied OutcomeKind = iota
	// OutcomeDiscardedStale means the event's timestamp was not strictly
	// newer than the subscription's sequence marker. Expected under
	// at-least-once, out-of-order delivery; never an error.
	OutcomeDiscardedStale
	// OutcomeDiscardedTerminal means the subscription is already canceled or
	// expired; late events must not resurrect it.
	OutcomeDiscardedTerminal
	// OutcomeDiscardedIllegal means no transition exists for this
	// state/event pair. Logged and dropped so out-of-order delivery cannot
	// corrupt state a later-but-already-processed event established.
	OutcomeDiscardedIllegal
)

// Outcome describes what Apply did and why.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func (o Outcome) Applied() bool {
	return o.Kind == OutcomeApplied
}

// transitions is the legal state/event table. Everything absent is a
// discard, not an error.
var transitions = map[Status]map[EventType]Status{
	StatusPending: {
		EventCheckoutCompleted:     StatusActive,
		EventSubscriptionActivated: StatusActive,
	},
	StatusActive: {
		EventSubscriptionRenewed:  StatusActive,
		EventPaymentFailed:        StatusPastDue,
		EventSubscriptionPastDue:  StatusPastDue,
		EventSubscriptionCanceled: StatusCanceled,
	},
	StatusPastDue: {
		EventSubscriptionRenewed:  StatusActive,
		EventSubscriptionCanceled: StatusCanceled,
		// A repeated payment failure keeps the subscription past due but
		// advances the sequence marker.
		EventPaymentFailed:       StatusPastDue,
		EventSubscriptionPastDue: StatusPastDue,
	},
}

// Apply is the pure state-machine function: given the current subscription
// and a verified event, it returns the next subscription value and an
// outcome. It performs no I/O and takes now only for UpdatedAt bookkeeping,
// so it is testable without a database.
//
// Ordering discipline: an event is applied only if its processor timestamp
// is strictly newer than the subscription's LastEventAt marker. Anything
// else is a stale replay, even if its event id was never seen before.
func Apply(sub Subscription, ev Event, now time.Time) (Subscription, Outcome) {
	if !ev.OccurredAt.After(sub.LastEventAt) {
		return sub, Outcome{
			Kind: OutcomeDiscardedStale,
			Reason: fmt.Sprintf("event at %s not newer than marker %s",
				ev.OccurredAt.Format(time.RFC3339), sub.LastEventAt.Format(time.RFC3339)),
		}
	}

	if sub.Status.Terminal() {
		return sub, Outcome{
			Kind:   OutcomeDiscardedTerminal,
			Reason: fmt.Sprintf("subscription is %s", sub.Status),
		}
	}

	next, ok := transitions[sub.Status][ev.Type]
	if !ok {
		return sub, Outcome{
			Kind:   OutcomeDiscardedIllegal,
			Reason: fmt.Sprintf("no transition from %s on %s", sub.Status, ev.Type),
		}
	}

	sub.Status = next
	sub.LastEventAt = ev.OccurredAt
	sub.UpdatedAt = now

	if sub.ProcessorSubID == "" && ev.ProcessorSubID != "" {
		sub.ProcessorSubID = ev.ProcessorSubID
	}
	if ev.PeriodStart != nil {
		sub.CurrentPeriodStart = ev.PeriodStart
	}
	if ev.PeriodEnd != nil {
		sub.CurrentPeriodEnd = ev.PeriodEnd
	}

	return sub, Outcome{Kind: OutcomeApplied}
}
