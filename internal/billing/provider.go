// Package billing abstracts the external payment processor. The core never
// touches payment instruments; it issues hosted checkout sessions, portal
// links, and asks the processor about subscription state when reconciling.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderUnavailable = errors.New("payment processor unavailable")
	ErrNoCheckoutURL       = errors.New("no checkout URL returned from processor")
	ErrNoPortalURL         = errors.New("no portal URL returned from processor")
	ErrRemoteNotFound      = errors.New("processor has no record of this subscription")
)

// Provider is the minimal processor surface the engine depends on.
// Implementations wrap the official SDK and keep provider quirks internal.
type Provider interface {
	// CreateCustomer registers a processor-side customer for a platform user
	// and returns the processor's customer id.
	CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error)

	// CreateCheckoutSession opens a hosted checkout for a price. The
	// subscription id travels in custom data and comes back on webhooks.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// CreatePortalSession returns a pre-authenticated customer portal link,
	// used for plan changes on an existing subscription.
	CreatePortalSession(ctx context.Context, customerID, processorSubID string) (*PortalSession, error)

	// CheckoutStatus reports whether a checkout session was completed on the
	// processor side. The reconciler calls it before expiring an abandoned
	// PENDING subscription, so a delayed webhook is never mistaken for an
	// abandoned checkout.
	CheckoutStatus(ctx context.Context, sessionID string) (CheckoutState, error)

	// SubscriptionState returns the processor's current view of a
	// subscription. ErrRemoteNotFound when the processor has no record.
	SubscriptionState(ctx context.Context, processorSubID string) (RemoteState, error)
}

// CheckoutRequest carries everything needed to open a hosted checkout.
type CheckoutRequest struct {
	PriceID        string    // processor's price id for the tier
	CustomerID     string    // processor's customer id
	SubscriptionID uuid.UUID // our pending subscription id, echoed on webhooks
	SuccessURL     string
	CancelURL      string
}

// CheckoutSession is a hosted, time-bounded payment collection flow.
type CheckoutSession struct {
	URL       string
	SessionID string
	ExpiresAt time.Time
}

// PortalSession is a pre-authenticated customer portal link.
type PortalSession struct {
	URL       string
	ExpiresAt time.Time
}

// CheckoutState is the processor's view of a checkout session.
type CheckoutState string

const (
	CheckoutOpen      CheckoutState = "open"
	CheckoutCompleted CheckoutState = "completed"
	CheckoutAbandoned CheckoutState = "abandoned"
)

// RemoteState is the processor's view of a subscription, normalized.
type RemoteState string

const (
	RemoteActive   RemoteState = "active"
	RemotePastDue  RemoteState = "past_due"
	RemoteCanceled RemoteState = "canceled"
	RemoteUnknown  RemoteState = "unknown"
)
