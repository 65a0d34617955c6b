// Package checkout issues hosted checkout sessions for (subscriber, tier)
// pairs and records the PENDING subscription that a confirming webhook later
// activates.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/patronkit/patronkit/internal/billing"
	"github.com/patronkit/patronkit/internal/subscription"
	"github.com/patronkit/patronkit/internal/tier"
)

var (
	// ErrTierCapReached is the advisory pre-check failure; the authoritative
	// check happens at webhook confirmation time.
	ErrTierCapReached = errors.New("tier subscriber cap reached")
)

// Config carries the redirect targets handed to the processor.
type Config struct {
	SuccessURL string `env:"CHECKOUT_SUCCESS_URL,required"`
	CancelURL  string `env:"CHECKOUT_CANCEL_URL,required"`
}

// RedirectKind distinguishes a fresh checkout from a plan-change portal.
type RedirectKind string

const (
	RedirectCheckout RedirectKind = "checkout"
	RedirectPortal   RedirectKind = "portal"
)

// Redirect is what the frontend sends the browser to.
type Redirect struct {
	URL       string
	Kind      RedirectKind
	ExpiresAt time.Time
}

// TierRegistry is the slice of the tier service checkout needs.
type TierRegistry interface {
	Get(ctx context.Context, id uuid.UUID) (*tier.Tier, error)
	RemainingCapacity(ctx context.Context, t *tier.Tier) (int, error)
}

// CustomerResolver resolves processor customer ids, creating them lazily.
type CustomerResolver interface {
	EnsureCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error)
}

// Service creates checkout sessions and plan-change portal redirects.
type Service struct {
	cfg      Config
	tiers    TierRegistry
	customer CustomerResolver
	subs     subscription.Store
	provider billing.Provider
	log      *slog.Logger
}

// NewService wires the checkout service. Panics on nil dependencies.
func NewService(cfg Config, tiers TierRegistry, customer CustomerResolver, subs subscription.Store, provider billing.Provider, log *slog.Logger) *Service {
	if tiers == nil || customer == nil || subs == nil || provider == nil {
		panic("checkout: all dependencies are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, tiers: tiers, customer: customer, subs: subs, provider: provider, log: log}
}

// Create issues a checkout redirect for a subscriber and tier.
//
// Preconditions: the tier is active, the advisory cap check passes, and the
// subscriber has no non-terminal subscription to the tier's creator. An
// existing subscription to a different tier of the same creator turns the
// call into a plan change, answered with a billing-portal redirect instead
// of a new checkout.
//
// The PENDING row is inserted only after the processor session exists, so a
// processor failure leaves no partial state; an abandoned checkout leaves a
// PENDING row the reconciler sweeps after its TTL.
func (s *Service) Create(ctx context.Context, subscriberID, tierID uuid.UUID, email string) (*Redirect, error) {
	t, err := s.tiers.Get(ctx, tierID)
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, tier.ErrTierInactive
	}

	existing, err := s.subs.FindNonTerminal(ctx, subscriberID, t.CreatorID)
	switch {
	case err == nil:
		if existing.TierID == tierID {
			return nil, subscription.ErrAlreadySubscribed
		}
		return s.planChange(ctx, subscriberID, email, existing)
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		// No standing subscription; proceed with a fresh checkout.
	default:
		return nil, err
	}

	remaining, err := s.tiers.RemainingCapacity(ctx, t)
	if err != nil {
		return nil, err
	}
	if remaining == 0 {
		return nil, ErrTierCapReached
	}

	customerID, err := s.customer.EnsureCustomer(ctx, subscriberID, email)
	if err != nil {
		return nil, err
	}

	subID := uuid.New()
	session, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		PriceID:        t.ProcessorPriceID,
		CustomerID:     customerID,
		SubscriptionID: subID,
		SuccessURL:     s.cfg.SuccessURL,
		CancelURL:      s.cfg.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	sub := &subscription.Subscription{
		ID:                subID,
		SubscriberID:      subscriberID,
		CreatorID:         t.CreatorID,
		TierID:            tierID,
		CheckoutSessionID: session.SessionID,
		Status:            subscription.StatusPending,
	}
	if err := s.subs.Insert(ctx, sub); err != nil {
		// A concurrent checkout won the partial unique index; the processor
		// session we just opened will simply go unused and expire.
		return nil, err
	}

	s.log.InfoContext(ctx, "checkout session issued",
		"subscription_id", subID, "subscriber_id", subscriberID,
		"tier_id", tierID, "session_id", session.SessionID)

	return &Redirect{URL: session.URL, Kind: RedirectCheckout, ExpiresAt: session.ExpiresAt}, nil
}

// planChange answers a checkout request against a creator the subscriber
// already pays with a processor portal link. Upgrades and downgrades mutate
// the existing subscription through the processor's own flow and arrive
// back as webhook events; no second row is ever created.
func (s *Service) planChange(ctx context.Context, subscriberID uuid.UUID, email string, existing *subscription.Subscription) (*Redirect, error) {
	if existing.ProcessorSubID == "" {
		// Still pending confirmation; a plan change has nothing to act on.
		return nil, fmt.Errorf("%w: subscription %s is awaiting confirmation",
			subscription.ErrAlreadySubscribed, existing.ID)
	}

	customerID, err := s.customer.EnsureCustomer(ctx, subscriberID, email)
	if err != nil {
		return nil, err
	}

	portal, err := s.provider.CreatePortalSession(ctx, customerID, existing.ProcessorSubID)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "plan change redirected to portal",
		"subscription_id", existing.ID, "subscriber_id", subscriberID)

	return &Redirect{URL: portal.URL, Kind: RedirectPortal, ExpiresAt: portal.ExpiresAt}, nil
}
