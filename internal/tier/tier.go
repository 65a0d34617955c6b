// Package tier owns membership tier definitions: priced access levels a
// creator offers, with an explicit rank ordering used by entitlement checks.
package tier

import (
	"time"

	"github.com/google/uuid"
)

// BillingInterval is the tier's billing frequency.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// Valid reports whether the interval is one of the supported values.
func (i BillingInterval) Valid() bool {
	return i == IntervalMonthly || i == IntervalYearly
}

// Tier is a creator-defined membership level. Rank is the explicit ordinal
// among a creator's tiers; entitlement compares ranks, never prices, because
// creators may define non-monotonic perk tiers.
type Tier struct {
	ID         uuid.UUID
	CreatorID  uuid.UUID
	Name       string
	PriceCents int64 // minor currency units
	Currency   string
	Interval   BillingInterval
	// ProcessorPriceID is the payment processor's price identifier for this
	// tier (e.g. pri_xxx). Checkout sessions reference it directly.
	ProcessorPriceID string
	Perks            []string
	Rank             int
	Active           bool
	SubscriberCap    *int32 // nil means uncapped
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Spec carries the creator-supplied fields for a new tier.
type Spec struct {
	Name             string
	PriceCents       int64
	Currency         string
	Interval         BillingInterval
	ProcessorPriceID string
	Perks            []string
	Rank             int
	SubscriberCap    *int32
}

// Update carries mutable tier fields. Price and interval may only change
// while no subscription references the tier; billing mid-cycle must never
// become ambiguous.
type Update struct {
	Name          *string
	Perks         []string
	PriceCents    *int64
	Interval      *BillingInterval
	SubscriberCap *int32
	ClearCap      bool
}
