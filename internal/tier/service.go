package tier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service implements the tier registry operations exposed to the creator
// dashboard and consumed by checkout and entitlement.
type Service struct {
	store Store
	cache Cache
	log   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables the read-through tier cache.
func WithCache(c Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// NewService creates the tier registry. Panics on a nil store to fail fast
// during wiring.
func NewService(store Store, log *slog.Logger, opts ...Option) *Service {
	if store == nil {
		panic("tier: Store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{store: store, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the spec and persists a new active tier.
func (s *Service) Create(ctx context.Context, creatorID uuid.UUID, spec Spec) (*Tier, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &Tier{
		ID:               uuid.New(),
		CreatorID:        creatorID,
		Name:             spec.Name,
		PriceCents:       spec.PriceCents,
		Currency:         spec.Currency,
		Interval:         spec.Interval,
		ProcessorPriceID: spec.ProcessorPriceID,
		Perks:            spec.Perks,
		Rank:             spec.Rank,
		Active:           true,
		SubscriberCap:    spec.SubscriberCap,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.Insert(ctx, t); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "tier created",
		"tier_id", t.ID, "creator_id", creatorID, "rank", t.Rank)
	return t, nil
}

// Get returns a tier by id, consulting the cache first.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Tier, error) {
	if s.cache != nil {
		if t, ok := s.cache.Get(ctx, id); ok {
			return t, nil
		}
	}

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, t)
	}
	return t, nil
}

// ListByCreator returns all tiers of a creator ordered by rank.
func (s *Service) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]Tier, error) {
	return s.store.ListByCreator(ctx, creatorID)
}

// Update applies mutable fields. Price and interval changes are rejected
// once any subscription references the tier; a price change requires a new
// tier.
func (s *Service) Update(ctx context.Context, id uuid.UUID, upd Update) (*Tier, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.PriceCents != nil || upd.Interval != nil {
		referenced, err := s.store.HasSubscriptions(ctx, id)
		if err != nil {
			return nil, err
		}
		if referenced {
			return nil, ErrTierImmutable
		}
	}

	if upd.Name != nil {
		if *upd.Name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidSpec)
		}
		t.Name = *upd.Name
	}
	if upd.Perks != nil {
		t.Perks = upd.Perks
	}
	if upd.PriceCents != nil {
		if *upd.PriceCents <= 0 {
			return nil, fmt.Errorf("%w: price must be positive", ErrInvalidSpec)
		}
		t.PriceCents = *upd.PriceCents
	}
	if upd.Interval != nil {
		if !upd.Interval.Valid() {
			return nil, fmt.Errorf("%w: unknown billing interval %q", ErrInvalidSpec, *upd.Interval)
		}
		t.Interval = *upd.Interval
	}
	if upd.ClearCap {
		t.SubscriberCap = nil
	} else if upd.SubscriberCap != nil {
		if *upd.SubscriberCap < 1 {
			return nil, fmt.Errorf("%w: subscriber cap must be at least 1", ErrInvalidSpec)
		}
		t.SubscriberCap = upd.SubscriberCap
	}

	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return t, nil
}

// Deactivate soft-disables a tier. Existing subscriptions ride out their
// period; only new checkouts are blocked.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.store.SetActive(ctx, id, false); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	s.log.InfoContext(ctx, "tier deactivated", "tier_id", id)
	return nil
}

// RemainingCapacity reports how many new subscriptions the tier can still
// take, or -1 for uncapped tiers. Advisory: the authoritative count happens
// under the tier row lock at confirmation time.
func (s *Service) RemainingCapacity(ctx context.Context, t *Tier) (int, error) {
	if t.SubscriberCap == nil {
		return -1, nil
	}
	n, err := s.store.CountNonTerminal(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	remaining := int(*t.SubscriberCap) - n
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func validateSpec(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	if spec.PriceCents <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidSpec)
	}
	if spec.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidSpec)
	}
	if !spec.Interval.Valid() {
		return fmt.Errorf("%w: unknown billing interval %q", ErrInvalidSpec, spec.Interval)
	}
	if spec.ProcessorPriceID == "" {
		return fmt.Errorf("%w: processor price id is required", ErrInvalidSpec)
	}
	if spec.Rank < 0 {
		return fmt.Errorf("%w: rank cannot be negative", ErrInvalidSpec)
	}
	if spec.SubscriberCap != nil && *spec.SubscriberCap < 1 {
		return fmt.Errorf("%w: subscriber cap must be at least 1", ErrInvalidSpec)
	}
	return nil
}
