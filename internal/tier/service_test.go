package tier_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patronkit/patronkit/internal/tier"
)

type fakeStore struct {
	tiers       map[uuid.UUID]tier.Tier
	insertErr   error
	referenced  bool
	nonTerminal int
	getCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tiers: make(map[uuid.UUID]tier.Tier)}
}

func (f *fakeStore) Insert(_ context.Context, t *tier.Tier) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.tiers[t.ID] = *t
	return nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*tier.Tier, error) {
	f.getCalls++
	t, ok := f.tiers[id]
	if !ok {
		return nil, tier.ErrTierNotFound
	}
	cp := t
	return &cp, nil
}

func (f *fakeStore) ListByCreator(_ context.Context, creatorID uuid.UUID) ([]tier.Tier, error) {
	var out []tier.Tier
	for _, t := range f.tiers {
		if t.CreatorID == creatorID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) Update(_ context.Context, t *tier.Tier) error {
	if _, ok := f.tiers[t.ID]; !ok {
		return tier.ErrTierNotFound
	}
	f.tiers[t.ID] = *t
	return nil
}

func (f *fakeStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	t, ok := f.tiers[id]
	if !ok {
		return tier.ErrTierNotFound
	}
	t.Active = active
	f.tiers[id] = t
	return nil
}

func (f *fakeStore) HasSubscriptions(_ context.Context, _ uuid.UUID) (bool, error) {
	return f.referenced, nil
}

func (f *fakeStore) CountNonTerminal(_ context.Context, _ uuid.UUID) (int, error) {
	return f.nonTerminal, nil
}

type fakeCache struct {
	entries     map[uuid.UUID]*tier.Tier
	invalidated []uuid.UUID
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[uuid.UUID]*tier.Tier)}
}

func (f *fakeCache) Get(_ context.Context, id uuid.UUID) (*tier.Tier, bool) {
	t, ok := f.entries[id]
	return t, ok
}

func (f *fakeCache) Set(_ context.Context, t *tier.Tier) {
	f.entries[t.ID] = t
}

func (f *fakeCache) Invalidate(_ context.Context, id uuid.UUID) {
	delete(f.entries, id)
	f.invalidated = append(f.invalidated, id)
}

func validSpec() tier.Spec {
	return tier.Spec{
		Name:             "Gold",
		PriceCents:       500,
		Currency:         "USD",
		Interval:         tier.IntervalMonthly,
		ProcessorPriceID: "pri_123",
		Perks:            []string{"early access"},
		Rank:             2,
	}
}

func TestService_Create(t *testing.T) {
	t.Parallel()

	t.Run("persists an active tier", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		svc := tier.NewService(store, nil)

		creatorID := uuid.New()
		created, err := svc.Create(context.Background(), creatorID, validSpec())
		require.NoError(t, err)

		assert.True(t, created.Active)
		assert.Equal(t, creatorID, created.CreatorID)
		assert.Equal(t, 2, created.Rank)
		assert.Contains(t, store.tiers, created.ID)
	})

	t.Run("propagates duplicate rank", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.insertErr = tier.ErrDuplicateRank
		svc := tier.NewService(store, nil)

		_, err := svc.Create(context.Background(), uuid.New(), validSpec())
		assert.ErrorIs(t, err, tier.ErrDuplicateRank)
	})

	t.Run("rejects invalid specs", func(t *testing.T) {
		t.Parallel()

		zeroCap := int32(0)
		mutations := map[string]func(*tier.Spec){
			"empty name":       func(s *tier.Spec) { s.Name = "" },
			"zero price":       func(s *tier.Spec) { s.PriceCents = 0 },
			"negative price":   func(s *tier.Spec) { s.PriceCents = -100 },
			"empty currency":   func(s *tier.Spec) { s.Currency = "" },
			"bad interval":     func(s *tier.Spec) { s.Interval = "weekly" },
			"missing price id": func(s *tier.Spec) { s.ProcessorPriceID = "" },
			"negative rank":    func(s *tier.Spec) { s.Rank = -1 },
			"zero cap":         func(s *tier.Spec) { s.SubscriberCap = &zeroCap },
		}

		for name, mutate := range mutations {
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				svc := tier.NewService(newFakeStore(), nil)
				spec := validSpec()
				mutate(&spec)

				_, err := svc.Create(context.Background(), uuid.New(), spec)
				assert.ErrorIs(t, err, tier.ErrInvalidSpec)
			})
		}
	})
}

func TestService_Get_CacheReadThrough(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	cache := newFakeCache()
	svc := tier.NewService(store, nil, tier.WithCache(cache))

	created, err := svc.Create(context.Background(), uuid.New(), validSpec())
	require.NoError(t, err)

	// First read misses the cache and populates it.
	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, 1, store.getCalls)

	// Second read is served from cache.
	_, err = svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, store.getCalls)
}

func TestService_Update(t *testing.T) {
	t.Parallel()

	t.Run("price change rejected once subscribed", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.referenced = true
		svc := tier.NewService(store, nil)

		created, err := svc.Create(context.Background(), uuid.New(), validSpec())
		require.NoError(t, err)

		newPrice := int64(900)
		_, err = svc.Update(context.Background(), created.ID, tier.Update{PriceCents: &newPrice})
		assert.ErrorIs(t, err, tier.ErrTierImmutable)
	})

	t.Run("price change allowed before any subscription", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		cache := newFakeCache()
		svc := tier.NewService(store, nil, tier.WithCache(cache))

		created, err := svc.Create(context.Background(), uuid.New(), validSpec())
		require.NoError(t, err)

		newPrice := int64(900)
		updated, err := svc.Update(context.Background(), created.ID, tier.Update{PriceCents: &newPrice})
		require.NoError(t, err)

		assert.Equal(t, int64(900), updated.PriceCents)
		assert.Contains(t, cache.invalidated, created.ID)
	})

	t.Run("perks and name stay mutable while subscribed", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.referenced = true
		svc := tier.NewService(store, nil)

		created, err := svc.Create(context.Background(), uuid.New(), validSpec())
		require.NoError(t, err)

		name := "Gold Plus"
		updated, err := svc.Update(context.Background(), created.ID, tier.Update{
			Name:  &name,
			Perks: []string{"early access", "monthly q&a"},
		})
		require.NoError(t, err)

		assert.Equal(t, "Gold Plus", updated.Name)
		assert.Len(t, updated.Perks, 2)
	})

	t.Run("clearing the cap", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		svc := tier.NewService(store, nil)

		spec := validSpec()
		capacity := int32(50)
		spec.SubscriberCap = &capacity
		created, err := svc.Create(context.Background(), uuid.New(), spec)
		require.NoError(t, err)

		updated, err := svc.Update(context.Background(), created.ID, tier.Update{ClearCap: true})
		require.NoError(t, err)
		assert.Nil(t, updated.SubscriberCap)
	})

	t.Run("unknown tier", func(t *testing.T) {
		t.Parallel()

		svc := tier.NewService(newFakeStore(), nil)
		name := "x"
		_, err := svc.Update(context.Background(), uuid.New(), tier.Update{Name: &name})
		assert.ErrorIs(t, err, tier.ErrTierNotFound)
	})
}

func TestService_Deactivate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	cache := newFakeCache()
	svc := tier.NewService(store, nil, tier.WithCache(cache))

	created, err := svc.Create(context.Background(), uuid.New(), validSpec())
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), created.ID))
	assert.False(t, store.tiers[created.ID].Active)
	assert.Contains(t, cache.invalidated, created.ID)
}

func TestService_RemainingCapacity(t *testing.T) {
	t.Parallel()

	t.Run("uncapped", func(t *testing.T) {
		t.Parallel()

		svc := tier.NewService(newFakeStore(), nil)
		n, err := svc.RemainingCapacity(context.Background(), &tier.Tier{ID: uuid.New()})
		require.NoError(t, err)
		assert.Equal(t, -1, n)
	})

	t.Run("capped", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.nonTerminal = 7
		svc := tier.NewService(store, nil)

		capacity := int32(10)
		n, err := svc.RemainingCapacity(context.Background(), &tier.Tier{ID: uuid.New(), SubscriberCap: &capacity})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("over cap clamps to zero", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.nonTerminal = 12
		svc := tier.NewService(store, nil)

		capacity := int32(10)
		n, err := svc.RemainingCapacity(context.Background(), &tier.Tier{ID: uuid.New(), SubscriberCap: &capacity})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}
