package entitlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patronkit/patronkit/internal/entitlement"
)

type fakeStore struct {
	content  map[uuid.UUID]*entitlement.GatedContent
	ranks    map[uuid.UUID]int
	rank     int
	hasSub   bool
	storeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		content: make(map[uuid.UUID]*entitlement.GatedContent),
		ranks:   make(map[uuid.UUID]int),
	}
}

func (f *fakeStore) GetContent(_ context.Context, contentID uuid.UUID) (*entitlement.GatedContent, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	c, ok := f.content[contentID]
	if !ok {
		return nil, entitlement.ErrContentNotFound
	}
	return c, nil
}

func (f *fakeStore) HighestAccessRank(_ context.Context, _, _ uuid.UUID) (int, bool, error) {
	return f.rank, f.hasSub, nil
}

func (f *fakeStore) TierRank(_ context.Context, tierID uuid.UUID) (int, error) {
	return f.ranks[tierID], nil
}

func addContent(store *fakeStore, minRank *int) uuid.UUID {
	contentID := uuid.New()
	c := &entitlement.GatedContent{ID: contentID, CreatorID: uuid.New()}
	if minRank != nil {
		tierID := uuid.New()
		store.ranks[tierID] = *minRank
		c.MinTierID = &tierID
	}
	store.content[contentID] = c
	return contentID
}

func TestHasAccess_UngatedContent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	contentID := addContent(store, nil)
	eval := entitlement.NewEvaluator(store, nil)

	ok, err := eval.HasAccess(context.Background(), uuid.New(), contentID)
	require.NoError(t, err)
	assert.True(t, ok, "content without a minimum tier is open to everyone")
}

func TestHasAccess_RankComparison(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		required int
		have     int
		hasSub   bool
		want     bool
	}{
		{"exact tier grants access", 2, 2, true, true},
		{"higher tier grants access", 2, 3, true, true},
		{"lower tier denies access", 2, 1, true, false},
		{"no subscription denies access", 1, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			store.rank = tt.have
			store.hasSub = tt.hasSub
			contentID := addContent(store, &tt.required)
			eval := entitlement.NewEvaluator(store, nil)

			ok, err := eval.HasAccess(context.Background(), uuid.New(), contentID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestHasAccess_UnknownContent(t *testing.T) {
	t.Parallel()

	eval := entitlement.NewEvaluator(newFakeStore(), nil)

	_, err := eval.HasAccess(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, entitlement.ErrContentNotFound)
}

func TestHasAccess_FailsClosed(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.storeErr = errors.New("connection reset")
	eval := entitlement.NewEvaluator(store, nil)

	ok, err := eval.HasAccess(context.Background(), uuid.New(), uuid.New())
	assert.Error(t, err)
	assert.False(t, ok, "lookup failures must deny, never grant")
}
