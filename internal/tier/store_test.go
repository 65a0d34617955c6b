package tier_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/patronkit/patronkit/internal/tier"
)

type TierStoreTestSuite struct {
	suite.Suite
	mock      pgxmock.PgxPoolIface
	store     tier.Store
	creatorID uuid.UUID
	ctx       context.Context
}

func (s *TierStoreTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(s.T(), err)
	s.mock = mock

	s.store = tier.NewStore(mock)
	s.creatorID = uuid.New()
	s.ctx = context.Background()
}

func (s *TierStoreTestSuite) TearDownTest() {
	s.mock.Close()
}

func TestTierStoreTestSuite(t *testing.T) {
	suite.Run(t, new(TierStoreTestSuite))
}

func (s *TierStoreTestSuite) sampleTier() *tier.Tier {
	now := time.Now().UTC()
	return &tier.Tier{
		ID:               uuid.New(),
		CreatorID:        s.creatorID,
		Name:             "Gold",
		PriceCents:       500,
		Currency:         "USD",
		Interval:         tier.IntervalMonthly,
		ProcessorPriceID: "pri_123",
		Perks:            []string{"early access"},
		Rank:             2,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (s *TierStoreTestSuite) TestInsert_Success() {
	t := s.sampleTier()

	s.mock.ExpectExec(`INSERT INTO tiers`).
		WithArgs(t.ID, t.CreatorID, t.Name, t.PriceCents, t.Currency, t.Interval, t.ProcessorPriceID, t.Perks, t.Rank, t.Active, t.SubscriberCap).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(s.T(), s.store.Insert(s.ctx, t))
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *TierStoreTestSuite) TestInsert_DuplicateRank() {
	t := s.sampleTier()

	s.mock.ExpectExec(`INSERT INTO tiers`).
		WithArgs(t.ID, t.CreatorID, t.Name, t.PriceCents, t.Currency, t.Interval, t.ProcessorPriceID, t.Perks, t.Rank, t.Active, t.SubscriberCap).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "tiers_creator_rank_unique"})

	err := s.store.Insert(s.ctx, t)
	assert.ErrorIs(s.T(), err, tier.ErrDuplicateRank)
}

func (s *TierStoreTestSuite) TestGet_Success() {
	t := s.sampleTier()

	rows := pgxmock.NewRows([]string{
		"id", "creator_id", "name", "price_cents", "currency", "billing_interval",
		"processor_price_id", "perks", "rank", "active", "subscriber_cap", "created_at", "updated_at",
	}).AddRow(t.ID, t.CreatorID, t.Name, t.PriceCents, t.Currency, t.Interval,
		t.ProcessorPriceID, t.Perks, t.Rank, t.Active, t.SubscriberCap, t.CreatedAt, t.UpdatedAt)

	s.mock.ExpectQuery(`SELECT (.+) FROM tiers WHERE id = \$1`).
		WithArgs(t.ID).
		WillReturnRows(rows)

	got, err := s.store.Get(s.ctx, t.ID)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), t.ID, got.ID)
	assert.Equal(s.T(), t.Rank, got.Rank)
	assert.Equal(s.T(), t.ProcessorPriceID, got.ProcessorPriceID)
}

func (s *TierStoreTestSuite) TestGet_NotFound() {
	id := uuid.New()

	s.mock.ExpectQuery(`SELECT (.+) FROM tiers WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.store.Get(s.ctx, id)
	assert.ErrorIs(s.T(), err, tier.ErrTierNotFound)
}

func (s *TierStoreTestSuite) TestListByCreator_OrderedByRank() {
	t1 := s.sampleTier()
	t2 := s.sampleTier()
	t2.Rank = 3

	rows := pgxmock.NewRows([]string{
		"id", "creator_id", "name", "price_cents", "currency", "billing_interval",
		"processor_price_id", "perks", "rank", "active", "subscriber_cap", "created_at", "updated_at",
	}).
		AddRow(t1.ID, t1.CreatorID, t1.Name, t1.PriceCents, t1.Currency, t1.Interval,
			t1.ProcessorPriceID, t1.Perks, t1.Rank, t1.Active, t1.SubscriberCap, t1.CreatedAt, t1.UpdatedAt).
		AddRow(t2.ID, t2.CreatorID, t2.Name, t2.PriceCents, t2.Currency, t2.Interval,
			t2.ProcessorPriceID, t2.Perks, t2.Rank, t2.Active, t2.SubscriberCap, t2.CreatedAt, t2.UpdatedAt)

	s.mock.ExpectQuery(`SELECT (.+) FROM tiers WHERE creator_id = \$1 ORDER BY rank`).
		WithArgs(s.creatorID).
		WillReturnRows(rows)

	tiers, err := s.store.ListByCreator(s.ctx, s.creatorID)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), tiers, 2)
	assert.Equal(s.T(), 2, tiers[0].Rank)
	assert.Equal(s.T(), 3, tiers[1].Rank)
}

func (s *TierStoreTestSuite) TestUpdate_NotFound() {
	t := s.sampleTier()

	s.mock.ExpectExec(`UPDATE tiers`).
		WithArgs(t.Name, t.PriceCents, t.Currency, t.Interval, t.Perks, t.SubscriberCap, t.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(s.T(), s.store.Update(s.ctx, t), tier.ErrTierNotFound)
}

func (s *TierStoreTestSuite) TestSetActive() {
	id := uuid.New()

	s.mock.ExpectExec(`UPDATE tiers SET active = \$1`).
		WithArgs(false, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(s.T(), s.store.SetActive(s.ctx, id, false))
}

func (s *TierStoreTestSuite) TestCountNonTerminal() {
	id := uuid.New()

	s.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM subscriptions`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.store.CountNonTerminal(s.ctx, id)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 7, n)
}
