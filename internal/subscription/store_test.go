package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/patronkit/patronkit/internal/subscription"
)

type SubscriptionStoreTestSuite struct {
	suite.Suite
	mock  pgxmock.PgxPoolIface
	store subscription.Store
	ctx   context.Context
}

func (s *SubscriptionStoreTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(s.T(), err)
	s.mock = mock

	s.store = subscription.NewStore(mock)
	s.ctx = context.Background()
}

func (s *SubscriptionStoreTestSuite) TearDownTest() {
	s.mock.Close()
}

func TestSubscriptionStoreTestSuite(t *testing.T) {
	suite.Run(t, new(SubscriptionStoreTestSuite))
}

func (s *SubscriptionStoreTestSuite) pendingSub() *subscription.Subscription {
	return &subscription.Subscription{
		ID:                uuid.New(),
		SubscriberID:      uuid.New(),
		CreatorID:         uuid.New(),
		TierID:            uuid.New(),
		CheckoutSessionID: "txn_1",
		Status:            subscription.StatusPending,
	}
}

func (s *SubscriptionStoreTestSuite) TestInsert_Success() {
	sub := s.pendingSub()

	s.mock.ExpectExec(`INSERT INTO subscriptions`).
		WithArgs(sub.ID, sub.SubscriberID, sub.CreatorID, sub.TierID, sub.ProcessorSubID,
			sub.CheckoutSessionID, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.LastEventAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(s.T(), s.store.Insert(s.ctx, sub))
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *SubscriptionStoreTestSuite) TestInsert_SecondLiveSubscriptionRejected() {
	sub := s.pendingSub()

	s.mock.ExpectExec(`INSERT INTO subscriptions`).
		WithArgs(sub.ID, sub.SubscriberID, sub.CreatorID, sub.TierID, sub.ProcessorSubID,
			sub.CheckoutSessionID, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.LastEventAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "subscriptions_live_unique"})

	err := s.store.Insert(s.ctx, sub)
	assert.ErrorIs(s.T(), err, subscription.ErrAlreadySubscribed)
}

func subscriptionColumns() []string {
	return []string{
		"id", "subscriber_id", "creator_id", "tier_id", "processor_subscription_id",
		"checkout_session_id", "status", "current_period_start", "current_period_end",
		"last_event_at", "created_at", "updated_at",
	}
}

func (s *SubscriptionStoreTestSuite) TestFindNonTerminal_Success() {
	sub := s.pendingSub()
	now := time.Now().UTC()

	rows := pgxmock.NewRows(subscriptionColumns()).
		AddRow(sub.ID, sub.SubscriberID, sub.CreatorID, sub.TierID, (*string)(nil),
			sub.CheckoutSessionID, sub.Status, (*time.Time)(nil), (*time.Time)(nil), now, now, now)

	s.mock.ExpectQuery(`SELECT (.+) FROM subscriptions`).
		WithArgs(sub.SubscriberID, sub.CreatorID).
		WillReturnRows(rows)

	got, err := s.store.FindNonTerminal(s.ctx, sub.SubscriberID, sub.CreatorID)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), sub.ID, got.ID)
	assert.Empty(s.T(), got.ProcessorSubID, "a NULL processor id scans as the empty string")
}

func (s *SubscriptionStoreTestSuite) TestFindNonTerminal_NotFound() {
	s.mock.ExpectQuery(`SELECT (.+) FROM subscriptions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(subscriptionColumns()))

	_, err := s.store.FindNonTerminal(s.ctx, uuid.New(), uuid.New())
	assert.ErrorIs(s.T(), err, subscription.ErrSubscriptionNotFound)
}

func (s *SubscriptionStoreTestSuite) TestExpireIfStillPending() {
	id := uuid.New()

	s.mock.ExpectExec(`UPDATE subscriptions SET status = 'expired'`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.store.ExpireIfStillPending(s.ctx, id)
	assert.NoError(s.T(), err)
	assert.True(s.T(), ok)
}

func (s *SubscriptionStoreTestSuite) TestExpireIfStillPending_LostRace() {
	id := uuid.New()

	s.mock.ExpectExec(`UPDATE subscriptions SET status = 'expired'`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.store.ExpireIfStillPending(s.ctx, id)
	assert.NoError(s.T(), err)
	assert.False(s.T(), ok, "a row activated by a webhook must not be expired")
}

func (s *SubscriptionStoreTestSuite) TestExpireLapsedActive() {
	now := time.Now().UTC()

	s.mock.ExpectExec(`UPDATE subscriptions SET status = 'expired'`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	n, err := s.store.ExpireLapsedActive(s.ctx, now)
	assert.NoError(s.T(), err)
	assert.EqualValues(s.T(), 4, n)
}

func (s *SubscriptionStoreTestSuite) TestListPastDueLapsedBefore() {
	sub := s.pendingSub()
	sub.Status = subscription.StatusPastDue
	now := time.Now().UTC()
	cutoff := now.Add(-14 * 24 * time.Hour)

	rows := pgxmock.NewRows(subscriptionColumns()).
		AddRow(sub.ID, sub.SubscriberID, sub.CreatorID, sub.TierID, ptr("sub_remote_1"),
			sub.CheckoutSessionID, sub.Status, (*time.Time)(nil), (*time.Time)(nil), now, now, now)

	s.mock.ExpectQuery(`SELECT (.+) FROM subscriptions`).
		WithArgs(cutoff).
		WillReturnRows(rows)

	subs, err := s.store.ListPastDueLapsedBefore(s.ctx, cutoff)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), subs, 1)
	assert.Equal(s.T(), "sub_remote_1", subs[0].ProcessorSubID)
}

func (s *SubscriptionStoreTestSuite) TestCancelIfStillPastDue() {
	id := uuid.New()

	s.mock.ExpectExec(`UPDATE subscriptions SET status = 'canceled'`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.store.CancelIfStillPastDue(s.ctx, id)
	assert.NoError(s.T(), err)
	assert.True(s.T(), ok)
}

func (s *SubscriptionStoreTestSuite) TestCancelIfStillPastDue_LostRace() {
	id := uuid.New()

	s.mock.ExpectExec(`UPDATE subscriptions SET status = 'canceled'`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.store.CancelIfStillPastDue(s.ctx, id)
	assert.NoError(s.T(), err)
	assert.False(s.T(), ok, "a row recovered by a renewal webhook must not be canceled")
}

func ptr[T any](v T) *T { return &v }
