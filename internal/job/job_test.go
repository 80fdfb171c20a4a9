package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"payprocessor/internal/apperror"
	"payprocessor/internal/metrics"
	"payprocessor/internal/model"
	"payprocessor/internal/reconciliation"
	"payprocessor/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockOutboxStore struct {
	mock.Mock
}

func (m *MockOutboxStore) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*model.OutboxMessage), args.Error(1)
}

func (m *MockOutboxStore) MarkAsSent(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxStore) IncrementRetryCount(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxStore) MarkAsFailed(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) SendMessage(topic, key, eventType, value string) error {
	return m.Called(topic, key, eventType, value).Error(0)
}

type MockRequestStore struct {
	mock.Mock
}

func (m *MockRequestStore) GetDueRequests(ctx context.Context, now time.Time, limit int) ([]*model.PayoutRequest, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]*model.PayoutRequest), args.Error(1)
}

func (m *MockRequestStore) MarkDone(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRequestStore) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	return m.Called(ctx, id, lastErr).Error(0)
}

func (m *MockRequestStore) Reschedule(ctx context.Context, id int64, nextAttemptAt time.Time, lastErr string) error {
	return m.Called(ctx, id, nextAttemptAt, lastErr).Error(0)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) ProcessPayout(ctx context.Context, req *service.ProcessPayoutRequest) (*service.ProcessPayoutResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ProcessPayoutResult), args.Error(1)
}

func TestOutboxSender_SendsPendingMessages(t *testing.T) {
	store := new(MockOutboxStore)
	store.On("GetPendingMessages", mock.Anything, 100).Return([]*model.OutboxMessage{
		{ID: 1, Topic: "drift", MessageKey: "po_1", EventType: "drift_alert", Payload: `{"payout_id":"po_1"}`},
		{ID: 2, Topic: "events", MessageKey: "evt_1", EventType: "record_payment", Payload: `{}`, RetryCount: 2},
	}, nil)
	store.On("MarkAsSent", mock.Anything, int64(1)).Return(nil)
	store.On("IncrementRetryCount", mock.Anything, int64(2)).Return(nil)
	store.On("MarkAsFailed", mock.Anything, int64(2)).Return(nil)

	pub := new(MockPublisher)
	pub.On("SendMessage", "drift", "po_1", "drift_alert", `{"payout_id":"po_1"}`).Return(nil)
	pub.On("SendMessage", "events", "evt_1", "record_payment", `{}`).Return(errors.New("broker down"))

	sender := NewOutboxSender(store, pub, 3, metrics.NoopRecorder{}, zap.NewNop())
	sender.processPendingMessages(context.Background())

	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestOutboxSender_RetriesBelowLimit(t *testing.T) {
	store := new(MockOutboxStore)
	store.On("GetPendingMessages", mock.Anything, 100).Return([]*model.OutboxMessage{
		{ID: 3, Topic: "events", MessageKey: "evt_3", EventType: "open_dispute", Payload: `{}`},
	}, nil)
	store.On("IncrementRetryCount", mock.Anything, int64(3)).Return(nil)

	pub := new(MockPublisher)
	pub.On("SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("timeout"))

	NewOutboxSender(store, pub, 3, metrics.NoopRecorder{}, zap.NewNop()).processPendingMessages(context.Background())

	store.AssertNotCalled(t, "MarkAsFailed", mock.Anything, mock.Anything)
}

func newRetryJob(store PayoutRequestStore, reconciler PayoutReconciler, now time.Time) *PayoutRetryJob {
	j := NewPayoutRetryJob(store, reconciler, 5, 30*time.Second, zap.NewNop())
	j.now = func() time.Time { return now }
	return j
}

func TestPayoutRetryJob_Outcomes(t *testing.T) {
	now := time.Date(2024, 7, 2, 12, 0, 0, 0, time.UTC)
	due := []*model.PayoutRequest{
		{ID: 1, PayoutID: "po_ok", CampgroundID: "cg_1", StripeAccountID: "acct_1"},
		{ID: 2, PayoutID: "po_flaky", CampgroundID: "cg_1", StripeAccountID: "acct_1", Attempts: 2},
		{ID: 3, PayoutID: "po_bad", CampgroundID: "cg_1", StripeAccountID: "acct_1"},
		{ID: 4, PayoutID: "po_exhausted", CampgroundID: "cg_1", StripeAccountID: "acct_1", Attempts: 4},
	}

	store := new(MockRequestStore)
	store.On("GetDueRequests", mock.Anything, now, 20).Return(due, nil)
	store.On("MarkDone", mock.Anything, int64(1)).Return(nil)
	store.On("Reschedule", mock.Anything, int64(2), now.Add(2*time.Minute), mock.Anything).Return(nil)
	store.On("MarkFailed", mock.Anything, int64(3), mock.Anything).Return(nil)
	store.On("MarkFailed", mock.Anything, int64(4), mock.Anything).Return(nil)

	upstream := apperror.UpstreamUnavailable("fetch_payout", errors.New("503"))
	byPayout := func(id string) interface{} {
		return mock.MatchedBy(func(req *service.ProcessPayoutRequest) bool { return req.PayoutID == id })
	}
	reconciler := new(MockReconciler)
	reconciler.On("ProcessPayout", mock.Anything, byPayout("po_ok")).Return(&service.ProcessPayoutResult{
		Record:          &reconciliation.Record{PayoutID: "po_ok", Status: reconciliation.StatusBalanced},
		PostingsCreated: 1,
	}, nil)
	reconciler.On("ProcessPayout", mock.Anything, byPayout("po_flaky")).Return(nil, upstream)
	reconciler.On("ProcessPayout", mock.Anything, byPayout("po_bad")).
		Return(nil, apperror.Validation("payout_component_range", "overflow"))
	reconciler.On("ProcessPayout", mock.Anything, byPayout("po_exhausted")).Return(nil, upstream)

	newRetryJob(store, reconciler, now).processDueRequests(context.Background())

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "Reschedule", mock.Anything, int64(4), mock.Anything, mock.Anything)
}

func TestPayoutRetryJob_Backoff(t *testing.T) {
	j := newRetryJob(new(MockRequestStore), new(MockReconciler), time.Now())

	assert.Equal(t, 30*time.Second, j.backoff(0))
	assert.Equal(t, time.Minute, j.backoff(1))
	assert.Equal(t, 4*time.Minute, j.backoff(3))
	assert.Equal(t, time.Hour, j.backoff(20))
}
