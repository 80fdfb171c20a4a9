package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"payprocessor/internal/apperror"
	"payprocessor/internal/ledger"
	"payprocessor/pkg/money"
)

type MockPayoutSource struct {
	mock.Mock
}

func (m *MockPayoutSource) FetchPayout(ctx context.Context, payoutID, stripeAccountID string) (*PayoutData, error) {
	args := m.Called(ctx, payoutID, stripeAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PayoutData), args.Error(1)
}

var arrival = time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)

func payoutData(amount money.Money) *PayoutData {
	return &PayoutData{
		PayoutID:    "po_123",
		Amount:      amount,
		Currency:    "usd",
		Status:      "paid",
		ArrivalDate: arrival,
		Components: Components{
			Payments:     52000,
			Refunds:      1000,
			GatewayFees:  800,
			PlatformFees: 200,
		},
	}
}

func newTestOrchestrator(t *testing.T, src PayoutSource) *Orchestrator {
	return NewOrchestrator(src, mustThresholds(t, 100, 1000), zap.NewNop())
}

func TestOrchestrator_ProcessPayout_Balanced(t *testing.T) {
	src := new(MockPayoutSource)
	src.On("FetchPayout", mock.Anything, "po_123", "acct_1").Return(payoutData(50000), nil)

	record, postings, err := newTestOrchestrator(t, src).ProcessPayout(context.Background(), "po_123", "cg_1", "acct_1")
	require.NoError(t, err)

	assert.Equal(t, StatusBalanced, record.Status)
	assert.Nil(t, record.Alert)
	assert.Equal(t, money.Money(0), record.Summary.Drift)
	assert.Equal(t, arrival, record.ProcessedAt)
	assert.Equal(t, "acct_1", record.StripeAccountID)

	require.Len(t, postings, 1)
	p := postings[0]
	assert.Equal(t, money.Money(50000), p.Debit.Amount)
	assert.Equal(t, ledger.CampgroundPayable("cg_1"), p.Debit.Account)
	assert.Equal(t, ledger.AccountGatewayClearing, p.Credit.Account)
	assert.Equal(t, ledger.PayoutRef("po_123"), p.Debit.Reference)
	assert.Equal(t, []string{p.ID}, record.PostingIDs)
	assert.True(t, ledger.IsBalanced(postings))

	src.AssertExpectations(t)
}

func TestOrchestrator_ProcessPayout_Drift(t *testing.T) {
	src := new(MockPayoutSource)
	src.On("FetchPayout", mock.Anything, "po_123", "acct_1").Return(payoutData(49500), nil)

	record, postings, err := newTestOrchestrator(t, src).ProcessPayout(context.Background(), "po_123", "cg_1", "acct_1")
	require.NoError(t, err)

	assert.Equal(t, StatusWarning, record.Status)
	require.NotNil(t, record.Alert)
	assert.Equal(t, SeverityWarning, record.Alert.Severity)
	assert.Equal(t, money.Money(-500), record.Alert.Drift)
	require.Len(t, postings, 1)
	assert.Equal(t, money.Money(49500), postings[0].Credit.Amount)
}

func TestOrchestrator_ProcessPayout_Idempotent(t *testing.T) {
	src := new(MockPayoutSource)
	src.On("FetchPayout", mock.Anything, "po_123", "acct_1").Return(payoutData(49500), nil)
	o := newTestOrchestrator(t, src)

	r1, p1, err := o.ProcessPayout(context.Background(), "po_123", "cg_1", "acct_1")
	require.NoError(t, err)
	r2, p2, err := o.ProcessPayout(context.Background(), "po_123", "cg_1", "acct_1")
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, p1, p2)
}

func TestOrchestrator_ProcessPayout_NegativeAndZeroPayouts(t *testing.T) {
	negative := payoutData(-700)
	negative.Components = Components{Payments: 100, Refunds: 800}

	src := new(MockPayoutSource)
	src.On("FetchPayout", mock.Anything, "po_123", "acct_1").Return(negative, nil).Once()

	record, postings, err := newTestOrchestrator(t, src).ProcessPayout(context.Background(), "po_123", "cg_1", "acct_1")
	require.NoError(t, err)
	assert.Equal(t, StatusBalanced, record.Status)
	require.Len(t, postings, 1)
	assert.Equal(t, ledger.AccountGatewayClearing, postings[0].Debit.Account)
	assert.Equal(t, ledger.CampgroundPayable("cg_1"), postings[0].Credit.Account)
	assert.Equal(t, money.Money(700), postings[0].Debit.Amount)

	zero := payoutData(0)
	zero.Components = Components{}
	src.On("FetchPayout", mock.Anything, "po_123", "acct_1").Return(zero, nil).Once()

	record, postings, err = newTestOrchestrator(t, src).ProcessPayout(context.Background(), "po_123", "cg_1", "acct_1")
	require.NoError(t, err)
	assert.Empty(t, postings)
	assert.Empty(t, record.PostingIDs)
}

func TestOrchestrator_ProcessPayout_Errors(t *testing.T) {
	t.Run("missing ids", func(t *testing.T) {
		o := newTestOrchestrator(t, new(MockPayoutSource))
		_, _, err := o.ProcessPayout(context.Background(), "", "cg_1", "acct_1")
		assert.ErrorIs(t, err, apperror.ErrValidation)
		_, _, err = o.ProcessPayout(context.Background(), "po_1", "", "acct_1")
		assert.ErrorIs(t, err, apperror.ErrValidation)
		_, _, err = o.ProcessPayout(context.Background(), "po_1", "cg_1", "")
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("gateway failure is upstream unavailable", func(t *testing.T) {
		src := new(MockPayoutSource)
		cause := errors.New("dial tcp: i/o timeout")
		src.On("FetchPayout", mock.Anything, "po_123", "acct_1").Return(nil, cause)

		_, _, err := newTestOrchestrator(t, src).ProcessPayout(context.Background(), "po_123", "cg_1", "acct_1")
		assert.ErrorIs(t, err, apperror.ErrUpstreamUnavailable)
		assert.ErrorIs(t, err, cause)
		assert.True(t, apperror.Retryable(err))
	})

	t.Run("mismatched payout is an invariant violation", func(t *testing.T) {
		other := payoutData(50000)
		other.PayoutID = "po_other"
		src := new(MockPayoutSource)
		src.On("FetchPayout", mock.Anything, "po_123", "acct_1").Return(other, nil)

		_, _, err := newTestOrchestrator(t, src).ProcessPayout(context.Background(), "po_123", "cg_1", "acct_1")
		assert.ErrorIs(t, err, apperror.ErrInvariantViolation)
	})
}
