package service

import (
	"context"
	"testing"

	"payprocessor/internal/apperror"
	"payprocessor/internal/model"
	"payprocessor/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockPayoutRequeuer struct {
	mock.Mock
}

func (m *MockPayoutRequeuer) Requeue(ctx context.Context, payoutID string) (*model.PayoutRequest, error) {
	args := m.Called(ctx, payoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PayoutRequest), args.Error(1)
}

func TestPayoutRequestService_Requeue(t *testing.T) {
	requests := new(MockPayoutRequeuer)
	requests.On("Requeue", mock.Anything, "po_1").
		Return(&model.PayoutRequest{PayoutID: "po_1", Status: model.PayoutRequestStatusPending}, nil)
	requests.On("Requeue", mock.Anything, "po_pending").Return(nil, repository.ErrPayoutRequestStatusInvalid)
	requests.On("Requeue", mock.Anything, "po_404").Return(nil, repository.ErrPayoutRequestNotFound)

	svc := NewPayoutRequestService(requests, zap.NewNop())

	req, err := svc.Requeue(context.Background(), "po_1")
	require.NoError(t, err)
	assert.Equal(t, model.PayoutRequestStatusPending, req.Status)

	_, err = svc.Requeue(context.Background(), "po_pending")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "payout_request_failed", apperror.RuleOf(err))

	_, err = svc.Requeue(context.Background(), "po_404")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.Requeue(context.Background(), "")
	assert.Equal(t, "payout_id_required", apperror.RuleOf(err))
	requests.AssertNumberOfCalls(t, "Requeue", 3)
}
