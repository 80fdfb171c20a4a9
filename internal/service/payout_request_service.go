package service

import (
	"context"
	"errors"

	"payprocessor/internal/apperror"
	"payprocessor/internal/model"
	"payprocessor/internal/repository"

	"go.uber.org/zap"
)

// PayoutRequeuer 由 repository.PayoutRequestRepository 实现
type PayoutRequeuer interface {
	Requeue(ctx context.Context, payoutID string) (*model.PayoutRequest, error)
}

// PayoutRequestService 人工干预对账队列
type PayoutRequestService struct {
	requests PayoutRequeuer
	logger   *zap.Logger
}

func NewPayoutRequestService(requests PayoutRequeuer, logger *zap.Logger) *PayoutRequestService {
	return &PayoutRequestService{requests: requests, logger: logger}
}

// Requeue 重试次数耗尽（FAILED）的 payout 重新入队，由 PayoutRetryJob 再次处理
func (s *PayoutRequestService) Requeue(ctx context.Context, payoutID string) (*model.PayoutRequest, error) {
	if payoutID == "" {
		return nil, apperror.Validation("payout_id_required", "payout id is required")
	}

	req, err := s.requests.Requeue(ctx, payoutID)
	switch {
	case errors.Is(err, repository.ErrPayoutRequestNotFound):
		return nil, apperror.NotFound("payout_request_exists", "payout %s was never queued", payoutID)
	case errors.Is(err, repository.ErrPayoutRequestStatusInvalid):
		return nil, apperror.Validation("payout_request_failed", "payout %s is not in FAILED state", payoutID)
	case err != nil:
		return nil, err
	}

	s.logger.Info("payout 重新入队", zap.String("payout_id", payoutID))
	return req, nil
}
