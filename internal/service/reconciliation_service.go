package service

import (
	"context"

	"payprocessor/internal/apperror"
	"payprocessor/internal/ledger"
	"payprocessor/internal/metrics"
	"payprocessor/internal/reconciliation"

	"go.uber.org/zap"
)

// ReconciliationStore 对账结果持久化
type ReconciliationStore interface {
	// GetRecord 不存在时返回 nil, nil
	GetRecord(ctx context.Context, payoutID string) (*reconciliation.Record, error)
	SaveRecord(ctx context.Context, record *reconciliation.Record, postings []ledger.Posting) (*reconciliation.Record, int, error)
	ListRecords(ctx context.Context, campgroundID string, page, pageSize int) ([]*reconciliation.Record, int64, error)
}

// PayoutLocker 按 payout 加锁，返回释放函数
type PayoutLocker interface {
	Acquire(ctx context.Context, payoutID string) (func(), error)
}

// PayoutProcessor 由 reconciliation.Orchestrator 实现
type PayoutProcessor interface {
	ProcessPayout(ctx context.Context, payoutID, campgroundID, stripeAccountID string) (*reconciliation.Record, []ledger.Posting, error)
	Thresholds() reconciliation.Thresholds
}

type ReconciliationService struct {
	processor PayoutProcessor
	store     ReconciliationStore
	locker    PayoutLocker
	recorder  metrics.Recorder
	logger    *zap.Logger
}

func NewReconciliationService(processor PayoutProcessor, store ReconciliationStore, locker PayoutLocker, recorder metrics.Recorder, logger *zap.Logger) *ReconciliationService {
	return &ReconciliationService{
		processor: processor,
		store:     store,
		locker:    locker,
		recorder:  recorder,
		logger:    logger,
	}
}

type ProcessPayoutRequest struct {
	PayoutID        string `json:"payout_id" binding:"required"`
	CampgroundID    string `json:"campground_id" binding:"required"`
	StripeAccountID string `json:"stripe_account_id" binding:"required"`
}

type ProcessPayoutResult struct {
	Record          *reconciliation.Record `json:"record"`
	PostingsCreated int                    `json:"postings_created"`
}

// ProcessPayout 对一个 payout 做对账并落库，可重复调用
// 已对账过的 payout 直接返回已有记录，postings_created 为 0
func (s *ReconciliationService) ProcessPayout(ctx context.Context, req *ProcessPayoutRequest) (*ProcessPayoutResult, error) {
	if req.PayoutID == "" {
		return nil, apperror.Validation("payout_id_required", "payout id is required")
	}

	// 幂等校验
	if existing, err := s.store.GetRecord(ctx, req.PayoutID); err != nil {
		return nil, err
	} else if existing != nil {
		return &ProcessPayoutResult{Record: existing}, nil
	}

	release, err := s.locker.Acquire(ctx, req.PayoutID)
	if err != nil {
		return nil, apperror.LockUnavailable(err)
	}
	defer release()

	// 获取锁后再次检查幂等
	if existing, err := s.store.GetRecord(ctx, req.PayoutID); err != nil {
		return nil, err
	} else if existing != nil {
		return &ProcessPayoutResult{Record: existing}, nil
	}

	record, postings, err := s.processor.ProcessPayout(ctx, req.PayoutID, req.CampgroundID, req.StripeAccountID)
	if err != nil {
		return nil, err
	}

	stored, created, err := s.store.SaveRecord(ctx, record, postings)
	if err != nil {
		return nil, err
	}
	if stored != record {
		// 写入时唯一键冲突，说明其他实例已经完成对账
		s.logger.Info("payout 已被其他实例对账", zap.String("payout_id", req.PayoutID))
		return &ProcessPayoutResult{Record: stored}, nil
	}

	s.recorder.RecordPayoutProcessed(string(stored.Status))
	if stored.Alert != nil {
		s.recorder.RecordDriftAlert(string(stored.Alert.Severity))
	}

	return &ProcessPayoutResult{Record: stored, PostingsCreated: created}, nil
}

type ComputeSummaryResult struct {
	Summary     reconciliation.Summary     `json:"summary"`
	DriftStatus reconciliation.DriftStatus `json:"drift_status"`
	Alert       *reconciliation.DriftAlert `json:"alert,omitempty"`
	Thresholds  reconciliation.Thresholds  `json:"thresholds"`
}

// ComputeSummary 纯计算，不访问网关也不落库
func (s *ReconciliationService) ComputeSummary(in reconciliation.SummaryInput) (*ComputeSummaryResult, error) {
	summary, err := reconciliation.Summarize(in)
	if err != nil {
		return nil, err
	}
	th := s.processor.Thresholds()
	return &ComputeSummaryResult{
		Summary:     summary,
		DriftStatus: reconciliation.Classify(summary.Drift, th),
		Alert:       reconciliation.ClassifyDrift(summary, th),
		Thresholds:  th,
	}, nil
}

func (s *ReconciliationService) GetRecord(ctx context.Context, payoutID string) (*reconciliation.Record, error) {
	record, err := s.store.GetRecord(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperror.NotFound("reconciliation_record_exists", "payout %s has not been reconciled", payoutID)
	}
	return record, nil
}

func (s *ReconciliationService) ListRecords(ctx context.Context, campgroundID string, page, pageSize int) ([]*reconciliation.Record, int64, error) {
	if campgroundID == "" {
		return nil, 0, apperror.Validation("campground_id_required", "campground id is required")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.store.ListRecords(ctx, campgroundID, page, pageSize)
}
