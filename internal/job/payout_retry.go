package job

import (
	"context"
	"time"

	"payprocessor/internal/apperror"
	"payprocessor/internal/model"
	"payprocessor/internal/service"

	"go.uber.org/zap"
)

// PayoutRequestStore 由 repository.PayoutRequestRepository 实现
type PayoutRequestStore interface {
	GetDueRequests(ctx context.Context, now time.Time, limit int) ([]*model.PayoutRequest, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, lastErr string) error
	Reschedule(ctx context.Context, id int64, nextAttemptAt time.Time, lastErr string) error
}

// PayoutReconciler 由 service.ReconciliationService 实现
type PayoutReconciler interface {
	ProcessPayout(ctx context.Context, req *service.ProcessPayoutRequest) (*service.ProcessPayoutResult, error)
}

const maxPayoutRetryBackoff = time.Hour

// PayoutRetryJob 消费 payout.paid Webhook 入队的对账请求
// 网关或锁不可用时指数退避重试，超过最大次数或遇到不可重试错误则标记 FAILED
type PayoutRetryJob struct {
	requests   PayoutRequestStore
	reconciler PayoutReconciler
	logger     *zap.Logger
	maxRetries int
	baseDelay  time.Duration
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	now        func() time.Time
}

func NewPayoutRetryJob(requests PayoutRequestStore, reconciler PayoutReconciler, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *PayoutRetryJob {
	return &PayoutRetryJob{
		requests:   requests,
		reconciler: reconciler,
		logger:     logger.Named("payout_retry"),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		stopCh:     make(chan struct{}),
		interval:   5 * time.Second,
		batchSize:  20,
		now:        time.Now,
	}
}

func (j *PayoutRetryJob) Start(ctx context.Context) {
	j.logger.Info("payout 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.logger.Info("任务停止")
			return
		case <-ticker.C:
			j.processDueRequests(ctx)
		}
	}
}

func (j *PayoutRetryJob) Stop() {
	close(j.stopCh)
}

func (j *PayoutRetryJob) processDueRequests(ctx context.Context) {
	requests, err := j.requests.GetDueRequests(ctx, j.now(), j.batchSize)
	if err != nil {
		j.logger.Error("查询待对账 payout 失败", zap.Error(err))
		return
	}

	for _, req := range requests {
		if ctx.Err() != nil {
			return
		}
		j.process(ctx, req)
	}
}

func (j *PayoutRetryJob) process(ctx context.Context, req *model.PayoutRequest) {
	log := j.logger.With(
		zap.String("payout_id", req.PayoutID),
		zap.String("campground_id", req.CampgroundID),
		zap.Int("attempts", req.Attempts))

	res, err := j.reconciler.ProcessPayout(ctx, &service.ProcessPayoutRequest{
		PayoutID:        req.PayoutID,
		CampgroundID:    req.CampgroundID,
		StripeAccountID: req.StripeAccountID,
	})
	if err == nil {
		if err := j.requests.MarkDone(ctx, req.ID); err != nil {
			log.Error("标记对账完成失败", zap.Error(err))
			return
		}
		log.Info("payout 对账完成",
			zap.String("drift_status", string(res.Record.Status)),
			zap.Int("postings_created", res.PostingsCreated))
		return
	}

	if !apperror.Retryable(err) || req.Attempts+1 >= j.maxRetries {
		if markErr := j.requests.MarkFailed(ctx, req.ID, err.Error()); markErr != nil {
			log.Error("标记对账失败状态失败", zap.Error(markErr))
			return
		}
		log.Error("payout 对账失败，不再重试", zap.String("rule", apperror.RuleOf(err)), zap.Error(err))
		return
	}

	next := j.now().Add(j.backoff(req.Attempts))
	if err := j.requests.Reschedule(ctx, req.ID, next, err.Error()); err != nil {
		log.Error("推迟重试失败", zap.Error(err))
		return
	}
	log.Warn("payout 对账暂时失败，稍后重试", zap.Time("next_attempt_at", next), zap.Error(err))
}

// backoff baseDelay * 2^attempts，上限一小时
func (j *PayoutRetryJob) backoff(attempts int) time.Duration {
	d := j.baseDelay
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxPayoutRetryBackoff {
			return maxPayoutRetryBackoff
		}
	}
	return d
}
