package repository

import (
	"context"
	"errors"
	"time"

	"payprocessor/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPayoutRequestStatusInvalid = errors.New("payout 请求状态不合法")
	ErrPayoutRequestNotFound      = errors.New("payout 请求不存在")
)

type PayoutRequestRepository struct {
	db *gorm.DB
}

func NewPayoutRequestRepository(db *gorm.DB) *PayoutRequestRepository {
	return &PayoutRequestRepository{db: db}
}

// Enqueue 同一个 payout 只入队一次，重复的 Webhook 直接忽略
func (r *PayoutRequestRepository) Enqueue(ctx context.Context, tx *gorm.DB, req *model.PayoutRequest) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	if req.Status == "" {
		req.Status = model.PayoutRequestStatusPending
	}
	if req.NextAttemptAt.IsZero() {
		req.NextAttemptAt = time.Now()
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payout_id"}},
			DoNothing: true,
		}).
		Create(req)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PayoutRequestRepository) GetDueRequests(ctx context.Context, now time.Time, limit int) ([]*model.PayoutRequest, error) {
	var requests []*model.PayoutRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", model.PayoutRequestStatusPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}

func (r *PayoutRequestRepository) MarkDone(ctx context.Context, id int64) error {
	return r.transition(ctx, id, model.PayoutRequestStatusPending, model.PayoutRequestStatusDone, map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": "",
	})
}

func (r *PayoutRequestRepository) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	return r.transition(ctx, id, model.PayoutRequestStatusPending, model.PayoutRequestStatusFailed, map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": truncate(lastErr, 512),
	})
}

// Reschedule 保持 PENDING，记录本次失败并推迟下次尝试
func (r *PayoutRequestRepository) Reschedule(ctx context.Context, id int64, nextAttemptAt time.Time, lastErr string) error {
	result := r.db.WithContext(ctx).
		Model(&model.PayoutRequest{}).
		Where("id = ? AND status = ?", id, model.PayoutRequestStatusPending).
		Updates(map[string]interface{}{
			"attempts":        gorm.Expr("attempts + 1"),
			"next_attempt_at": nextAttemptAt,
			"last_error":      truncate(lastErr, 512),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPayoutRequestStatusInvalid
	}
	return nil
}

// Requeue 把 FAILED 的请求放回队列：尝试次数清零，立即可被任务拉取
func (r *PayoutRequestRepository) Requeue(ctx context.Context, payoutID string) (*model.PayoutRequest, error) {
	var req model.PayoutRequest
	err := r.db.WithContext(ctx).Where("payout_id = ?", payoutID).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutRequestNotFound
		}
		return nil, err
	}

	now := time.Now()
	err = r.transition(ctx, req.ID, model.PayoutRequestStatusFailed, model.PayoutRequestStatusPending, map[string]interface{}{
		"attempts":        0,
		"next_attempt_at": now,
		"last_error":      "",
	})
	if err != nil {
		return nil, err
	}

	req.Status = model.PayoutRequestStatusPending
	req.Attempts = 0
	req.NextAttemptAt = now
	req.LastError = ""
	return &req, nil
}

func (r *PayoutRequestRepository) transition(ctx context.Context, id int64, fromStatus, toStatus string, updates map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrPayoutRequestStatusInvalid
	}
	updates["status"] = toStatus

	result := r.db.WithContext(ctx).
		Model(&model.PayoutRequest{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPayoutRequestStatusInvalid
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
