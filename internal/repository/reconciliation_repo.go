package repository

import (
	"context"
	"errors"

	"payprocessor/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReconciliationRepository struct {
	db *gorm.DB
}

func NewReconciliationRepository(db *gorm.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// GetByPayoutID 不存在时返回 nil, nil
func (r *ReconciliationRepository) GetByPayoutID(ctx context.Context, tx *gorm.DB, payoutID string) (*model.ReconciliationRecord, error) {
	if tx == nil {
		tx = r.db
	}
	var record model.ReconciliationRecord
	err := tx.WithContext(ctx).Where("payout_id = ?", payoutID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// CreateIfAbsent 依赖 payout_id 唯一索引，返回是否真正插入
// 并发下只有一个调用者能插入成功，其余调用者拿到 false
func (r *ReconciliationRepository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, record *model.ReconciliationRecord) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payout_id"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *ReconciliationRepository) ListByCampground(ctx context.Context, campgroundID string, page, pageSize int) ([]*model.ReconciliationRecord, int64, error) {
	var records []*model.ReconciliationRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&model.ReconciliationRecord{}).Where("campground_id = ?", campgroundID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("processed_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error

	return records, total, err
}
