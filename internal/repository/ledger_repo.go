package repository

import (
	"context"

	"payprocessor/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// InsertEntry 写入一条分录，(posting_id, side) 已存在时什么都不做
// 同一个 posting 重放不会重复记账
func (r *LedgerRepository) InsertEntry(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "posting_id"}, {Name: "side"}},
			DoNothing: true,
		}).
		Create(entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *LedgerRepository) ListByReference(ctx context.Context, kind, referenceID string) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("reference_kind = ? AND reference_id = ?", kind, referenceID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// AccountBalance 借方合计减贷方合计
func (r *LedgerRepository) AccountBalance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("COALESCE(SUM(CASE WHEN side = 'debit' THEN amount ELSE -amount END), 0)").
		Where("account = ?", account).
		Scan(&balance).Error
	return balance, err
}
