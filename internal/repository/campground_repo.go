package repository

import (
	"context"
	"errors"

	"payprocessor/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCampgroundAccountNotFound = errors.New("营地未绑定 Stripe 账户")

type CampgroundRepository struct {
	db *gorm.DB
}

func NewCampgroundRepository(db *gorm.DB) *CampgroundRepository {
	return &CampgroundRepository{db: db}
}

func (r *CampgroundRepository) GetByCampgroundID(ctx context.Context, campgroundID string) (*model.CampgroundAccount, error) {
	var account model.CampgroundAccount
	err := r.db.WithContext(ctx).
		Where("campground_id = ? AND active = ?", campgroundID, true).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampgroundAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *CampgroundRepository) GetByStripeAccountID(ctx context.Context, stripeAccountID string) (*model.CampgroundAccount, error) {
	var account model.CampgroundAccount
	err := r.db.WithContext(ctx).Where("stripe_account_id = ?", stripeAccountID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampgroundAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Upsert 绑定或更新营地的连接账户
func (r *CampgroundRepository) Upsert(ctx context.Context, account *model.CampgroundAccount) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campground_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"stripe_account_id", "active", "updated_at"}),
		}).
		Create(account).Error
}
