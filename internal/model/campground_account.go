package model

import (
	"time"
)

// CampgroundAccount 营地与 Stripe Connect 账户的绑定关系
// 创建支付意图时据此决定资金转入哪个连接账户，Webhook 里的 payout 也靠它反查营地
type CampgroundAccount struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CampgroundID    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"campground_id"`
	StripeAccountID string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"stripe_account_id"` // acct_xxx
	Active          bool      `gorm:"not null" json:"active"` // 不设 default，否则 false 在插入时会被忽略
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CampgroundAccount) TableName() string {
	return "campground_account"
}
