package model

import (
	"time"
)

const (
	PayoutRequestStatusPending = "PENDING"
	PayoutRequestStatusDone    = "DONE"
	PayoutRequestStatusFailed  = "FAILED"
)

var ValidPayoutRequestTransitions = map[string][]string{
	PayoutRequestStatusPending: {PayoutRequestStatusDone, PayoutRequestStatusFailed},
	PayoutRequestStatusFailed:  {PayoutRequestStatusPending},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidPayoutRequestTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// PayoutRequest 待对账的 payout
// 由 payout.paid Webhook 写入，PayoutRetryJob 消费；网关不可用时按指数退避重试
type PayoutRequest struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PayoutID        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"payout_id"`
	CampgroundID    string    `gorm:"type:varchar(64);index;not null" json:"campground_id"`
	StripeAccountID string    `gorm:"type:varchar(64);not null" json:"stripe_account_id"`
	SourceEventID   string    `gorm:"type:varchar(64)" json:"source_event_id"` // 触发的 Webhook 事件
	Status          string    `gorm:"type:varchar(20);index:idx_status_next;not null" json:"status"`
	Attempts        int       `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt   time.Time `gorm:"index:idx_status_next;not null" json:"next_attempt_at"`
	LastError       string    `gorm:"type:varchar(512)" json:"last_error"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PayoutRequest) TableName() string {
	return "payout_request"
}
