package model

import (
	"strings"
	"time"

	"payprocessor/internal/reconciliation"
	"payprocessor/pkg/money"
)

// ReconciliationRecord payout 对账结果
// payout_id 唯一，保证同一个 payout 只落一次账
type ReconciliationRecord struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PayoutID        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"payout_id"`
	CampgroundID    string    `gorm:"type:varchar(64);index;not null" json:"campground_id"`
	StripeAccountID string    `gorm:"type:varchar(64);not null" json:"stripe_account_id"`
	Currency        string    `gorm:"type:varchar(3)" json:"currency"`
	PayoutStatus    string    `gorm:"type:varchar(20)" json:"payout_status"`
	StripeAmount    int64     `gorm:"not null" json:"stripe_amount_cents"`
	ExpectedAmount  int64     `gorm:"not null" json:"expected_amount_cents"`
	Drift           int64     `gorm:"not null" json:"drift_cents"`
	Payments        int64     `gorm:"not null" json:"payments_cents"`
	Refunds         int64     `gorm:"not null" json:"refunds_cents"`
	GatewayFees     int64     `gorm:"not null" json:"gateway_fees_cents"`
	PlatformFees    int64     `gorm:"not null" json:"platform_fees_cents"`
	Chargebacks     int64     `gorm:"not null" json:"chargebacks_cents"`
	DriftStatus     string    `gorm:"type:varchar(20);index;not null" json:"drift_status"`
	AlertSeverity   string    `gorm:"type:varchar(20)" json:"alert_severity"` // 空表示无告警
	PostingIDs      string    `gorm:"type:text" json:"posting_ids"`           // 逗号分隔
	ProcessedAt     time.Time `gorm:"not null" json:"processed_at"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ReconciliationRecord) TableName() string {
	return "reconciliation_record"
}

func NewReconciliationRecord(r *reconciliation.Record) *ReconciliationRecord {
	m := &ReconciliationRecord{
		PayoutID:        r.PayoutID,
		CampgroundID:    r.CampgroundID,
		StripeAccountID: r.StripeAccountID,
		Currency:        r.Currency,
		PayoutStatus:    r.PayoutStatus,
		StripeAmount:    r.Summary.StripeAmount.Int64(),
		ExpectedAmount:  r.Summary.ExpectedAmount.Int64(),
		Drift:           r.Summary.Drift.Int64(),
		Payments:        r.Summary.Components.Payments.Int64(),
		Refunds:         r.Summary.Components.Refunds.Int64(),
		GatewayFees:     r.Summary.Components.GatewayFees.Int64(),
		PlatformFees:    r.Summary.Components.PlatformFees.Int64(),
		Chargebacks:     r.Summary.Components.Chargebacks.Int64(),
		DriftStatus:     string(r.Status),
		PostingIDs:      strings.Join(r.PostingIDs, ","),
		ProcessedAt:     r.ProcessedAt,
	}
	if r.Alert != nil {
		m.AlertSeverity = string(r.Alert.Severity)
	}
	return m
}

// ToDomain 还原为领域对象，与落库前的 Record 完全一致
func (m *ReconciliationRecord) ToDomain() *reconciliation.Record {
	r := &reconciliation.Record{
		PayoutID:        m.PayoutID,
		CampgroundID:    m.CampgroundID,
		StripeAccountID: m.StripeAccountID,
		Currency:        m.Currency,
		PayoutStatus:    m.PayoutStatus,
		Summary: reconciliation.Summary{
			PayoutID:       m.PayoutID,
			CampgroundID:   m.CampgroundID,
			StripeAmount:   money.Cents(m.StripeAmount),
			ExpectedAmount: money.Cents(m.ExpectedAmount),
			Drift:          money.Cents(m.Drift),
			Components: reconciliation.Components{
				Payments:     money.Cents(m.Payments),
				Refunds:      money.Cents(m.Refunds),
				GatewayFees:  money.Cents(m.GatewayFees),
				PlatformFees: money.Cents(m.PlatformFees),
				Chargebacks:  money.Cents(m.Chargebacks),
			},
		},
		Status:      reconciliation.DriftStatus(m.DriftStatus),
		PostingIDs:  []string{},
		ProcessedAt: m.ProcessedAt.UTC(),
	}
	if m.PostingIDs != "" {
		r.PostingIDs = strings.Split(m.PostingIDs, ",")
	}
	if m.AlertSeverity != "" {
		r.Alert = &reconciliation.DriftAlert{
			PayoutID: m.PayoutID,
			Drift:    money.Cents(m.Drift),
			Severity: reconciliation.Severity(m.AlertSeverity),
		}
	}
	return r
}
