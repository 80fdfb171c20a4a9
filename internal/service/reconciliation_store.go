package service

import (
	"context"
	"fmt"
	"time"

	"payprocessor/internal/ledger"
	"payprocessor/internal/model"
	"payprocessor/internal/reconciliation"
	"payprocessor/internal/repository"

	"gorm.io/gorm"
)

// DriftAlertEvent 投递到 drift_alert topic 的消息体
type DriftAlertEvent struct {
	PayoutID      string `json:"payout_id"`
	CampgroundID  string `json:"campground_id"`
	Severity      string `json:"severity"`
	DriftStatus   string `json:"drift_status"`
	DriftCents    int64  `json:"drift_cents"`
	StripeCents   int64  `json:"stripe_amount_cents"`
	ExpectedCents int64  `json:"expected_amount_cents"`
	PayoutArrival string `json:"payout_arrival"`
}

// GormReconciliationStore 对账记录、分录和告警消息在同一个事务内落库
type GormReconciliationStore struct {
	db         *gorm.DB
	recordRepo *repository.ReconciliationRepository
	ledgerRepo *repository.LedgerRepository
	outboxRepo *repository.OutboxRepository
	alertTopic string
}

func NewGormReconciliationStore(db *gorm.DB, alertTopic string) *GormReconciliationStore {
	return &GormReconciliationStore{
		db:         db,
		recordRepo: repository.NewReconciliationRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		alertTopic: alertTopic,
	}
}

func (s *GormReconciliationStore) GetRecord(ctx context.Context, payoutID string) (*reconciliation.Record, error) {
	m, err := s.recordRepo.GetByPayoutID(ctx, nil, payoutID)
	if err != nil {
		return nil, fmt.Errorf("查询对账记录失败: %w", err)
	}
	if m == nil {
		return nil, nil
	}
	return m.ToDomain(), nil
}

// SaveRecord 返回最终落库的记录和本次新写入的 posting 数
// 记录已存在（并发的另一个调用者先写入）时不写分录，返回已有记录和 0
func (s *GormReconciliationStore) SaveRecord(ctx context.Context, record *reconciliation.Record, postings []ledger.Posting) (*reconciliation.Record, int, error) {
	var stored *reconciliation.Record
	created := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.recordRepo.CreateIfAbsent(ctx, tx, model.NewReconciliationRecord(record))
		if err != nil {
			return fmt.Errorf("写入对账记录失败: %w", err)
		}
		if !inserted {
			existing, err := s.recordRepo.GetByPayoutID(ctx, tx, record.PayoutID)
			if err != nil {
				return fmt.Errorf("查询对账记录失败: %w", err)
			}
			if existing == nil {
				return fmt.Errorf("对账记录 %s 写入冲突但查询不到", record.PayoutID)
			}
			stored = existing.ToDomain()
			return nil
		}

		for _, p := range postings {
			both := true
			for _, entry := range model.LedgerEntriesFromPosting(p) {
				ok, err := s.ledgerRepo.InsertEntry(ctx, tx, entry)
				if err != nil {
					return fmt.Errorf("写入分录失败: %w", err)
				}
				both = both && ok
			}
			if both {
				created++
			}
		}

		if record.Alert != nil {
			msg, err := model.NewOutboxMessage(s.alertTopic, record.PayoutID, "drift_alert", DriftAlertEvent{
				PayoutID:      record.PayoutID,
				CampgroundID:  record.CampgroundID,
				Severity:      string(record.Alert.Severity),
				DriftStatus:   string(record.Status),
				DriftCents:    record.Alert.Drift.Int64(),
				StripeCents:   record.Summary.StripeAmount.Int64(),
				ExpectedCents: record.Summary.ExpectedAmount.Int64(),
				PayoutArrival: record.ProcessedAt.Format(time.RFC3339),
			})
			if err != nil {
				return fmt.Errorf("序列化告警失败: %w", err)
			}
			if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
				return fmt.Errorf("写入消息失败: %w", err)
			}
		}

		stored = record
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return stored, created, nil
}

func (s *GormReconciliationStore) ListRecords(ctx context.Context, campgroundID string, page, pageSize int) ([]*reconciliation.Record, int64, error) {
	rows, total, err := s.recordRepo.ListByCampground(ctx, campgroundID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("查询对账记录失败: %w", err)
	}
	records := make([]*reconciliation.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.ToDomain())
	}
	return records, total, nil
}
