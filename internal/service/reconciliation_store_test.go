package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"payprocessor/internal/infrastructure/database"
	"payprocessor/internal/metrics"
	"payprocessor/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testAlertTopic = "reconciliation.drift_alert"

func newSQLiteStore(t *testing.T) (*GormReconciliationStore, *gorm.DB) {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewGormReconciliationStore(db, testAlertTopic), db
}

func count(t *testing.T, db *gorm.DB, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Where(query, args...).Count(&n).Error)
	return n
}

func TestGormReconciliationStore_SaveRecordTwice(t *testing.T) {
	store, db := newSQLiteStore(t)
	ctx := context.Background()

	// 实际到账 48000，预期 50000，漂移 -2000 触发告警
	record, postings := reconciledPayout(t, 48000)
	require.NotNil(t, record.Alert)

	stored, created, err := store.SaveRecord(ctx, record, postings)
	require.NoError(t, err)
	assert.Same(t, record, stored)
	assert.Equal(t, 1, created)

	assert.Equal(t, int64(1), count(t, db, &model.ReconciliationRecord{}, "payout_id = ?", "po_123"))
	assert.Equal(t, int64(2), count(t, db, &model.LedgerEntry{}, "posting_id = ?", postings[0].ID))
	assert.Equal(t, int64(1), count(t, db, &model.OutboxMessage{}, "event_type = ? AND message_key = ?", "drift_alert", "po_123"))

	// 第二次写入：返回已落库的记录，不再写分录和告警
	again, againPostings := reconciledPayout(t, 48000)
	stored, created, err = store.SaveRecord(ctx, again, againPostings)
	require.NoError(t, err)
	assert.NotSame(t, again, stored)
	assert.Equal(t, record, stored)
	assert.Zero(t, created)

	assert.Equal(t, int64(1), count(t, db, &model.ReconciliationRecord{}, "payout_id = ?", "po_123"))
	assert.Equal(t, int64(2), count(t, db, &model.LedgerEntry{}, "posting_id = ?", postings[0].ID))
	assert.Equal(t, int64(1), count(t, db, &model.OutboxMessage{}, "event_type = ?", "drift_alert"))
}

func TestGormReconciliationStore_AlertPayload(t *testing.T) {
	store, db := newSQLiteStore(t)

	record, postings := reconciledPayout(t, 48000)
	_, _, err := store.SaveRecord(context.Background(), record, postings)
	require.NoError(t, err)

	var msg model.OutboxMessage
	require.NoError(t, db.Where("event_type = ?", "drift_alert").First(&msg).Error)
	assert.Equal(t, testAlertTopic, msg.Topic)
	assert.Equal(t, model.OutboxStatusPending, msg.Status)

	var event DriftAlertEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, "po_123", event.PayoutID)
	assert.Equal(t, "cg_1", event.CampgroundID)
	assert.Equal(t, int64(-2000), event.DriftCents)
	assert.Equal(t, string(record.Alert.Severity), event.Severity)
}

func TestGormReconciliationStore_BalancedPayoutHasNoAlert(t *testing.T) {
	store, db := newSQLiteStore(t)

	record, postings := reconciledPayout(t, 50000)
	require.Nil(t, record.Alert)

	_, created, err := store.SaveRecord(context.Background(), record, postings)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Zero(t, count(t, db, &model.OutboxMessage{}, "1 = 1"))
}

func TestGormReconciliationStore_GetAndList(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	missing, err := store.GetRecord(ctx, "po_123")
	require.NoError(t, err)
	assert.Nil(t, missing)

	record, postings := reconciledPayout(t, 50000)
	_, _, err = store.SaveRecord(ctx, record, postings)
	require.NoError(t, err)

	got, err := store.GetRecord(ctx, "po_123")
	require.NoError(t, err)
	assert.Equal(t, record, got)

	records, total, err := store.ListRecords(ctx, "cg_1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, record, records[0])
}

func TestReconciliationService_ProcessPayout_PersistsOnce(t *testing.T) {
	store, db := newSQLiteStore(t)
	record, postings := reconciledPayout(t, 48000)

	processor := &MockPayoutProcessor{thresholds: testThresholds(t)}
	processor.On("ProcessPayout", mock.Anything, "po_123", "cg_1", "acct_1").Return(record, postings, nil).Once()
	locker := new(MockLocker)
	locker.On("Acquire", mock.Anything, "po_123").Return(noopRelease, nil)

	svc := NewReconciliationService(processor, store, locker, metrics.NoopRecorder{}, zap.NewNop())

	first, err := svc.ProcessPayout(context.Background(), payoutReq)
	require.NoError(t, err)
	assert.Equal(t, 1, first.PostingsCreated)

	second, err := svc.ProcessPayout(context.Background(), payoutReq)
	require.NoError(t, err)
	assert.Zero(t, second.PostingsCreated)
	assert.Equal(t, record, second.Record)

	processor.AssertNumberOfCalls(t, "ProcessPayout", 1)
	assert.Equal(t, int64(2), count(t, db, &model.LedgerEntry{}, "1 = 1"))
	assert.Equal(t, int64(1), count(t, db, &model.OutboxMessage{}, "1 = 1"))
}
