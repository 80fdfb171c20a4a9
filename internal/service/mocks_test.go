package service

import (
	"context"
	"sync"

	"payprocessor/internal/gateway"
	"payprocessor/internal/ledger"
	"payprocessor/internal/model"
	"payprocessor/internal/reconciliation"

	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"
)

type MockPayoutProcessor struct {
	mock.Mock
	thresholds reconciliation.Thresholds
}

func (m *MockPayoutProcessor) ProcessPayout(ctx context.Context, payoutID, campgroundID, stripeAccountID string) (*reconciliation.Record, []ledger.Posting, error) {
	args := m.Called(ctx, payoutID, campgroundID, stripeAccountID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*reconciliation.Record), args.Get(1).([]ledger.Posting), args.Error(2)
}

func (m *MockPayoutProcessor) Thresholds() reconciliation.Thresholds {
	return m.thresholds
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, payoutID string) (func(), error) {
	args := m.Called(ctx, payoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetRecord(ctx context.Context, payoutID string) (*reconciliation.Record, error) {
	args := m.Called(ctx, payoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Record), args.Error(1)
}

func (m *MockStore) SaveRecord(ctx context.Context, record *reconciliation.Record, postings []ledger.Posting) (*reconciliation.Record, int, error) {
	args := m.Called(ctx, record, postings)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*reconciliation.Record), args.Int(1), args.Error(2)
}

func (m *MockStore) ListRecords(ctx context.Context, campgroundID string, page, pageSize int) ([]*reconciliation.Record, int64, error) {
	args := m.Called(ctx, campgroundID, page, pageSize)
	return args.Get(0).([]*reconciliation.Record), args.Get(1).(int64), args.Error(2)
}

// memStore 内存版存储，按 payout_id 和 (posting_id, side) 去重
type memStore struct {
	mu      sync.Mutex
	records map[string]*reconciliation.Record
	entries map[string]bool
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*reconciliation.Record{}, entries: map[string]bool{}}
}

func (s *memStore) GetRecord(_ context.Context, payoutID string) (*reconciliation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[payoutID], nil
}

func (s *memStore) SaveRecord(_ context.Context, record *reconciliation.Record, postings []ledger.Posting) (*reconciliation.Record, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[record.PayoutID]; ok {
		return existing, 0, nil
	}
	s.records[record.PayoutID] = record

	created := 0
	for _, p := range postings {
		both := true
		for _, e := range p.Entries() {
			key := p.ID + "|" + string(e.Side)
			both = both && !s.entries[key]
			s.entries[key] = true
		}
		if both {
			created++
		}
	}
	return record, created, nil
}

func (s *memStore) ListRecords(_ context.Context, campgroundID string, _, _ int) ([]*reconciliation.Record, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*reconciliation.Record
	for _, r := range s.records {
		if r.CampgroundID == campgroundID {
			out = append(out, r)
		}
	}
	return out, int64(len(out)), nil
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreatePaymentIntent(ctx context.Context, req gateway.PaymentIntentRequest) (*gateway.PaymentIntent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentIntent), args.Error(1)
}

func (m *MockPaymentGateway) GetPaymentIntent(ctx context.Context, id, connectedAccountID string) (*gateway.PaymentIntent, error) {
	args := m.Called(ctx, id, connectedAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentIntent), args.Error(1)
}

func (m *MockPaymentGateway) CapturePaymentIntent(ctx context.Context, req gateway.CaptureRequest) (*gateway.Capture, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Capture), args.Error(1)
}

func (m *MockPaymentGateway) CreateRefund(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Refund), args.Error(1)
}

type MockCampgroundDirectory struct {
	mock.Mock
}

func (m *MockCampgroundDirectory) GetByCampgroundID(ctx context.Context, campgroundID string) (*model.CampgroundAccount, error) {
	args := m.Called(ctx, campgroundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CampgroundAccount), args.Error(1)
}

func (m *MockCampgroundDirectory) GetByStripeAccountID(ctx context.Context, stripeAccountID string) (*model.CampgroundAccount, error) {
	args := m.Called(ctx, stripeAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CampgroundAccount), args.Error(1)
}

func (m *MockCampgroundDirectory) Upsert(ctx context.Context, account *model.CampgroundAccount) error {
	return m.Called(ctx, account).Error(0)
}

type MockEventVerifier struct {
	mock.Mock
}

func (m *MockEventVerifier) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(stripe.Event), args.Error(1)
}

type MockPayoutQueue struct {
	mock.Mock
}

func (m *MockPayoutQueue) Enqueue(ctx context.Context, tx *gorm.DB, req *model.PayoutRequest) (bool, error) {
	args := m.Called(ctx, tx, req)
	return args.Bool(0), args.Error(1)
}

type MockOutboxWriter struct {
	mock.Mock
}

func (m *MockOutboxWriter) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	return m.Called(ctx, tx, msg).Error(0)
}
