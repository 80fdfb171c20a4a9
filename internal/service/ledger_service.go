package service

import (
	"context"
	"fmt"

	"payprocessor/internal/apperror"
	"payprocessor/internal/ledger"
	"payprocessor/internal/model"
	"payprocessor/pkg/money"
)

// LedgerReader 由 repository.LedgerRepository 实现
type LedgerReader interface {
	ListByReference(ctx context.Context, kind, referenceID string) ([]*model.LedgerEntry, error)
	AccountBalance(ctx context.Context, account string) (int64, error)
}

type LedgerService struct {
	reader LedgerReader
}

func NewLedgerService(reader LedgerReader) *LedgerService {
	return &LedgerService{reader: reader}
}

type LedgerEntryView struct {
	PostingID string `json:"posting_id"`
	ledger.Entry
}

type ReferenceEntries struct {
	Reference ledger.Reference  `json:"reference"`
	Entries   []LedgerEntryView `json:"entries"`
	Balanced  bool              `json:"balanced"`
}

// EntriesForReference 查询某个 payout / payment 产生的全部分录，并校验借贷平衡
func (s *LedgerService) EntriesForReference(ctx context.Context, kind, referenceID string) (*ReferenceEntries, error) {
	ref := ledger.Reference{Kind: ledger.ReferenceKind(kind), ID: referenceID}
	if ref.Kind != ledger.ReferencePayout && ref.Kind != ledger.ReferencePayment {
		return nil, apperror.Validation("reference_kind", "reference kind %q must be payout or payment", kind)
	}
	if referenceID == "" {
		return nil, apperror.Validation("posting_reference", "reference id is required")
	}

	rows, err := s.reader.ListByReference(ctx, kind, referenceID)
	if err != nil {
		return nil, fmt.Errorf("查询分录失败: %w", err)
	}

	out := &ReferenceEntries{Reference: ref, Entries: make([]LedgerEntryView, 0, len(rows))}
	var debits, credits money.Money
	for _, row := range rows {
		e := row.ToDomain()
		out.Entries = append(out.Entries, LedgerEntryView{PostingID: row.PostingID, Entry: e})

		var err error
		if e.Side == ledger.Debit {
			debits, err = debits.Add(e.Amount)
		} else {
			credits, err = credits.Add(e.Amount)
		}
		if err != nil {
			return nil, apperror.Wrap(apperror.KindInvariantViolation, "ledger_balanced", err)
		}
	}
	out.Balanced = debits == credits
	return out, nil
}

type AccountBalance struct {
	Account string      `json:"account"`
	Balance money.Money `json:"balance_cents"` // 借方减贷方
}

func (s *LedgerService) AccountBalance(ctx context.Context, account string) (*AccountBalance, error) {
	if account == "" {
		return nil, apperror.Validation("account_required", "account is required")
	}
	balance, err := s.reader.AccountBalance(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return &AccountBalance{Account: account, Balance: money.Cents(balance)}, nil
}
