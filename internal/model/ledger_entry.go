package model

import (
	"time"

	"payprocessor/internal/ledger"
	"payprocessor/pkg/money"
)

// LedgerEntry 复式记账分录
// 只追加，不修改，不删除；每个 posting 恰好有一借一贷两行，(posting_id, side) 唯一
type LedgerEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PostingID     string    `gorm:"type:varchar(36);uniqueIndex:uk_posting_side;not null" json:"posting_id"`
	Side          string    `gorm:"type:varchar(8);uniqueIndex:uk_posting_side;not null" json:"side"` // debit / credit
	Account       string    `gorm:"type:varchar(128);index;not null" json:"account"`
	Amount        int64     `gorm:"not null" json:"amount_cents"` // 恒为正数，方向由 side 表示
	ReferenceKind string    `gorm:"type:varchar(16);not null" json:"reference_kind"`
	ReferenceID   string    `gorm:"type:varchar(64);index;not null" json:"reference_id"`
	EntryAt       time.Time `gorm:"not null" json:"entry_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}

// LedgerEntriesFromPosting 把一个 posting 拆成借贷两行
func LedgerEntriesFromPosting(p ledger.Posting) []*LedgerEntry {
	entries := make([]*LedgerEntry, 0, 2)
	for _, e := range p.Entries() {
		entries = append(entries, &LedgerEntry{
			PostingID:     p.ID,
			Side:          string(e.Side),
			Account:       string(e.Account),
			Amount:        e.Amount.Int64(),
			ReferenceKind: string(e.Reference.Kind),
			ReferenceID:   e.Reference.ID,
			EntryAt:       e.CreatedAt,
		})
	}
	return entries
}

func (e *LedgerEntry) ToDomain() ledger.Entry {
	return ledger.Entry{
		Account:   ledger.AccountID(e.Account),
		Side:      ledger.Side(e.Side),
		Amount:    money.Cents(e.Amount),
		Reference: ledger.Reference{Kind: ledger.ReferenceKind(e.ReferenceKind), ID: e.ReferenceID},
		CreatedAt: e.EntryAt.UTC(),
	}
}
