// Package ledger 复式记账
//
// 分录不能单独创建：Post 用同一个金额同时生成借贷两条，不存在不平衡的 posting
package ledger

import (
	"time"

	"github.com/google/uuid"

	"payprocessor/internal/apperror"
	"payprocessor/pkg/money"
)

// AccountID 账户标识
type AccountID string

// AccountGatewayClearing 网关已收款、尚未打款的资金
const AccountGatewayClearing AccountID = "gateway_clearing"

// CampgroundPayable 平台应付给营地的账户
func CampgroundPayable(campgroundID string) AccountID {
	return AccountID("campground_payable:" + campgroundID)
}

type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

type ReferenceKind string

const (
	ReferencePayout  ReferenceKind = "payout"
	ReferencePayment ReferenceKind = "payment"
)

// Reference 产生该 posting 的网关对象
type Reference struct {
	Kind ReferenceKind `json:"kind"`
	ID   string        `json:"id"`
}

func PayoutRef(id string) Reference  { return Reference{Kind: ReferencePayout, ID: id} }
func PaymentRef(id string) Reference { return Reference{Kind: ReferencePayment, ID: id} }

func (r Reference) String() string {
	return string(r.Kind) + ":" + r.ID
}

type Entry struct {
	Account   AccountID   `json:"account"`
	Side      Side        `json:"side"`
	Amount    money.Money `json:"amount_cents"`
	Reference Reference   `json:"reference"`
	CreatedAt time.Time   `json:"created_at"`
}

// Posting 金额相等的一借一贷
type Posting struct {
	ID     string `json:"id"`
	Debit  Entry  `json:"debit"`
	Credit Entry  `json:"credit"`
}

// postingNamespace 生成确定性 posting id 的命名空间
var postingNamespace = uuid.MustParse("6f1c2d4e-8a3b-4c5d-9e7f-0a1b2c3d4e5f")

// Post 把 amount 从 creditAccount 记到 debitAccount
// posting id 由 reference 和账户推导，同一笔资金变动重复记账得到相同的 id
func Post(amount money.Money, debitAccount, creditAccount AccountID, ref Reference, at time.Time) (Posting, error) {
	if !amount.IsPositive() {
		return Posting{}, apperror.InvalidAmount("posting_amount_positive", "posting amount %d must be > 0", amount)
	}
	if debitAccount == "" || creditAccount == "" {
		return Posting{}, apperror.Validation("posting_accounts", "debit and credit accounts are required")
	}
	if debitAccount == creditAccount {
		return Posting{}, apperror.Validation("posting_accounts", "debit and credit account are both %q", debitAccount)
	}
	if ref.ID == "" {
		return Posting{}, apperror.Validation("posting_reference", "posting reference id is required")
	}

	at = at.UTC()
	id := uuid.NewSHA1(postingNamespace, []byte(ref.String()+"|"+string(debitAccount)+"|"+string(creditAccount)))

	return Posting{
		ID:     id.String(),
		Debit:  Entry{Account: debitAccount, Side: Debit, Amount: amount, Reference: ref, CreatedAt: at},
		Credit: Entry{Account: creditAccount, Side: Credit, Amount: amount, Reference: ref, CreatedAt: at},
	}, nil
}

// Entries 先借后贷
func (p Posting) Entries() []Entry {
	return []Entry{p.Debit, p.Credit}
}

// Totals 汇总借方和贷方合计
func Totals(postings []Posting) (debits, credits money.Money, err error) {
	for _, p := range postings {
		if debits, err = debits.Add(p.Debit.Amount); err != nil {
			return 0, 0, err
		}
		if credits, err = credits.Add(p.Credit.Amount); err != nil {
			return 0, 0, err
		}
	}
	return debits, credits, nil
}

// IsBalanced 每个 posting 都是方向正确、金额相等且为正的一借一贷，并且整体轧平
func IsBalanced(postings []Posting) bool {
	for _, p := range postings {
		if p.Debit.Side != Debit || p.Credit.Side != Credit {
			return false
		}
		if !p.Debit.Amount.IsPositive() || p.Debit.Amount != p.Credit.Amount {
			return false
		}
	}
	debits, credits, err := Totals(postings)
	if err != nil {
		return false
	}
	return debits == credits
}
