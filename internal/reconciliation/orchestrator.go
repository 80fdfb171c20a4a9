package reconciliation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"payprocessor/internal/apperror"
	"payprocessor/internal/ledger"
	"payprocessor/pkg/money"
)

// PayoutData 网关返回的 payout 数据，已按分项汇总为分
type PayoutData struct {
	PayoutID    string
	Amount      money.Money // 打给连接账户的净额
	Currency    string
	Status      string
	ArrivalDate time.Time
	Components  Components
}

// PayoutSource 从网关拉取 payout 及其分项合计，是编排器唯一的 I/O，超时由实现负责
type PayoutSource interface {
	FetchPayout(ctx context.Context, payoutID, stripeAccountID string) (*PayoutData, error)
}

// Record 一个 payout 的对账结果，网关数据相同时结果完全相同（包括 ProcessedAt）
type Record struct {
	PayoutID        string      `json:"payout_id"`
	CampgroundID    string      `json:"campground_id"`
	StripeAccountID string      `json:"stripe_account_id"`
	Currency        string      `json:"currency"`
	PayoutStatus    string      `json:"payout_status"`
	Summary         Summary     `json:"summary"`
	Status          DriftStatus `json:"drift_status"`
	Alert           *DriftAlert `json:"alert,omitempty"`
	PostingIDs      []string    `json:"posting_ids"`
	ProcessedAt     time.Time   `json:"processed_at"`
}

// Orchestrator 对 payout 执行 拉取 -> 汇总 -> 分级 -> 记账
// 调用之间不保存状态也不去重，由调用方按 payout_id 唯一落库
type Orchestrator struct {
	source     PayoutSource
	thresholds Thresholds
	logger     *zap.Logger
}

func NewOrchestrator(source PayoutSource, thresholds Thresholds, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		source:     source,
		thresholds: thresholds,
		logger:     logger,
	}
}

func (o *Orchestrator) Thresholds() Thresholds {
	return o.thresholds
}

// ProcessPayout 对账一个 payout，返回对账记录和分录
func (o *Orchestrator) ProcessPayout(ctx context.Context, payoutID, campgroundID, stripeAccountID string) (*Record, []ledger.Posting, error) {
	switch {
	case payoutID == "":
		return nil, nil, apperror.Validation("payout_id_required", "payout id is required")
	case campgroundID == "":
		return nil, nil, apperror.Validation("campground_id_required", "campground id is required")
	case stripeAccountID == "":
		return nil, nil, apperror.Validation("stripe_account_id_required", "stripe account id is required")
	}

	data, err := o.source.FetchPayout(ctx, payoutID, stripeAccountID)
	if err != nil {
		if apperror.KindOf(err) != "" {
			return nil, nil, err
		}
		return nil, nil, apperror.UpstreamUnavailable("fetch_payout", err)
	}
	if data == nil || data.PayoutID != payoutID {
		return nil, nil, o.violation(apperror.InvariantViolation("payout_id_matches",
			"gateway returned a different payout for %s", payoutID))
	}

	summary, err := Summarize(SummaryInput{
		PayoutID:     payoutID,
		CampgroundID: campgroundID,
		StripeAmount: data.Amount,
		Components:   data.Components,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := summary.verify(); err != nil {
		return nil, nil, o.violation(err)
	}

	status := Classify(summary.Drift, o.thresholds)
	alert := ClassifyDrift(summary, o.thresholds)

	postings, err := netPayoutPostings(summary, data.ArrivalDate)
	if err != nil {
		return nil, nil, err
	}
	if !ledger.IsBalanced(postings) {
		return nil, nil, o.violation(apperror.InvariantViolation("ledger_balanced",
			"payout %s produced unbalanced postings", payoutID))
	}

	ids := make([]string, 0, len(postings))
	for _, p := range postings {
		ids = append(ids, p.ID)
	}

	record := &Record{
		PayoutID:        payoutID,
		CampgroundID:    campgroundID,
		StripeAccountID: stripeAccountID,
		Currency:        data.Currency,
		PayoutStatus:    data.Status,
		Summary:         summary,
		Status:          status,
		Alert:           alert,
		PostingIDs:      ids,
		ProcessedAt:     data.ArrivalDate.UTC(),
	}

	if alert != nil {
		o.logger.Warn("payout 对账发现漂移",
			zap.String("payout_id", payoutID),
			zap.String("campground_id", campgroundID),
			zap.Int64("drift_cents", alert.Drift.Int64()),
			zap.String("severity", string(alert.Severity)))
	}
	o.logger.Info("payout 对账完成",
		zap.String("payout_id", payoutID),
		zap.String("drift_status", string(status)),
		zap.Int64("stripe_amount_cents", summary.StripeAmount.Int64()),
		zap.Int64("expected_amount_cents", summary.ExpectedAmount.Int64()),
		zap.Int("postings", len(postings)))

	return record, postings, nil
}

// netPayoutPostings 把 payout 净额从网关清算账户转到营地应付账户
// 负数 payout（网关从营地扣款）方向相反，零金额不记账
func netPayoutPostings(s Summary, at time.Time) ([]ledger.Posting, error) {
	if s.StripeAmount.IsZero() {
		return nil, nil
	}

	debit, credit := ledger.CampgroundPayable(s.CampgroundID), ledger.AccountGatewayClearing
	amount := s.StripeAmount
	if amount.IsNegative() {
		debit, credit = credit, debit
		abs, err := amount.Abs()
		if err != nil {
			return nil, apperror.Wrap(apperror.KindValidation, "payout_amount_range", err)
		}
		amount = abs
	}

	p, err := ledger.Post(amount, debit, credit, ledger.PayoutRef(s.PayoutID), at)
	if err != nil {
		return nil, err
	}
	return []ledger.Posting{p}, nil
}

func (o *Orchestrator) violation(err error) error {
	o.logger.Error("对账不变量校验失败", zap.Error(err))
	return err
}
