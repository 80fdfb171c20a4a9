// Package reconciliation 用平台侧的分项合计核对网关 payout，并生成对应的分录
//
// Summarize 和 ClassifyDrift 是纯函数；Orchestrator 通过 PayoutSource 拉取数据，持久化交给调用方
package reconciliation

import (
	"payprocessor/internal/apperror"
	"payprocessor/pkg/money"
)

// Components 一个 payout 在平台侧应有的各项合计
type Components struct {
	Payments     money.Money `json:"payments_cents"`
	Refunds      money.Money `json:"refunds_cents"`
	GatewayFees  money.Money `json:"gateway_fees_cents"`
	PlatformFees money.Money `json:"platform_fees_cents"`
	Chargebacks  money.Money `json:"chargebacks_cents"`
}

// Expected = payments - refunds - gateway fees - platform fees - chargebacks
func (c Components) Expected() (money.Money, error) {
	expected := c.Payments
	for _, deduction := range []money.Money{c.Refunds, c.GatewayFees, c.PlatformFees, c.Chargebacks} {
		var err error
		if expected, err = expected.Sub(deduction); err != nil {
			return 0, err
		}
	}
	return expected, nil
}

type SummaryInput struct {
	PayoutID     string
	CampgroundID string
	StripeAmount money.Money
	Components   Components
}

type Summary struct {
	PayoutID       string      `json:"payout_id"`
	CampgroundID   string      `json:"campground_id"`
	StripeAmount   money.Money `json:"stripe_amount_cents"`
	ExpectedAmount money.Money `json:"expected_amount_cents"`
	Drift          money.Money `json:"drift_cents"`
	Components     Components  `json:"components"`
}

// Summarize 根据网关数据计算预期 payout 和漂移，超出范围的金额直接拒绝
func Summarize(in SummaryInput) (Summary, error) {
	if in.PayoutID == "" {
		return Summary{}, apperror.Validation("payout_id_required", "payout id is required")
	}

	expected, err := in.Components.Expected()
	if err != nil {
		return Summary{}, apperror.Wrap(apperror.KindValidation, "expected_amount_range", err)
	}
	drift, err := in.StripeAmount.Sub(expected)
	if err != nil {
		return Summary{}, apperror.Wrap(apperror.KindValidation, "drift_range", err)
	}

	return Summary{
		PayoutID:       in.PayoutID,
		CampgroundID:   in.CampgroundID,
		StripeAmount:   in.StripeAmount,
		ExpectedAmount: expected,
		Drift:          drift,
		Components:     in.Components,
	}, nil
}

// verify 复核 stripe = expected + drift
func (s Summary) verify() error {
	expected, err := s.Components.Expected()
	if err != nil || expected != s.ExpectedAmount {
		return apperror.InvariantViolation("expected_amount_matches_components",
			"payout %s: expected %d does not match components", s.PayoutID, s.ExpectedAmount)
	}
	total, err := s.ExpectedAmount.Add(s.Drift)
	if err != nil || total != s.StripeAmount {
		return apperror.InvariantViolation("drift_conserves_amount",
			"payout %s: expected %d + drift %d != stripe %d", s.PayoutID, s.ExpectedAmount, s.Drift, s.StripeAmount)
	}
	return nil
}
