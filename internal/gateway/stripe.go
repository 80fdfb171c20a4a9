// Package gateway 封装 Stripe API，供支付和对账服务使用
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"payprocessor/internal/apperror"
	"payprocessor/internal/metrics"
	"payprocessor/internal/reconciliation"
	"payprocessor/pkg/money"
)

type PaymentIntentRequest struct {
	Amount         money.Money
	ApplicationFee money.Money
	Currency       string
	Destination    string // 接收转账的连接账户
	Customer       string
	PaymentMethod  string
	CaptureMethod  string // automatic / manual，空值使用 Stripe 默认
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type PaymentIntent struct {
	ID             string      `json:"payment_intent_id"`
	ClientSecret   string      `json:"client_secret,omitempty"`
	Status         string      `json:"status"`
	Amount         money.Money `json:"amount_cents"`
	AmountReceived money.Money `json:"amount_received_cents"`
	Currency       string      `json:"currency"`
	CaptureMethod  string      `json:"capture_method,omitempty"`
	LatestChargeID string      `json:"latest_charge_id,omitempty"`
}

// CaptureRequest 请款，AmountToCapture 为 0 时按授权金额全额请款
type CaptureRequest struct {
	PaymentIntentID    string
	AmountToCapture    money.Money
	ConnectedAccountID string
	IdempotencyKey     string
}

type Capture struct {
	ID             string      `json:"payment_intent_id"`
	Status         string      `json:"status"`
	AmountCaptured money.Money `json:"amount_captured_cents"`
	ReceiptURL     string      `json:"receipt_url,omitempty"`
}

// RefundRequest 退款，Amount 为 0 表示全额退款
// ConnectedAccountID 非空时在连接账户上发起
type RefundRequest struct {
	PaymentIntentID    string
	Amount             money.Money
	Reason             string
	ConnectedAccountID string
	IdempotencyKey     string
}

type Refund struct {
	ID              string      `json:"refund_id"`
	PaymentIntentID string      `json:"payment_intent_id"`
	Status          string      `json:"status"`
	Amount          money.Money `json:"amount_cents"`
	Currency        string      `json:"currency"`
}

type Stripe struct {
	api           *client.API
	webhookSecret string
	recorder      metrics.Recorder
	logger        *zap.Logger
}

func NewStripe(secretKey, webhookSecret string, recorder metrics.Recorder, logger *zap.Logger) *Stripe {
	return NewStripeWithBackends(client.New(secretKey, nil), webhookSecret, recorder, logger)
}

// NewStripeWithBackends 使用预先配置好的 client，例如指向测试服务器
func NewStripeWithBackends(api *client.API, webhookSecret string, recorder metrics.Recorder, logger *zap.Logger) *Stripe {
	return &Stripe{
		api:           api,
		webhookSecret: webhookSecret,
		recorder:      recorder,
		logger:        logger,
	}
}

// FetchPayout 读取连接账户上的 payout，并归类其结算的每一笔余额流水
func (s *Stripe) FetchPayout(ctx context.Context, payoutID, stripeAccountID string) (_ *reconciliation.PayoutData, err error) {
	start := time.Now()
	defer func() { s.recorder.RecordGatewayCall("fetch_payout", time.Since(start), err) }()

	params := &stripe.PayoutParams{}
	params.Context = ctx
	params.SetStripeAccount(stripeAccountID)

	payout, err := s.api.Payouts.Get(payoutID, params)
	if err != nil {
		return nil, classify("fetch_payout", err)
	}

	listParams := &stripe.BalanceTransactionListParams{Payout: stripe.String(payoutID)}
	listParams.Context = ctx
	listParams.SetStripeAccount(stripeAccountID)

	var txns []*stripe.BalanceTransaction
	iter := s.api.BalanceTransactions.List(listParams)
	for iter.Next() {
		txns = append(txns, iter.BalanceTransaction())
	}
	if err := iter.Err(); err != nil {
		return nil, classify("list_balance_transactions", err)
	}

	components, skipped, err := Categorize(txns)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		s.logger.Warn("payout 中存在无法归类的余额流水",
			zap.String("payout_id", payoutID),
			zap.Strings("balance_transaction_ids", skipped))
	}

	return &reconciliation.PayoutData{
		PayoutID:    payout.ID,
		Amount:      money.Cents(payout.Amount),
		Currency:    string(payout.Currency),
		Status:      string(payout.Status),
		ArrivalDate: time.Unix(payout.ArrivalDate, 0).UTC(),
		Components:  components,
	}, nil
}

// Categorize 把余额流水汇总为对账分项
// charge 按总额计入 payments，fee_details 拆成网关费和平台费；
// 退款和争议调整按正数计入扣减项；payout 自身的流水跳过
// 其他类型放进 skipped 不参与汇总，最终体现为漂移
func Categorize(txns []*stripe.BalanceTransaction) (c reconciliation.Components, skipped []string, err error) {
	add := func(dst *money.Money, v int64) {
		if err != nil {
			return
		}
		*dst, err = dst.Add(money.Cents(v))
	}

	for _, bt := range txns {
		switch string(bt.Type) {
		case "charge", "payment":
			add(&c.Payments, bt.Amount)
		case "refund", "payment_refund":
			add(&c.Refunds, -bt.Amount)
		case "adjustment", "dispute":
			if bt.ReportingCategory != "" && string(bt.ReportingCategory) != "dispute" && string(bt.ReportingCategory) != "dispute_reversal" {
				skipped = append(skipped, bt.ID)
				continue
			}
			add(&c.Chargebacks, -bt.Amount)
		case "payout":
			continue
		default:
			skipped = append(skipped, bt.ID)
			continue
		}

		for _, fd := range bt.FeeDetails {
			if string(fd.Type) == "application_fee" {
				add(&c.PlatformFees, fd.Amount)
			} else {
				add(&c.GatewayFees, fd.Amount)
			}
		}
	}

	if err != nil {
		return reconciliation.Components{}, nil, apperror.Wrap(apperror.KindValidation, "payout_component_range", err)
	}
	return c, skipped, nil
}

func (s *Stripe) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (_ *PaymentIntent, err error) {
	start := time.Now()
	defer func() { s.recorder.RecordGatewayCall("create_payment_intent", time.Since(start), err) }()

	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(req.Amount.Int64()),
		Currency:             stripe.String(req.Currency),
		ApplicationFeeAmount: stripe.Int64(req.ApplicationFee.Int64()),
		OnBehalfOf:           stripe.String(req.Destination),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.Destination),
		},
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if req.Customer != "" {
		params.Customer = stripe.String(req.Customer)
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethod)
	}
	if req.CaptureMethod != "" {
		params.CaptureMethod = stripe.String(req.CaptureMethod)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify("create_payment_intent", err)
	}
	return toPaymentIntent(pi), nil
}

// GetPaymentIntent 查询支付意图，connectedAccountID 为空时查询平台账户
func (s *Stripe) GetPaymentIntent(ctx context.Context, id, connectedAccountID string) (_ *PaymentIntent, err error) {
	start := time.Now()
	defer func() { s.recorder.RecordGatewayCall("get_payment_intent", time.Since(start), err) }()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if connectedAccountID != "" {
		params.SetStripeAccount(connectedAccountID)
	}

	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, classify("get_payment_intent", err)
	}
	return toPaymentIntent(pi), nil
}

// CapturePaymentIntent 对 manual 模式的支付意图请款，并从 latest_charge 取收据地址
// 收据查询失败不影响请款结果
func (s *Stripe) CapturePaymentIntent(ctx context.Context, req CaptureRequest) (_ *Capture, err error) {
	start := time.Now()
	defer func() { s.recorder.RecordGatewayCall("capture_payment_intent", time.Since(start), err) }()

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if req.AmountToCapture.IsPositive() {
		params.AmountToCapture = stripe.Int64(req.AmountToCapture.Int64())
	}
	if req.ConnectedAccountID != "" {
		params.SetStripeAccount(req.ConnectedAccountID)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.Capture(req.PaymentIntentID, params)
	if err != nil {
		return nil, classify("capture_payment_intent", err)
	}

	captured := pi.AmountReceived
	if captured == 0 {
		captured = pi.Amount
	}
	result := &Capture{
		ID:             pi.ID,
		Status:         string(pi.Status),
		AmountCaptured: money.Cents(captured),
	}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		result.ReceiptURL = s.receiptURL(ctx, pi.LatestCharge.ID, req.ConnectedAccountID)
	}
	return result, nil
}

func (s *Stripe) receiptURL(ctx context.Context, chargeID, connectedAccountID string) string {
	start := time.Now()
	params := &stripe.ChargeParams{}
	params.Context = ctx
	if connectedAccountID != "" {
		params.SetStripeAccount(connectedAccountID)
	}

	ch, err := s.api.Charges.Get(chargeID, params)
	s.recorder.RecordGatewayCall("get_charge", time.Since(start), err)
	if err != nil {
		s.logger.Warn("查询收据地址失败", zap.String("charge_id", chargeID), zap.Error(err))
		return ""
	}
	return ch.ReceiptURL
}

func toPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	intent := &PaymentIntent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         string(pi.Status),
		Amount:         money.Cents(pi.Amount),
		AmountReceived: money.Cents(pi.AmountReceived),
		Currency:       string(pi.Currency),
		CaptureMethod:  string(pi.CaptureMethod),
	}
	if pi.LatestCharge != nil {
		intent.LatestChargeID = pi.LatestCharge.ID
	}
	return intent
}

func (s *Stripe) CreateRefund(ctx context.Context, req RefundRequest) (_ *Refund, err error) {
	start := time.Now()
	defer func() { s.recorder.RecordGatewayCall("create_refund", time.Since(start), err) }()

	params := &stripe.RefundParams{PaymentIntent: stripe.String(req.PaymentIntentID)}
	params.Context = ctx
	if req.Amount.IsPositive() {
		params.Amount = stripe.Int64(req.Amount.Int64())
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}
	if req.ConnectedAccountID != "" {
		params.SetStripeAccount(req.ConnectedAccountID)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := s.api.Refunds.New(params)
	if err != nil {
		return nil, classify("create_refund", err)
	}

	refund := &Refund{
		ID:              r.ID,
		PaymentIntentID: req.PaymentIntentID,
		Status:          string(r.Status),
		Amount:          money.Cents(r.Amount),
		Currency:        string(r.Currency),
	}
	return refund, nil
}

// ConstructEvent 校验 Stripe-Signature 请求头并解析事件
func (s *Stripe) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	event, err := stripewebhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, apperror.Validation("webhook_signature", "webhook signature verification failed: %v", err)
	}
	return event, nil
}

// classify 把 Stripe 错误映射到服务错误类型
// 对象不存在为 NotFound，请求被拒为 ValidationError，网络错误、5xx 和限流为 UpstreamUnavailable
func classify(op string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return apperror.UpstreamUnavailable(op, err)
	}

	switch {
	case se.HTTPStatusCode == http.StatusNotFound:
		return apperror.Wrap(apperror.KindNotFound, "gateway_object_exists", err)
	case se.HTTPStatusCode == http.StatusTooManyRequests:
		return apperror.UpstreamUnavailable(op, err)
	case se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500:
		return apperror.Wrap(apperror.KindValidation, "gateway_request_accepted", err)
	default:
		return apperror.UpstreamUnavailable(op, err)
	}
}
