package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"payprocessor/internal/apperror"
	"payprocessor/internal/fee"
	"payprocessor/internal/gateway"
	"payprocessor/internal/model"
	"payprocessor/internal/repository"
	"payprocessor/pkg/idgen"
	"payprocessor/pkg/money"

	"go.uber.org/zap"
)

// PaymentGateway 由 gateway.Stripe 实现
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req gateway.PaymentIntentRequest) (*gateway.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id, connectedAccountID string) (*gateway.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, req gateway.CaptureRequest) (*gateway.Capture, error)
	CreateRefund(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error)
}

// CampgroundDirectory 营地与连接账户的映射，由 repository.CampgroundRepository 实现
type CampgroundDirectory interface {
	GetByCampgroundID(ctx context.Context, campgroundID string) (*model.CampgroundAccount, error)
	GetByStripeAccountID(ctx context.Context, stripeAccountID string) (*model.CampgroundAccount, error)
	Upsert(ctx context.Context, account *model.CampgroundAccount) error
}

type PaymentService struct {
	gateway     PaymentGateway
	campgrounds CampgroundDirectory
	fees        *FeeService
	logger      *zap.Logger
}

func NewPaymentService(gw PaymentGateway, campgrounds CampgroundDirectory, fees *FeeService, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		gateway:     gw,
		campgrounds: campgrounds,
		fees:        fees,
		logger:      logger,
	}
}

type CreatePaymentIntentRequest struct {
	CampgroundID    string      `json:"campground_id" binding:"required"`
	ReservationID   string      `json:"reservation_id"`
	AmountCents     money.Money `json:"amount_cents"`
	Currency        string      `json:"currency" binding:"required"`
	CustomerID      string      `json:"customer_id"`
	PaymentMethodID string      `json:"payment_method_id"`
	CaptureMethod   string      `json:"capture_method"` // automatic / manual
	Description     string      `json:"description"`
	IdempotencyKey  string      `json:"idempotency_key"` // 客户端不传时服务端生成
	FeeConfig       *fee.Config `json:"fee_config,omitempty"`
}

var captureMethods = map[string]bool{
	"automatic":       true,
	"automatic_async": true,
	"manual":          true,
}

type CreatePaymentIntentResponse struct {
	PaymentIntent  *gateway.PaymentIntent `json:"payment_intent"`
	Fees           fee.Breakdown          `json:"fees"`
	IdempotencyKey string                 `json:"idempotency_key"`
}

// CreatePaymentIntent 计算手续费后在连接账户上创建 destination charge
// 付款人支付 charge_amount，平台通过 application_fee 留下平台手续费
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, req *CreatePaymentIntentRequest) (*CreatePaymentIntentResponse, error) {
	if !req.AmountCents.IsPositive() {
		return nil, apperror.Validation("amount_positive", "amount %d must be > 0", req.AmountCents)
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if req.CaptureMethod != "" && !captureMethods[req.CaptureMethod] {
		return nil, apperror.Validation("capture_method", "unknown capture method %q", req.CaptureMethod)
	}

	account, err := s.lookupCampground(ctx, req.CampgroundID)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.fees.Calculate(req.AmountCents, req.FeeConfig)
	if err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = idgen.GenerateIdempotencyKey("pi")
	}

	metadata := map[string]string{
		"campground_id":      req.CampgroundID,
		"base_amount_cents":  strconv.FormatInt(breakdown.BaseAmount.Int64(), 10),
		"platform_fee_cents": strconv.FormatInt(breakdown.PlatformFee.Int64(), 10),
		"gateway_fee_cents":  strconv.FormatInt(breakdown.GatewayFee.Int64(), 10),
	}
	if req.ReservationID != "" {
		metadata["reservation_id"] = req.ReservationID
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, gateway.PaymentIntentRequest{
		Amount:         breakdown.ChargeAmount,
		ApplicationFee: breakdown.ApplicationFee,
		Currency:       currency,
		Destination:    account.StripeAccountID,
		Customer:       req.CustomerID,
		PaymentMethod:  req.PaymentMethodID,
		CaptureMethod:  req.CaptureMethod,
		Description:    req.Description,
		Metadata:       metadata,
		IdempotencyKey: key,
	})
	if err != nil {
		s.logger.Warn("创建支付意图失败",
			zap.String("campground_id", req.CampgroundID),
			zap.String("idempotency_key", key),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("支付意图创建成功",
		zap.String("payment_intent_id", intent.ID),
		zap.String("campground_id", req.CampgroundID),
		zap.Int64("charge_amount_cents", breakdown.ChargeAmount.Int64()),
		zap.Int64("application_fee_cents", breakdown.ApplicationFee.Int64()))

	return &CreatePaymentIntentResponse{
		PaymentIntent:  intent,
		Fees:           breakdown,
		IdempotencyKey: key,
	}, nil
}

// GetPaymentIntent 查询支付意图，connectedAccountID 为空时查询平台账户
func (s *PaymentService) GetPaymentIntent(ctx context.Context, id, connectedAccountID string) (*gateway.PaymentIntent, error) {
	if id == "" {
		return nil, apperror.Validation("payment_intent_id_required", "payment intent id is required")
	}
	return s.gateway.GetPaymentIntent(ctx, id, connectedAccountID)
}

type CapturePaymentIntentRequest struct {
	AmountToCapture    money.Money `json:"amount_to_capture"` // 0 表示按授权金额全额请款
	ConnectedAccountID string      `json:"connected_account_id"`
	IdempotencyKey     string      `json:"idempotency_key"`
}

// CapturePaymentIntent 对 capture_method=manual 的支付意图请款
func (s *PaymentService) CapturePaymentIntent(ctx context.Context, id string, req *CapturePaymentIntentRequest) (*gateway.Capture, error) {
	if id == "" {
		return nil, apperror.Validation("payment_intent_id_required", "payment intent id is required")
	}
	if req.AmountToCapture.IsNegative() {
		return nil, apperror.Validation("capture_amount_positive", "amount to capture %d must be > 0 or omitted", req.AmountToCapture)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = idgen.GenerateIdempotencyKey("cap")
	}

	capture, err := s.gateway.CapturePaymentIntent(ctx, gateway.CaptureRequest{
		PaymentIntentID:    id,
		AmountToCapture:    req.AmountToCapture,
		ConnectedAccountID: req.ConnectedAccountID,
		IdempotencyKey:     key,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("支付意图请款成功",
		zap.String("payment_intent_id", id),
		zap.Int64("amount_captured_cents", capture.AmountCaptured.Int64()),
		zap.Bool("has_receipt", capture.ReceiptURL != ""))
	return capture, nil
}

type CreateRefundRequest struct {
	PaymentIntentID    string      `json:"payment_intent_id" binding:"required"`
	AmountCents        money.Money `json:"amount_cents"` // 0 表示全额退款
	Reason             string      `json:"reason"`
	ConnectedAccountID string      `json:"connected_account_id"` // 非空时在连接账户上退款
	IdempotencyKey     string      `json:"idempotency_key"`
}

var refundReasons = map[string]bool{
	"duplicate":             true,
	"fraudulent":            true,
	"requested_by_customer": true,
}

func (s *PaymentService) CreateRefund(ctx context.Context, req *CreateRefundRequest) (*gateway.Refund, error) {
	if req.PaymentIntentID == "" {
		return nil, apperror.Validation("payment_intent_id_required", "payment intent id is required")
	}
	if req.AmountCents.IsNegative() {
		return nil, apperror.Validation("refund_amount_positive", "refund amount %d must be > 0 or omitted", req.AmountCents)
	}
	if req.Reason != "" && !refundReasons[req.Reason] {
		return nil, apperror.Validation("refund_reason", "unknown refund reason %q", req.Reason)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = idgen.GenerateIdempotencyKey("re")
	}

	refund, err := s.gateway.CreateRefund(ctx, gateway.RefundRequest{
		PaymentIntentID:    req.PaymentIntentID,
		Amount:             req.AmountCents,
		Reason:             req.Reason,
		ConnectedAccountID: req.ConnectedAccountID,
		IdempotencyKey:     key,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("退款创建成功",
		zap.String("refund_id", refund.ID),
		zap.String("payment_intent_id", req.PaymentIntentID),
		zap.Int64("amount_cents", refund.Amount.Int64()))
	return refund, nil
}

type BindCampgroundAccountRequest struct {
	StripeAccountID string `json:"stripe_account_id" binding:"required"`
	Active          *bool  `json:"active"`
}

// BindCampgroundAccount 绑定营地的 Stripe 连接账户
func (s *PaymentService) BindCampgroundAccount(ctx context.Context, campgroundID string, req *BindCampgroundAccountRequest) (*model.CampgroundAccount, error) {
	if campgroundID == "" {
		return nil, apperror.Validation("campground_id_required", "campground id is required")
	}
	if !strings.HasPrefix(req.StripeAccountID, "acct_") {
		return nil, apperror.Validation("stripe_account_id_format", "stripe account id %q must start with acct_", req.StripeAccountID)
	}

	account := &model.CampgroundAccount{
		CampgroundID:    campgroundID,
		StripeAccountID: req.StripeAccountID,
		Active:          req.Active == nil || *req.Active,
	}
	if err := s.campgrounds.Upsert(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *PaymentService) lookupCampground(ctx context.Context, campgroundID string) (*model.CampgroundAccount, error) {
	if campgroundID == "" {
		return nil, apperror.Validation("campground_id_required", "campground id is required")
	}
	account, err := s.campgrounds.GetByCampgroundID(ctx, campgroundID)
	if err != nil {
		if errors.Is(err, repository.ErrCampgroundAccountNotFound) {
			return nil, apperror.NotFound("campground_account_exists", "campground %s has no connected account", campgroundID)
		}
		return nil, err
	}
	return account, nil
}

func normalizeCurrency(c string) (string, error) {
	c = strings.ToLower(strings.TrimSpace(c))
	if len(c) != 3 {
		return "", apperror.Validation("currency_format", "currency %q must be a 3-letter ISO code", c)
	}
	for _, r := range c {
		if r < 'a' || r > 'z' {
			return "", apperror.Validation("currency_format", "currency %q must be a 3-letter ISO code", c)
		}
	}
	return c, nil
}
