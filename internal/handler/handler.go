package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"payprocessor/internal/apperror"
	"payprocessor/internal/fee"
	"payprocessor/internal/gateway"
	"payprocessor/internal/model"
	"payprocessor/internal/reconciliation"
	"payprocessor/internal/service"
	"payprocessor/pkg/money"
	"payprocessor/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// Webhook 请求体上限，Stripe 事件远小于这个值
	maxWebhookBodyBytes = 64 << 10
	readinessTimeout    = 2 * time.Second
)

type FeeCalculator interface {
	Calculate(amount money.Money, override *fee.Config) (fee.Breakdown, error)
}

type Reconciler interface {
	ProcessPayout(ctx context.Context, req *service.ProcessPayoutRequest) (*service.ProcessPayoutResult, error)
	ComputeSummary(in reconciliation.SummaryInput) (*service.ComputeSummaryResult, error)
	GetRecord(ctx context.Context, payoutID string) (*reconciliation.Record, error)
	ListRecords(ctx context.Context, campgroundID string, page, pageSize int) ([]*reconciliation.Record, int64, error)
}

type LedgerQuerier interface {
	EntriesForReference(ctx context.Context, kind, referenceID string) (*service.ReferenceEntries, error)
	AccountBalance(ctx context.Context, account string) (*service.AccountBalance, error)
}

type Payments interface {
	CreatePaymentIntent(ctx context.Context, req *service.CreatePaymentIntentRequest) (*service.CreatePaymentIntentResponse, error)
	GetPaymentIntent(ctx context.Context, id, connectedAccountID string) (*gateway.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, id string, req *service.CapturePaymentIntentRequest) (*gateway.Capture, error)
	CreateRefund(ctx context.Context, req *service.CreateRefundRequest) (*gateway.Refund, error)
	BindCampgroundAccount(ctx context.Context, campgroundID string, req *service.BindCampgroundAccountRequest) (*model.CampgroundAccount, error)
}

type WebhookHandler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*service.WebhookResult, error)
}

type PayoutRequests interface {
	Requeue(ctx context.Context, payoutID string) (*model.PayoutRequest, error)
}

// ReadinessChecker 检查依赖（MySQL、Redis）是否可用
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// ReadinessFunc 把普通函数适配成 ReadinessChecker
type ReadinessFunc func(ctx context.Context) error

func (f ReadinessFunc) Ready(ctx context.Context) error {
	return f(ctx)
}

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	fees           FeeCalculator
	reconciliation Reconciler
	ledger         LedgerQuerier
	payments       Payments
	webhooks       WebhookHandler
	payoutRequests PayoutRequests
	readiness      ReadinessChecker
	logger         *zap.Logger
}

// NewHandler 创建处理器实例
func NewHandler(fees FeeCalculator, reconciler Reconciler, ledger LedgerQuerier, payments Payments, webhooks WebhookHandler,
	payoutRequests PayoutRequests, readiness ReadinessChecker, logger *zap.Logger) *Handler {
	return &Handler{
		fees:           fees,
		reconciliation: reconciler,
		ledger:         ledger,
		payments:       payments,
		webhooks:       webhooks,
		payoutRequests: payoutRequests,
		readiness:      readiness,
		logger:         logger,
	}
}

// Ready 就绪检查，依赖不可用时返回 503 让负载均衡摘掉实例
// GET /ready
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := h.readiness.Ready(ctx); err != nil {
		h.logger.Warn("就绪检查失败", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// fail 记录日志并按错误类型返回
func (h *Handler) fail(c *gin.Context, op string, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("kind", string(apperror.KindOf(err))),
		zap.String("rule", apperror.RuleOf(err)),
		zap.Error(err),
	}
	switch apperror.KindOf(err) {
	case apperror.KindValidation, apperror.KindInvalidAmount, apperror.KindNotFound:
		h.logger.Info("请求被拒绝", fields...)
	default:
		h.logger.Error("请求处理失败", fields...)
	}
	response.FromError(c, err)
}

// ============================================================
// 手续费
// ============================================================

// CalculateFeesRequest fee_config 不传时使用默认费率
type CalculateFeesRequest struct {
	AmountCents money.Money `json:"amount_cents"`
	FeeConfig   *fee.Config `json:"fee_config"`
}

// CalculateFees 计算手续费明细
// POST /api/v1/fees/calculate
func (h *Handler) CalculateFees(c *gin.Context) {
	var req CalculateFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	breakdown, err := h.fees.Calculate(req.AmountCents, req.FeeConfig)
	if err != nil {
		h.fail(c, "calculate_fees", err)
		return
	}
	response.Success(c, breakdown)
}

// ============================================================
// 对账
// ============================================================

// ProcessPayout 对一个 payout 执行对账，重复调用返回已有结果
// POST /api/v1/reconciliation/process-payout
func (h *Handler) ProcessPayout(c *gin.Context) {
	var req service.ProcessPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.reconciliation.ProcessPayout(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "process_payout", err)
		return
	}
	response.Success(c, result)
}

// ComputeSummaryRequest 直接给出各项金额，不访问网关
type ComputeSummaryRequest struct {
	PayoutID          string      `json:"payout_id" binding:"required"`
	CampgroundID      string      `json:"campground_id" binding:"required"`
	StripeAmountCents money.Money `json:"stripe_amount_cents"`
	PaymentsCents     money.Money `json:"payments_cents"`
	RefundsCents      money.Money `json:"refunds_cents"`
	GatewayFeesCents  money.Money `json:"gateway_fees_cents"`
	PlatformFeesCents money.Money `json:"platform_fees_cents"`
	ChargebacksCents  money.Money `json:"chargebacks_cents"`
}

// ComputeSummary 计算对账摘要和漂移等级
// POST /api/v1/reconciliation/compute-summary
func (h *Handler) ComputeSummary(c *gin.Context) {
	var req ComputeSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.reconciliation.ComputeSummary(reconciliation.SummaryInput{
		PayoutID:     req.PayoutID,
		CampgroundID: req.CampgroundID,
		StripeAmount: req.StripeAmountCents,
		Components: reconciliation.Components{
			Payments:     req.PaymentsCents,
			Refunds:      req.RefundsCents,
			GatewayFees:  req.GatewayFeesCents,
			PlatformFees: req.PlatformFeesCents,
			Chargebacks:  req.ChargebacksCents,
		},
	})
	if err != nil {
		h.fail(c, "compute_summary", err)
		return
	}
	response.Success(c, result)
}

// GetRecord 查询对账记录
// GET /api/v1/reconciliation/records/:payout_id
func (h *Handler) GetRecord(c *gin.Context) {
	record, err := h.reconciliation.GetRecord(c.Request.Context(), c.Param("payout_id"))
	if err != nil {
		h.fail(c, "get_record", err)
		return
	}
	response.Success(c, record)
}

// ListRecords 查询营地的对账记录
// GET /api/v1/reconciliation/records?campground_id=xxx&page=1&page_size=20
func (h *Handler) ListRecords(c *gin.Context) {
	campgroundID := c.Query("campground_id")
	if campgroundID == "" {
		response.ParamError(c, "campground_id 参数不能为空")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	records, total, err := h.reconciliation.ListRecords(c.Request.Context(), campgroundID, page, pageSize)
	if err != nil {
		h.fail(c, "list_records", err)
		return
	}

	response.Success(c, gin.H{
		"list":      records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// RequeuePayout 把重试耗尽的 payout 重新放回对账队列
// POST /api/v1/reconciliation/payout-requests/:payout_id/requeue
func (h *Handler) RequeuePayout(c *gin.Context) {
	req, err := h.payoutRequests.Requeue(c.Request.Context(), c.Param("payout_id"))
	if err != nil {
		h.fail(c, "requeue_payout", err)
		return
	}
	response.Success(c, req)
}

// ============================================================
// 账本
// ============================================================

// ListLedgerEntries 查询某个 payout / payment 的分录
// GET /api/v1/ledger/entries?reference_kind=payout&reference_id=po_xxx
func (h *Handler) ListLedgerEntries(c *gin.Context) {
	entries, err := h.ledger.EntriesForReference(c.Request.Context(), c.Query("reference_kind"), c.Query("reference_id"))
	if err != nil {
		h.fail(c, "list_ledger_entries", err)
		return
	}
	response.Success(c, entries)
}

// GetAccountBalance 查询账户余额（借方减贷方）
// GET /api/v1/ledger/accounts/:account/balance
func (h *Handler) GetAccountBalance(c *gin.Context) {
	balance, err := h.ledger.AccountBalance(c.Request.Context(), c.Param("account"))
	if err != nil {
		h.fail(c, "account_balance", err)
		return
	}
	response.Success(c, balance)
}

// ============================================================
// 营地与支付
// ============================================================

// BindCampgroundAccount 绑定营地的 Stripe 连接账户
// PUT /api/v1/campgrounds/:campground_id/account
func (h *Handler) BindCampgroundAccount(c *gin.Context) {
	var req service.BindCampgroundAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.payments.BindCampgroundAccount(c.Request.Context(), c.Param("campground_id"), &req)
	if err != nil {
		h.fail(c, "bind_campground_account", err)
		return
	}
	response.Success(c, account)
}

// CreatePaymentIntent 创建支付意图
// POST /api/v1/payments/create-intent
//
// 幂等键优先取请求体，其次取 Idempotency-Key 请求头，都没有时服务端生成
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	var req service.CreatePaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.payments.CreatePaymentIntent(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "create_payment_intent", err)
		return
	}
	response.Success(c, result)
}

// GetPaymentIntent 查询支付意图
// GET /api/v1/payments/intents/:id?connected_account_id=acct_xxx
func (h *Handler) GetPaymentIntent(c *gin.Context) {
	intent, err := h.payments.GetPaymentIntent(c.Request.Context(), c.Param("id"), c.Query("connected_account_id"))
	if err != nil {
		h.fail(c, "get_payment_intent", err)
		return
	}
	response.Success(c, intent)
}

// CapturePaymentIntent 对 manual 模式的支付意图请款，请求体可以为空
// POST /api/v1/payments/intents/:id/capture
func (h *Handler) CapturePaymentIntent(c *gin.Context) {
	var req service.CapturePaymentIntentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	capture, err := h.payments.CapturePaymentIntent(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.fail(c, "capture_payment_intent", err)
		return
	}
	response.Success(c, capture)
}

// CreateRefund 退款，amount_cents 不传为全额退款
// POST /api/v1/payments/refund
func (h *Handler) CreateRefund(c *gin.Context) {
	var req service.CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	refund, err := h.payments.CreateRefund(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "create_refund", err)
		return
	}
	response.Success(c, refund)
}

// StripeWebhook 接收 Stripe 事件
// POST /api/v1/payments/webhook
//
// 与其他接口不同，这里要用 HTTP 状态码告诉 Stripe 是否需要重投：
// 验签或解析失败返回 400，存储失败返回 500，其余返回 200
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Code: response.CodeParamError, Message: "读取请求体失败"})
		return
	}

	result, err := h.webhooks.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		status := http.StatusInternalServerError
		if apperror.KindOf(err) == apperror.KindValidation {
			status = http.StatusBadRequest
		}
		h.logger.Warn("Webhook 处理失败",
			zap.Int("status", status),
			zap.String("rule", apperror.RuleOf(err)),
			zap.Error(err))
		c.JSON(status, response.Build(err))
		return
	}
	response.Success(c, result)
}
