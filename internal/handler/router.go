package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, mode string, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}

	r := gin.New()

	// 注册中间件
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		api.POST("/fees/calculate", h.CalculateFees)

		// 对账
		recon := api.Group("/reconciliation")
		{
			recon.POST("/process-payout", h.ProcessPayout)
			recon.POST("/compute-summary", h.ComputeSummary)
			recon.GET("/records", h.ListRecords)
			recon.GET("/records/:payout_id", h.GetRecord)
			recon.POST("/payout-requests/:payout_id/requeue", h.RequeuePayout)
		}

		// 账本
		ledger := api.Group("/ledger")
		{
			ledger.GET("/entries", h.ListLedgerEntries)
			ledger.GET("/accounts/:account/balance", h.GetAccountBalance)
		}

		api.PUT("/campgrounds/:campground_id/account", h.BindCampgroundAccount)

		// 支付
		payments := api.Group("/payments")
		{
			payments.POST("/create-intent", h.CreatePaymentIntent)
			payments.GET("/intents/:id", h.GetPaymentIntent)
			payments.POST("/intents/:id/capture", h.CapturePaymentIntent)
			payments.POST("/refund", h.CreateRefund)
			payments.POST("/webhook", h.StripeWebhook)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}
