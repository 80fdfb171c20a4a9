package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payprocessor/internal/config"
	"payprocessor/internal/gateway"
	"payprocessor/internal/handler"
	"payprocessor/internal/infrastructure/cache"
	"payprocessor/internal/infrastructure/database"
	"payprocessor/internal/infrastructure/lock"
	"payprocessor/internal/infrastructure/mq"
	"payprocessor/internal/job"
	"payprocessor/internal/logger"
	"payprocessor/internal/metrics"
	"payprocessor/internal/reconciliation"
	"payprocessor/internal/repository"
	"payprocessor/internal/service"
	"payprocessor/pkg/idgen"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker-id", 1, "雪花算法 workerID")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zlog, err := logger.New("payprocessor", cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	if err := run(cfg, *workerID, zlog); err != nil {
		zlog.Fatal("服务异常退出", zap.Error(err))
	}
}

func run(cfg *config.Config, workerID int64, zlog *zap.Logger) error {
	feeDefaults, err := cfg.FeeConfig()
	if err != nil {
		return err
	}
	thresholds, err := cfg.Thresholds()
	if err != nil {
		return err
	}

	// 初始化 ID 生成器
	idgen.Init(workerID)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheus(registry)

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL, cfg.Log.Development, zlog)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	// 初始化 Redis
	redisClient, err := cache.InitRedis(&cfg.Redis, zlog)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// 初始化 Kafka
	producer, err := mq.InitKafka(&cfg.Kafka, zlog)
	if err != nil {
		return err
	}
	defer producer.Close()

	// 仓储
	campgroundRepo := repository.NewCampgroundRepository(db)
	payoutRequestRepo := repository.NewPayoutRequestRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	// 网关与对账
	stripeGateway := gateway.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, recorder, zlog.Named("stripe"))
	orchestrator := reconciliation.NewOrchestrator(stripeGateway, thresholds, zlog.Named("reconciliation"))

	feeService := service.NewFeeService(feeDefaults, recorder, zlog)
	reconciliationService := service.NewReconciliationService(
		orchestrator,
		service.NewGormReconciliationStore(db, cfg.Kafka.Topic.DriftAlert),
		lock.NewPayoutLocker(redisClient, zlog.Named("lock")),
		recorder,
		zlog,
	)
	paymentService := service.NewPaymentService(stripeGateway, campgroundRepo, feeService, zlog)
	ledgerService := service.NewLedgerService(ledgerRepo)
	webhookService := service.NewWebhookService(stripeGateway, campgroundRepo, payoutRequestRepo, outboxRepo, cfg.Kafka.Topic.DomainEvent, zlog)
	payoutRequestService := service.NewPayoutRequestService(payoutRequestRepo, zlog)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(outboxRepo, producer, cfg.Business.MaxRetryCount, recorder, zlog)
	go outboxSender.Start(ctx)

	payoutRetryJob := job.NewPayoutRetryJob(
		payoutRequestRepo,
		reconciliationService,
		cfg.Business.MaxRetryCount,
		time.Duration(cfg.Business.PayoutRetryIntervalSeconds)*time.Second,
		zlog,
	)
	go payoutRetryJob.Start(ctx)

	// 设置路由
	readiness := handler.ReadinessFunc(func(ctx context.Context) error {
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("mysql: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	h := handler.NewHandler(feeService, reconciliationService, ledgerService, paymentService, webhookService, payoutRequestService, readiness, zlog)
	router := handler.SetupRouter(h, cfg.Server.Mode, registry, zlog)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zlog.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	zlog.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("服务关闭异常", zap.Error(err))
	}

	zlog.Info("服务已关闭")
	return nil
}
