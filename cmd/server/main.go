package main

import (
	"time"

	"github.com/bookbay/bms/internal/commitment"
	"github.com/bookbay/bms/internal/config"
	"github.com/bookbay/bms/internal/gateway"
	"github.com/bookbay/bms/internal/handler"
	"github.com/bookbay/bms/internal/logger"
	"github.com/bookbay/bms/internal/notifier"
	"github.com/bookbay/bms/internal/order"
	"github.com/bookbay/bms/internal/payout"
	"github.com/bookbay/bms/internal/repository"
	"github.com/bookbay/bms/internal/router"
	"github.com/bookbay/bms/internal/split"
	"github.com/bookbay/bms/internal/sweeper"
	"github.com/bookbay/bms/internal/task"
	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	level := logger.ParseLogLevel(cfg.Log.Level)
	if cfg.Log.Output == "file" {
		l, err := logger.NewWithFileRotation(level, cfg.Log.File)
		if err != nil {
			logger.Fatal("Failed to initialize file logger: %v", err)
		}
		logger.SetDefaultLogger(l)
	} else if l, err := logger.New(level); err == nil {
		logger.SetDefaultLogger(l)
	}
	defer logger.Sync()

	// 初始化数据库
	db, err := repository.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	orderStore := repository.NewOrderStore(db)
	payoutStore := repository.NewPayoutStore(db)
	listingStore := repository.NewListingStore(db)
	sellerStore := repository.NewSellerStore(db)

	// 外部协作方
	gatewayClient := gateway.NewClient(cfg.Payment)
	var mailer notifier.Notifier = notifier.NopNotifier{}
	if cfg.Notify.Enabled {
		mailer = notifier.NewSMTPNotifier(cfg.Notify)
	}

	// 核心流程
	calc, err := split.NewCalculator(cfg.Payment.CommissionBps)
	if err != nil {
		logger.Fatal("Invalid commission configuration: %v", err)
	}

	commitWindow := time.Duration(cfg.Commitment.WindowHours) * time.Hour
	collectionWindow := time.Duration(cfg.Commitment.CollectionDays) * 24 * time.Hour

	engine := commitment.NewEngine(orderStore, listingStore, gatewayClient, mailer, collectionWindow)
	orderService := order.NewService(orderStore, listingStore, sellerStore, gatewayClient, mailer, commitWindow)
	payoutWorkflow := payout.NewWorkflow(payoutStore, orderStore, sellerStore, gatewayClient, mailer, calc, cfg.Payment.Currency)
	orderService.SetPayoutCreator(payoutWorkflow)
	expirySweeper := sweeper.NewSweeper(orderStore, engine, mailer, cfg.Sweep.Workers)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(router.Deps{
		Orders:  handler.NewOrderHandler(orderService, engine),
		Payouts: handler.NewPayoutHandler(payoutWorkflow, payoutStore),
		Sweep:   handler.NewSweepHandler(expirySweeper),
	}, cfg)

	// 启动定时任务
	manager := task.Start(expirySweeper, cfg)
	defer manager.Stop()

	// 启动服务器
	logger.Info("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}
