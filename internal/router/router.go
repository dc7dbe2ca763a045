package router

import (
	"time"

	"github.com/bookbay/bms/internal/config"
	"github.com/bookbay/bms/internal/handler"
	"github.com/bookbay/bms/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Deps 路由依赖
type Deps struct {
	Orders  *handler.OrderHandler
	Payouts *handler.PayoutHandler
	Sweep   *handler.SweepHandler
}

func Setup(deps Deps, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "bookbay-marketplace-service",
		})
	})

	webhookLimiter := middleware.NewRateLimiter(60, time.Minute)
	webhookLimiter.StartCleanup(5 * time.Minute)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 支付回调
		v1.POST("/webhooks/payment", webhookLimiter.Middleware(), deps.Orders.PaymentWebhook)

		// 订单相关路由
		orders := v1.Group("/orders")
		{
			orders.GET("/:id", deps.Orders.GetOrder)
			orders.POST("/:id/commit", deps.Orders.Commit)
			orders.POST("/:id/decline", deps.Orders.Decline)
			orders.POST("/:id/collected", deps.Orders.Collected)
			orders.POST("/:id/delivered", deps.Orders.Delivered)
		}

		// 管理端路由
		admin := v1.Group("/admin", middleware.AdminAuth(cfg.Admin.JWTSecret))
		{
			admin.GET("/payouts", deps.Payouts.ListPayouts)
			admin.POST("/payouts/:id/approve", deps.Payouts.ApprovePayout)
			admin.POST("/payouts/:id/deny", deps.Payouts.DenyPayout)
			admin.POST("/sweep", deps.Sweep.TriggerSweep)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
