package task

import (
	"context"
	"time"

	"github.com/bookbay/bms/internal/config"
	"github.com/bookbay/bms/internal/logger"
	"github.com/bookbay/bms/internal/sweeper"
	"github.com/go-co-op/gocron/v2"
)

// OrderExpiryJob 订单期限扫描任务
type OrderExpiryJob struct {
	sweeper *sweeper.Sweeper
	config  *config.Config
}

// NewOrderExpiryJob 创建订单期限扫描任务
func NewOrderExpiryJob(s *sweeper.Sweeper, cfg *config.Config) *OrderExpiryJob {
	return &OrderExpiryJob{
		sweeper: s,
		config:  cfg,
	}
}

// GetName 获取任务名称
func (j *OrderExpiryJob) GetName() string {
	return "order_expiry_sweeper"
}

// GetSchedule 获取调度配置
func (j *OrderExpiryJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Sweep.Interval) * time.Second)
}

// Execute 执行任务
func (j *OrderExpiryJob) Execute() {
	logger.Info("Starting order expiry sweep")

	summary, err := j.sweeper.Run(context.Background())
	if err != nil {
		logger.Error("Order expiry sweep failed: %v", err)
		return
	}

	logger.Info("Order expiry sweep completed. Expired %d orders, flagged %d, refunded %d",
		summary.Expired, summary.Flagged, summary.RefundedTotal)
}
