package task

import (
	"github.com/bookbay/bms/internal/config"
	"github.com/bookbay/bms/internal/logger"
	"github.com/bookbay/bms/internal/sweeper"
	"github.com/go-co-op/gocron/v2"
)

// Manager 任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	sweeper   *sweeper.Sweeper
	config    *config.Config
}

// NewManager 创建新的任务管理器
func NewManager(s *sweeper.Sweeper, cfg *config.Config) *Manager {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("Failed to create scheduler: %v", err)
	}

	return &Manager{
		scheduler: scheduler,
		sweeper:   s,
		config:    cfg,
	}
}

// Start 启动任务管理器
func Start(s *sweeper.Sweeper, cfg *config.Config) *Manager {
	manager := NewManager(s, cfg)

	// 注册所有任务
	manager.RegisterJobs()

	// 启动调度器
	manager.scheduler.Start()

	logger.Info("Task manager started successfully")
	return manager
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() {
	// 注册订单期限扫描任务
	m.RegisterOrderExpiryJob()
}

// RegisterOrderExpiryJob 注册订单期限扫描任务
func (m *Manager) RegisterOrderExpiryJob() {
	job := NewOrderExpiryJob(m.sweeper, m.config)

	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
	}
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
