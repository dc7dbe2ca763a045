package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookbay/bms/internal/errs"
	"github.com/bookbay/bms/internal/model"
	"gorm.io/gorm"
)

// PayoutStore 打款记录存储
type PayoutStore struct {
	db *gorm.DB
}

// NewPayoutStore 创建打款记录存储
func NewPayoutStore(db *gorm.DB) *PayoutStore {
	return &PayoutStore{db: db}
}

// Create 创建打款记录。同一订单同时只允许一条非denied记录，
// 重复的送达事件返回ErrAlreadyExists
func (s *PayoutStore) Create(ctx context.Context, payout *model.PayoutModel) error {
	var existing model.PayoutModel
	err := s.db.WithContext(ctx).
		Where("order_id = ? AND status <> ?", payout.OrderId, model.ReviewStatusDenied).
		First(&existing).Error
	if err == nil {
		return fmt.Errorf("payout for order %s: %w", payout.OrderId, errs.ErrAlreadyExists)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check existing payout: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(payout).Error; err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}

	return nil
}

// Get 按ID查询打款记录
func (s *PayoutStore) Get(ctx context.Context, id string) (*model.PayoutModel, error) {
	var payout model.PayoutModel
	if err := s.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payout %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch payout %s: %w", id, err)
	}
	return &payout, nil
}

// Transition 打款状态CAS转换，语义与OrderStore.Transition一致
func (s *PayoutStore) Transition(ctx context.Context, id string, from, to model.ReviewStatus, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).
		Model(&model.PayoutModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to transition payout %s %s->%s: %w", id, from, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payout %s %s->%s: %w", id, from, to, errs.ErrInvalidTransition)
	}

	return nil
}

// Flag 标记打款需要人工干预（转账失败待重试等）
func (s *PayoutStore) Flag(ctx context.Context, id, reason string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&model.PayoutModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"flagged_at":  &now,
			"flag_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to flag payout %s: %w", id, res.Error)
	}
	return nil
}

// List 按状态分页查询打款记录，status为空查全部
func (s *PayoutStore) List(ctx context.Context, status string, page, pageSize int) ([]model.PayoutModel, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.PayoutModel{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payouts: %w", err)
	}

	var payouts []model.PayoutModel
	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&payouts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payouts: %w", err)
	}

	return payouts, total, nil
}
