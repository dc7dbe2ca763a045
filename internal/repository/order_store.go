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

// OrderStore 订单存储，系统唯一的订单状态变更入口
type OrderStore struct {
	db *gorm.DB
}

// NewOrderStore 创建订单存储
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

// Create 创建订单。payment_reference唯一，重复的webhook投递返回ErrDuplicateReference
func (s *OrderStore) Create(ctx context.Context, order *model.OrderModel) error {
	// 先查重，唯一索引兜底
	var existing model.OrderModel
	err := s.db.WithContext(ctx).
		Where("payment_reference = ?", order.PaymentReference).
		First(&existing).Error
	if err == nil {
		return fmt.Errorf("reference %s: %w", order.PaymentReference, errs.ErrDuplicateReference)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check payment reference: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("reference %s: %w", order.PaymentReference, errs.ErrDuplicateReference)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// Get 按ID查询订单
func (s *OrderStore) Get(ctx context.Context, id string) (*model.OrderModel, error) {
	var order model.OrderModel
	if err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch order %s: %w", id, err)
	}
	return &order, nil
}

// GetByReference 按支付引用查询订单
func (s *OrderStore) GetByReference(ctx context.Context, reference string) (*model.OrderModel, error) {
	var order model.OrderModel
	if err := s.db.WithContext(ctx).First(&order, "payment_reference = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("reference %s: %w", reference, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch order by reference %s: %w", reference, err)
	}
	return &order, nil
}

// Transition 状态CAS转换：单行条件更新，期望状态不匹配则失败。
// 这是其他组件允许使用的唯一状态变更原语，不提供盲写。
// extra中的列与状态更新在同一条UPDATE内原子生效。
func (s *OrderStore) Transition(ctx context.Context, id string, field model.StatusField, from, to string, extra map[string]interface{}) error {
	if !field.Valid() {
		return errs.Validationf("unknown status field: %s", field)
	}

	updates := map[string]interface{}{string(field): to}
	for k, v := range extra {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).
		Model(&model.OrderModel{}).
		Where(fmt.Sprintf("id = ? AND %s = ?", field), id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to transition order %s %s %s->%s: %w", id, field, from, to, res.Error)
	}
	if res.RowsAffected == 0 {
		// 订单不存在或期望状态已被并发方抢先改掉，对调用方都是确定性冲突
		return fmt.Errorf("order %s %s %s->%s: %w", id, field, from, to, errs.ErrInvalidTransition)
	}

	return nil
}

// Flag 标记订单需要人工干预。已标记的订单不重复标记，保证扫描重入安全
func (s *OrderStore) Flag(ctx context.Context, id, reason string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&model.OrderModel{}).
		Where("id = ? AND flagged_at IS NULL", id).
		Updates(map[string]interface{}{
			"flagged_at":  &now,
			"flag_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to flag order %s: %w", id, res.Error)
	}
	return nil
}

// ListPendingExpired 查询承诺窗口已过期但仍为pending的订单
func (s *OrderStore) ListPendingExpired(ctx context.Context, now time.Time) ([]model.OrderModel, error) {
	var orders []model.OrderModel
	err := s.db.WithContext(ctx).
		Where("commitment_status = ? AND commit_deadline <= ?", model.CommitmentStatusPending, now).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired commitments: %w", err)
	}
	return orders, nil
}

// ListCollectionOverdue 查询已承诺但超过取书期限且尚未标记的订单
func (s *OrderStore) ListCollectionOverdue(ctx context.Context, now time.Time) ([]model.OrderModel, error) {
	var orders []model.OrderModel
	err := s.db.WithContext(ctx).
		Where("commitment_status = ? AND delivery_status = ? AND collection_deadline <= ? AND flagged_at IS NULL",
			model.CommitmentStatusCommitted, model.DeliveryStatusAwaitingCollection, now).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue collections: %w", err)
	}
	return orders, nil
}
