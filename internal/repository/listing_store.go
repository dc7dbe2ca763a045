package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bookbay/bms/internal/errs"
	"github.com/bookbay/bms/internal/model"
	"gorm.io/gorm"
)

// ListingStore 挂牌状态存储
type ListingStore struct {
	db *gorm.DB
}

// NewListingStore 创建挂牌存储
func NewListingStore(db *gorm.DB) *ListingStore {
	return &ListingStore{db: db}
}

// Get 按ID查询挂牌
func (s *ListingStore) Get(ctx context.Context, id string) (*model.ListingModel, error) {
	var listing model.ListingModel
	if err := s.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("listing %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch listing %s: %w", id, err)
	}
	return &listing, nil
}

// SetStatus 挂牌状态条件更新，期望状态不匹配返回ErrInvalidTransition
func (s *ListingStore) SetStatus(ctx context.Context, id string, from, to model.ListingStatus) error {
	res := s.db.WithContext(ctx).
		Model(&model.ListingModel{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("failed to update listing %s status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("listing %s %s->%s: %w", id, from, to, errs.ErrInvalidTransition)
	}
	return nil
}

// Reserve 下单时占用挂牌
func (s *ListingStore) Reserve(ctx context.Context, id string) error {
	return s.SetStatus(ctx, id, model.ListingStatusAvailable, model.ListingStatusReserved)
}

// MarkSold 卖家承诺后标记售出
func (s *ListingStore) MarkSold(ctx context.Context, id string) error {
	return s.SetStatus(ctx, id, model.ListingStatusReserved, model.ListingStatusSold)
}

// Release 拒绝或过期后释放挂牌回到可售
func (s *ListingStore) Release(ctx context.Context, id string) error {
	return s.SetStatus(ctx, id, model.ListingStatusReserved, model.ListingStatusAvailable)
}
