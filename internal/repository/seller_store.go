package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bookbay/bms/internal/errs"
	"github.com/bookbay/bms/internal/model"
	"gorm.io/gorm"
)

// SellerStore 卖家收款信息存储
type SellerStore struct {
	db *gorm.DB
}

// NewSellerStore 创建卖家存储
func NewSellerStore(db *gorm.DB) *SellerStore {
	return &SellerStore{db: db}
}

// Get 按ID查询卖家
func (s *SellerStore) Get(ctx context.Context, id string) (*model.SellerModel, error) {
	var seller model.SellerModel
	if err := s.db.WithContext(ctx).First(&seller, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("seller %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch seller %s: %w", id, err)
	}
	return &seller, nil
}

// SetRecipientCode 回填网关收款人编码
func (s *SellerStore) SetRecipientCode(ctx context.Context, id, code string) error {
	res := s.db.WithContext(ctx).
		Model(&model.SellerModel{}).
		Where("id = ?", id).
		Update("recipient_code", code)
	if res.Error != nil {
		return fmt.Errorf("failed to set recipient code for seller %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("seller %s: %w", id, errs.ErrNotFound)
	}
	return nil
}
