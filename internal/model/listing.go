package model

import (
	"time"
)

// ListingModel 书籍挂牌，订单生命周期只关心其可售状态
type ListingModel struct {
	Id        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SellerId string `json:"seller_id" gorm:"size:36;not null;index"`
	Title    string `json:"title" gorm:"not null"`
	Author   string `json:"author"`

	PriceAmount int64  `json:"price_amount" gorm:"not null"` // 最小货币单位
	Currency    string `json:"currency" gorm:"size:8"`

	Status ListingStatus `json:"status" gorm:"size:32;default:'available';index"`
}

// TableName 自定义表名
func (ListingModel) TableName() string {
	return "book_listing"
}

// ListingStatus 挂牌状态
type ListingStatus string

const (
	ListingStatusAvailable ListingStatus = "available" // 可售
	ListingStatusReserved  ListingStatus = "reserved"  // 有订单待卖家确认
	ListingStatusSold      ListingStatus = "sold"      // 已售出
)
