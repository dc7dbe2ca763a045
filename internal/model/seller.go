package model

import (
	"time"
)

// SellerModel 卖家收款信息，RecipientCode由支付网关注册后回填
type SellerModel struct {
	Id        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name  string `json:"name" gorm:"not null"`
	Email string `json:"email" gorm:"size:255;index"`

	// 银行收款信息
	BankCode      string `json:"bank_code" gorm:"size:16"`
	AccountNumber string `json:"account_number" gorm:"size:32"`

	// 网关侧的收款人编码，为空表示尚未注册
	RecipientCode string `json:"recipient_code" gorm:"size:64"`
}

// TableName 自定义表名
func (SellerModel) TableName() string {
	return "seller"
}
