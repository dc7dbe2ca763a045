package model

import (
	"time"
)

// PayoutModel 卖家打款记录，金额在创建时快照，之后佣金配置变更不回溯
type PayoutModel struct {
	Id        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderId  string `json:"order_id" gorm:"size:36;not null;index"`
	SellerId string `json:"seller_id" gorm:"size:36;not null;index"`

	// 金额快照
	GrossAmount    int64 `json:"gross_amount" gorm:"not null"`    // 书价总额
	PlatformFee    int64 `json:"platform_fee" gorm:"not null"`    // 平台佣金
	SellerAmount   int64 `json:"seller_amount" gorm:"not null"`   // 卖家所得
	DeliveryAmount int64 `json:"delivery_amount" gorm:"not null"` // 配送费（全额转付，不抽佣）
	CommissionBps  int64 `json:"commission_bps" gorm:"not null"`  // 决定时的佣金率快照

	Status ReviewStatus `json:"status" gorm:"size:32;default:'pending';index"`

	// 审核信息
	ReviewerId   string     `json:"reviewer_id" gorm:"size:36"`
	ReviewNotes  string     `json:"review_notes" gorm:"type:text"`
	DenialReason string     `json:"denial_reason" gorm:"type:text"` // 拒绝时必填
	ReviewedAt   *time.Time `json:"reviewed_at"`

	// 转账信息
	TransferReference string `json:"transfer_reference" gorm:"uniqueIndex;size:64"` // 幂等引用，创建时生成
	TransferId        string `json:"transfer_id" gorm:"size:64"`                    // 网关返回的转账ID

	// 人工干预标记
	FlaggedAt  *time.Time `json:"flagged_at"`
	FlagReason string     `json:"flag_reason" gorm:"type:text"`
}

// TableName 自定义表名
func (PayoutModel) TableName() string {
	return "seller_payout"
}

// ReviewStatus 打款审核状态
type ReviewStatus string

const (
	ReviewStatusPending   ReviewStatus = "pending"   // 待审核
	ReviewStatusApproved  ReviewStatus = "approved"  // 已批准，等待转账确认
	ReviewStatusDenied    ReviewStatus = "denied"    // 已拒绝（终态，重新提交需新记录）
	ReviewStatusCompleted ReviewStatus = "completed" // 网关已受理转账
)

// PaymentSplit 分账结果，值类型不落库
type PaymentSplit struct {
	SellerAmount   int64 `json:"seller_amount"`
	PlatformAmount int64 `json:"platform_amount"`
	DeliveryAmount int64 `json:"delivery_amount"`
	TotalAmount    int64 `json:"total_amount"`
}
