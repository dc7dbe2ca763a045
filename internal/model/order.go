package model

import (
	"time"
)

// OrderModel 订单模型，金额一律为最小货币单位（分）
type OrderModel struct {
	Id        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 参与方
	BuyerId    string `json:"buyer_id" gorm:"size:36;not null;index"`
	BuyerEmail string `json:"buyer_email"`
	SellerId   string `json:"seller_id" gorm:"size:36;not null;index"`

	// 书目信息（下单时快照）
	ListingId string `json:"listing_id" gorm:"size:36;not null"`
	BookTitle string `json:"book_title"`

	// 支付信息
	PaymentReference string `json:"payment_reference" gorm:"uniqueIndex;size:64;not null"`
	BookAmount       int64  `json:"book_amount" gorm:"not null"`  // 书价
	DeliveryFee      int64  `json:"delivery_fee" gorm:"not null"` // 配送费
	TotalAmount      int64  `json:"total_amount" gorm:"not null"` // 总金额
	Currency         string `json:"currency" gorm:"size:8;not null"`

	// 生命周期状态
	PaymentStatus    PaymentStatus    `json:"payment_status" gorm:"size:32;default:'pending'"`
	CommitmentStatus CommitmentStatus `json:"commitment_status" gorm:"size:32;default:'pending';index"`
	DeliveryStatus   DeliveryStatus   `json:"delivery_status" gorm:"size:32;default:'awaiting_collection'"`
	PayoutStatus     PayoutStatus     `json:"payout_status" gorm:"size:32;default:'none'"`

	// 时间信息，所有期限均从存储的时间戳推导
	PaidAt             time.Time  `json:"paid_at"`
	CommitDeadline     time.Time  `json:"commit_deadline" gorm:"index"`
	CollectionDeadline *time.Time `json:"collection_deadline"`
	CollectedAt        *time.Time `json:"collected_at"`
	DeliveredAt        *time.Time `json:"delivered_at"`

	// 人工干预标记
	FlaggedAt  *time.Time `json:"flagged_at"`
	FlagReason string     `json:"flag_reason" gorm:"type:text"`
}

// TableName 自定义表名
func (OrderModel) TableName() string {
	return "marketplace_order"
}

// PaymentStatus 支付状态
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"  // 待支付
	PaymentStatusPaid     PaymentStatus = "paid"     // 已支付
	PaymentStatusRefunded PaymentStatus = "refunded" // 已退款
)

// CommitmentStatus 卖家承诺状态，离开pending后不可逆
type CommitmentStatus string

const (
	CommitmentStatusPending   CommitmentStatus = "pending"   // 等待卖家响应
	CommitmentStatusCommitted CommitmentStatus = "committed" // 卖家已确认
	CommitmentStatusDeclined  CommitmentStatus = "declined"  // 卖家已拒绝
	CommitmentStatusExpired   CommitmentStatus = "expired"   // 超时自动过期
)

// DeliveryStatus 配送状态
type DeliveryStatus string

const (
	DeliveryStatusAwaitingCollection DeliveryStatus = "awaiting_collection" // 待揽收
	DeliveryStatusCollected          DeliveryStatus = "collected"           // 已揽收
	DeliveryStatusDelivered          DeliveryStatus = "delivered"           // 已送达
)

// PayoutStatus 打款状态，只允许单向前进
type PayoutStatus string

const (
	PayoutStatusNone      PayoutStatus = "none"      // 无打款
	PayoutStatusPending   PayoutStatus = "pending"   // 待审核
	PayoutStatusApproved  PayoutStatus = "approved"  // 已批准
	PayoutStatusDenied    PayoutStatus = "denied"    // 已拒绝
	PayoutStatusCompleted PayoutStatus = "completed" // 转账完成
)

// StatusField 可做CAS转换的状态列
type StatusField string

const (
	FieldPayment    StatusField = "payment_status"
	FieldCommitment StatusField = "commitment_status"
	FieldDelivery   StatusField = "delivery_status"
	FieldPayout     StatusField = "payout_status"
)

// Valid 是否为合法状态列
func (f StatusField) Valid() bool {
	switch f {
	case FieldPayment, FieldCommitment, FieldDelivery, FieldPayout:
		return true
	default:
		return false
	}
}
