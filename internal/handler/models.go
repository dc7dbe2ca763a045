package handler

// PaymentWebhookRequest 支付网关回调请求
type PaymentWebhookRequest struct {
	Reference   string `json:"reference" binding:"required"`
	ListingId   string `json:"listing_id" binding:"required"`
	BuyerId     string `json:"buyer_id" binding:"required"`
	BuyerEmail  string `json:"buyer_email"`
	DeliveryFee int64  `json:"delivery_fee"`
}

// SellerActionRequest 卖家承诺/拒绝请求
type SellerActionRequest struct {
	SellerId string `json:"seller_id" binding:"required"`
}

// ApprovePayoutRequest 批准打款请求
type ApprovePayoutRequest struct {
	Notes string `json:"notes"`
}

// DenyPayoutRequest 拒绝打款请求
type DenyPayoutRequest struct {
	Reason string `json:"reason"`
}
