package handler

import (
	"context"
	"net/http"

	"github.com/bookbay/bms/internal/model"
	"github.com/bookbay/bms/internal/order"
	"github.com/gin-gonic/gin"
)

// OrderService 订单生命周期能力
type OrderService interface {
	CreateFromPayment(ctx context.Context, req order.CreateRequest) (*model.OrderModel, error)
	Get(ctx context.Context, id string) (*model.OrderModel, error)
	MarkCollected(ctx context.Context, id string) (*model.OrderModel, error)
	MarkDelivered(ctx context.Context, id string) (*model.OrderModel, error)
}

// CommitmentEngine 卖家承诺能力
type CommitmentEngine interface {
	Commit(ctx context.Context, orderId, sellerId string) (*model.OrderModel, error)
	Decline(ctx context.Context, orderId, sellerId string) (*model.OrderModel, error)
}

// OrderHandler 订单相关接口
type OrderHandler struct {
	service    OrderService
	commitment CommitmentEngine
}

// NewOrderHandler 创建订单handler
func NewOrderHandler(service OrderService, commitment CommitmentEngine) *OrderHandler {
	return &OrderHandler{
		service:    service,
		commitment: commitment,
	}
}

// PaymentWebhook 支付确认回调，按核验后的交易创建订单。
// 同一引用的重复投递返回409
func (h *OrderHandler) PaymentWebhook(c *gin.Context) {
	var req PaymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.service.CreateFromPayment(c.Request.Context(), order.CreateRequest{
		PaymentReference: req.Reference,
		ListingId:        req.ListingId,
		BuyerId:          req.BuyerId,
		BuyerEmail:       req.BuyerEmail,
		DeliveryFee:      req.DeliveryFee,
	})
	if err != nil {
		FailFromError(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "order created", created)
}

// GetOrder 查询订单
func (h *OrderHandler) GetOrder(c *gin.Context) {
	got, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		FailFromError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "", got)
}

// Commit 卖家确认销售
func (h *OrderHandler) Commit(c *gin.Context) {
	var req SellerActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	committed, err := h.commitment.Commit(c.Request.Context(), c.Param("id"), req.SellerId)
	if err != nil {
		FailFromError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "sale committed", committed)
}

// Decline 卖家拒绝销售
func (h *OrderHandler) Decline(c *gin.Context) {
	var req SellerActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	declined, err := h.commitment.Decline(c.Request.Context(), c.Param("id"), req.SellerId)
	if err != nil {
		FailFromError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "sale declined", declined)
}

// Collected 快递揽收事件
func (h *OrderHandler) Collected(c *gin.Context) {
	updated, err := h.service.MarkCollected(c.Request.Context(), c.Param("id"))
	if err != nil {
		FailFromError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "collection recorded", updated)
}

// Delivered 送达事件，触发打款创建
func (h *OrderHandler) Delivered(c *gin.Context) {
	updated, err := h.service.MarkDelivered(c.Request.Context(), c.Param("id"))
	if err != nil {
		FailFromError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "delivery recorded", updated)
}
