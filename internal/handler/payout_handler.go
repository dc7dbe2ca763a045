package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bookbay/bms/internal/middleware"
	"github.com/bookbay/bms/internal/model"
	"github.com/gin-gonic/gin"
)

// PayoutWorkflow 打款审核能力
type PayoutWorkflow interface {
	Approve(ctx context.Context, payoutId, reviewerId, notes string) (*model.PayoutModel, error)
	Deny(ctx context.Context, payoutId, reviewerId, reason string) (*model.PayoutModel, error)
}

// PayoutLister 打款记录查询能力
type PayoutLister interface {
	List(ctx context.Context, status string, page, pageSize int) ([]model.PayoutModel, int64, error)
}

// PayoutHandler 管理端打款审核接口
type PayoutHandler struct {
	workflow PayoutWorkflow
	lister   PayoutLister
}

// NewPayoutHandler 创建打款handler
func NewPayoutHandler(workflow PayoutWorkflow, lister PayoutLister) *PayoutHandler {
	return &PayoutHandler{
		workflow: workflow,
		lister:   lister,
	}
}

// ListPayouts 审核队列查询
func (h *PayoutHandler) ListPayouts(c *gin.Context) {
	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	payouts, total, err := h.lister.List(c.Request.Context(), status, page, pageSize)
	if err != nil {
		FailFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payouts":   payouts,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ApprovePayout 批准打款并发起转账
func (h *PayoutHandler) ApprovePayout(c *gin.Context) {
	var req ApprovePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	approved, err := h.workflow.Approve(c.Request.Context(), c.Param("id"), reviewerFrom(c), req.Notes)
	if err != nil {
		FailFromError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "payout approved", approved)
}

// DenyPayout 拒绝打款，原因必填
func (h *PayoutHandler) DenyPayout(c *gin.Context) {
	var req DenyPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	denied, err := h.workflow.Deny(c.Request.Context(), c.Param("id"), reviewerFrom(c), req.Reason)
	if err != nil {
		FailFromError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "payout denied", denied)
}

// reviewerFrom 从鉴权中间件取审核人ID
func reviewerFrom(c *gin.Context) string {
	return c.GetString(middleware.ReviewerKey)
}
