package handler

import (
	"context"
	"net/http"

	"github.com/bookbay/bms/internal/sweeper"
	"github.com/gin-gonic/gin"
)

// SweepRunner 按需触发一轮期限扫描
type SweepRunner interface {
	Run(ctx context.Context) (*sweeper.Summary, error)
}

// SweepHandler 管理端扫描触发接口
type SweepHandler struct {
	runner SweepRunner
}

// NewSweepHandler 创建扫描handler
func NewSweepHandler(runner SweepRunner) *SweepHandler {
	return &SweepHandler{runner: runner}
}

// TriggerSweep 立即执行一轮扫描并返回汇总
func (h *SweepHandler) TriggerSweep(c *gin.Context) {
	summary, err := h.runner.Run(c.Request.Context())
	if err != nil {
		FailFromError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "sweep completed", summary)
}
