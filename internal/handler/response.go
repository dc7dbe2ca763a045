package handler

import (
	"errors"
	"net/http"

	"github.com/bookbay/bms/internal/errs"
	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// FailFromError 按错误类型映射HTTP状态码
func FailFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errs.IsValidation(err):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errs.IsConflict(err):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errs.IsExternal(err):
		ErrorResponse(c, http.StatusBadGateway, err.Error())
	default:
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
	}
}
