package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/Messenger/internal/auth"
	"github.com/Gopher0727/Messenger/internal/middlewares"
	"github.com/Gopher0727/Messenger/internal/services"
)

// respondOK 统一成功响应
func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

// respondError 把业务错误映射为 HTTP 状态码
// internal 类错误不透出细节，只返回通用提示
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
		msg = err.Error()
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
		msg = err.Error()
	default:
		logger.Error("unhandled service error", zap.String("op", op), zap.Error(err))
	}

	c.JSON(status, gin.H{
		"code":    status,
		"message": msg,
	})
}

// pagination 解析 page / page_size 查询参数
func pagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 50

	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= 200 {
		pageSize = v
	}
	return page, pageSize
}

// mustAuth 取认证上下文，缺失时直接写 401
func mustAuth(c *gin.Context) (auth.Context, bool) {
	ctx, ok := middlewares.MustAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "unauthorized"})
	}
	return ctx, ok
}
