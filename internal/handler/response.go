// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rag-qa-go/internal/model"
	"rag-qa-go/pkg/log"
	"rag-qa-go/pkg/token"
)

// statusFor 把错误分类映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrIndex):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError 返回 {"error": message}，5xx 错误同时记录日志。
func respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorw("请求处理失败", "op", op, "path", c.Request.URL.Path, "status", status, "error", err)
	} else {
		log.Warnw("请求被拒绝", "op", op, "path", c.Request.URL.Path, "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// currentUser 取出 AuthMiddleware 注入的用户。
func currentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok && user != nil
}

func currentClaims(c *gin.Context) (*token.CustomClaims, bool) {
	v, ok := c.Get("claims")
	if !ok {
		return nil, false
	}
	claims, ok := v.(*token.CustomClaims)
	return claims, ok && claims != nil
}

// idParam 解析路径参数 :id。
func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的文档 ID"})
		return 0, false
	}
	return uint(id), true
}

func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}
