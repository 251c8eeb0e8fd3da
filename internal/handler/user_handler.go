package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-qa-go/internal/service"
	"rag-qa-go/pkg/log"
)

// UserHandler 负责处理当前登录用户相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetProfile 获取当前登录用户的个人信息。
// 用户信息已经由 AuthMiddleware 注入到上下文中。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": user, "message": "success"})
}

// Logout 将当前 token 加入黑名单。
func (h *UserHandler) Logout(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取 token 信息"})
		return
	}
	if err := h.userService.Logout(c.Request.Context(), claims); err != nil {
		respondError(c, "logout", err)
		return
	}
	log.Infof("[UserHandler] 用户 %s 已登出", claims.Subject)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "登出成功"})
}
