package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-qa-go/internal/service"
	"rag-qa-go/pkg/log"
)

// AuthHandler 负责注册与登录。
type AuthHandler struct {
	userService service.UserService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(userService service.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// CredentialsRequest 定义了注册与登录 API 的请求体结构。
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse 是签发 access token 的响应。
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register 处理用户注册请求，成功后直接返回 access token。
func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：邮箱和密码不能为空"})
		return
	}

	accessToken, err := h.userService.Register(req.Email, req.Password)
	if err != nil {
		respondError(c, "register", err)
		return
	}
	log.Info("[AuthHandler] 用户注册成功")
	c.JSON(http.StatusOK, TokenResponse{AccessToken: accessToken, TokenType: "bearer"})
}

// Token 处理登录请求。
func (h *AuthHandler) Token(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：邮箱和密码不能为空"})
		return
	}

	accessToken, err := h.userService.Login(req.Email, req.Password)
	if err != nil {
		respondError(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{AccessToken: accessToken, TokenType: "bearer"})
}
