package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rag-qa-go/internal/repository"
	"rag-qa-go/internal/service"
	"rag-qa-go/pkg/log"
	"rag-qa-go/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// streamRequest 是 WebSocket 中的一条提问；纯文本消息视为 query。
type streamRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func parseStreamRequest(message []byte) streamRequest {
	trimmed := strings.TrimSpace(string(message))
	if strings.HasPrefix(trimmed, "{") {
		var req streamRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err == nil {
			return req
		}
	}
	return streamRequest{Query: trimmed}
}

// StreamHandler 负责处理 WebSocket 流式问答连接。
type StreamHandler struct {
	qaService   service.QAService
	userService service.UserService
	blacklist   repository.TokenBlacklist
	jwtManager  *token.JWTManager
}

// NewStreamHandler 创建一个新的 StreamHandler。
func NewStreamHandler(qaService service.QAService, userService service.UserService, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager) *StreamHandler {
	return &StreamHandler{
		qaService:   qaService,
		userService: userService,
		blacklist:   blacklist,
		jwtManager:  jwtManager,
	}
}

// Handle 处理一个传入的 WebSocket 连接。浏览器无法为 WebSocket 设置请求头，token 通过路径传递。
func (h *StreamHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
		return
	}
	if revoked, err := h.blacklist.Contains(c.Request.Context(), claims.ID); err != nil || revoked {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token 已失效"})
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 token 主体"})
		return
	}
	if _, err := h.userService.GetProfile(userID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "用户不存在"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %d", userID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}
		req := parseStreamRequest(message)
		log.Infof("收到 WebSocket 提问, 长度: %d, top_k: %d", len(req.Query), req.TopK)

		err = h.qaService.StreamAnswer(c.Request.Context(), req.Query, req.TopK, conn)
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			b, _ := json.Marshal(map[string]string{"error": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, b)
			// 错误时也发送 completion 通知
			cb, _ := json.Marshal(map[string]interface{}{
				"type":      "completion",
				"status":    "error",
				"message":   "响应已完成",
				"timestamp": time.Now().UnixMilli(),
				"date":      time.Now().Format("2006-01-02T15:04:05"),
			})
			_ = conn.WriteMessage(websocket.TextMessage, cb)
		}
	}
}
