package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-qa-go/internal/model"
	"rag-qa-go/internal/service"
)

// QAHandler 负责同步问答请求。
type QAHandler struct {
	qaService service.QAService
}

// NewQAHandler 创建一个新的 QAHandler 实例。
func NewQAHandler(qaService service.QAService) *QAHandler {
	return &QAHandler{qaService: qaService}
}

// Query 处理 POST /qa/query，top_k 缺省时使用默认值。
func (h *QAHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：query 不能为空"})
		return
	}

	payload, err := h.qaService.Ask(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		respondError(c, "qa query", err)
		return
	}
	c.JSON(http.StatusOK, payload)
}
