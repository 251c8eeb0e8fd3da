package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-qa-go/internal/service"
	"rag-qa-go/pkg/log"
)

// AdminHandler 负责处理所有与管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// EnsureIndex 检查向量集合，维度不一致时会破坏性重建。
func (h *AdminHandler) EnsureIndex(c *gin.Context) {
	res, err := h.adminService.EnsureIndex(c.Request.Context())
	if err != nil {
		respondError(c, "ensure index", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": res})
}

// ReindexAll 为全部文档请求重建索引。
func (h *AdminHandler) ReindexAll(c *gin.Context) {
	var requestedBy uint
	if user, ok := currentUser(c); ok {
		requestedBy = user.ID
	}
	res, err := h.adminService.ReindexAll(c.Request.Context(), requestedBy)
	if err != nil {
		respondError(c, "reindex all", err)
		return
	}
	log.Infof("[AdminHandler] 批量重建索引请求完成, 文档数: %d, queued: %t", res.Documents, res.Queued)
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "success", "data": res})
}

// ListUsers 分页列出用户。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	res, err := h.adminService.ListUsers(intQuery(c, "page", 1), intQuery(c, "size", 20))
	if err != nil {
		respondError(c, "list users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": res})
}
