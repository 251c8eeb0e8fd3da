package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-qa-go/internal/service"
	"rag-qa-go/pkg/log"
)

// DocumentHandler 负责处理文档相关的 API 请求。
type DocumentHandler struct {
	docService     service.DocumentService
	maxUploadBytes int64
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。maxUploadMB <= 0 表示不限制。
func NewDocumentHandler(docService service.DocumentService, maxUploadMB int64) *DocumentHandler {
	return &DocumentHandler{docService: docService, maxUploadBytes: maxUploadMB << 20}
}

// UploadResponse 是上传接口的响应体。
type UploadResponse struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Summary  string `json:"summary"`
	Message  string `json:"message"`
}

// Upload 接收 multipart 字段 file，提取文本并同步完成入库。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件字段 file"})
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("文件超过 %d MB 上限", h.maxUploadBytes>>20)})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法读取上传文件"})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法读取上传文件"})
		return
	}

	in := service.UploadInput{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
	}
	if user, ok := currentUser(c); ok {
		uid := user.ID
		in.UploadedBy = &uid
	}

	result, err := h.docService.Upload(c.Request.Context(), in)
	if err != nil {
		respondError(c, "upload document", err)
		return
	}
	log.Infof("[DocumentHandler] 文档上传完成, DocumentID: %d, chunks: %d", result.ID, result.Chunks)
	c.JSON(http.StatusOK, UploadResponse{
		ID:       result.ID,
		Title:    result.Title,
		Filename: result.Filename,
		Chunks:   result.Chunks,
		Summary:  result.Summary,
		Message:  service.UploadedMessage,
	})
}

// List 分页列出文档（不含全文）。
func (h *DocumentHandler) List(c *gin.Context) {
	page, err := h.docService.List(intQuery(c, "page", 1), intQuery(c, "size", 20))
	if err != nil {
		respondError(c, "list documents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": page})
}

// Get 返回单个文档的元信息。
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	doc, err := h.docService.Get(id)
	if err != nil {
		respondError(c, "get document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": doc})
}

// Download 返回原文的预签名下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	info, err := h.docService.GenerateDownloadURL(c.Request.Context(), id)
	if err != nil {
		respondError(c, "download document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": info})
}

// Delete 删除文档、其向量与归档原文。
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.docService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, "delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文档已删除"})
}

// Reindex 为单个文档请求重建索引。
func (h *DocumentHandler) Reindex(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var requestedBy uint
	if user, ok := currentUser(c); ok {
		requestedBy = user.ID
	}
	if err := h.docService.RequestReindex(c.Request.Context(), id, requestedBy); err != nil {
		respondError(c, "reindex document", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "已提交重建索引请求"})
}
