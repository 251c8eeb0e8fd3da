package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"rag-qa-go/internal/model"
	"rag-qa-go/internal/pipeline"
	"rag-qa-go/internal/repository"
	"rag-qa-go/pkg/kafka"
	"rag-qa-go/pkg/log"
	"rag-qa-go/pkg/storage"
	"rag-qa-go/pkg/tasks"
)

// UploadedMessage 是上传成功后返回给前端的提示信息。
const UploadedMessage = "Document uploaded and indexed successfully"

// plainTextExtensions 中的文件直接按 UTF-8 读取，其余格式交给 Tika。
var plainTextExtensions = map[string]struct{}{
	".txt":  {},
	".md":   {},
	".csv":  {},
	".json": {},
}

// TextExtractor 从二进制文档中提取纯文本，由 tika.Client 实现。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// DocumentIndexer 是入库与重建索引的流程，由 pipeline.Processor 实现。
type DocumentIndexer interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (*model.IngestResult, error)
	Reindex(ctx context.Context, documentID uint) (int, error)
}

// UploadInput 是一次上传的文件内容与元信息。
type UploadInput struct {
	Filename    string
	ContentType string
	Content     []byte
	UploadedBy  *uint
}

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
}

// DocumentListResponse 是分页的文档列表。
type DocumentListResponse struct {
	Content       []model.DocumentDTO `json:"content"`
	TotalElements int64               `json:"totalElements"`
	TotalPages    int                 `json:"totalPages"`
	Size          int                 `json:"size"`
	Number        int                 `json:"number"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, in UploadInput) (*model.IngestResult, error)
	List(page, size int) (*DocumentListResponse, error)
	Get(id uint) (*model.DocumentDTO, error)
	Delete(ctx context.Context, id uint) error
	GenerateDownloadURL(ctx context.Context, id uint) (*DownloadInfoDTO, error)
	// RequestReindex 投递重建索引任务；未配置 Kafka 时同步执行。
	RequestReindex(ctx context.Context, id uint, requestedBy uint) error
}

type documentService struct {
	docRepo   repository.DocumentRepository
	indexer   DocumentIndexer
	extractor TextExtractor
	store     storage.ObjectStore
	producer  kafka.TaskProducer
	deleter   PointDeleter
}

// PointDeleter 删除某个文档在向量索引中的全部点。
type PointDeleter interface {
	DeleteDocument(ctx context.Context, documentID uint) error
}

// NewDocumentService 创建一个新的 DocumentService 实例。store 与 producer 可以为 nil。
func NewDocumentService(
	docRepo repository.DocumentRepository,
	indexer DocumentIndexer,
	extractor TextExtractor,
	deleter PointDeleter,
	store storage.ObjectStore,
	producer kafka.TaskProducer,
) DocumentService {
	return &documentService{
		docRepo:   docRepo,
		indexer:   indexer,
		extractor: extractor,
		deleter:   deleter,
		store:     store,
		producer:  producer,
	}
}

func uploadType(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "binary"
	}
	return ext
}

// extractText 纯文本格式直接解码，其他格式调用 Tika。
func (s *documentService) extractText(ctx context.Context, in UploadInput) (string, error) {
	ext := strings.ToLower(filepath.Ext(in.Filename))
	if _, ok := plainTextExtensions[ext]; ok {
		return strings.ToValidUTF8(string(in.Content), "�"), nil
	}
	if s.extractor == nil {
		return "", fmt.Errorf("%w: unsupported file type %q", model.ErrValidation, ext)
	}
	text, err := s.extractor.ExtractText(ctx, bytes.NewReader(in.Content), in.Filename)
	if err != nil {
		return "", fmt.Errorf("%w: extract text from %s: %w", model.ErrProvider, in.Filename, err)
	}
	return text, nil
}

func (s *documentService) Upload(ctx context.Context, in UploadInput) (*model.IngestResult, error) {
	if strings.TrimSpace(in.Filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", model.ErrValidation)
	}
	log.Infof("[DocumentService] 收到上传文件: %s, 大小: %d 字节", in.Filename, len(in.Content))

	text, err := s.extractText(ctx, in)
	if err != nil {
		log.Errorf("[DocumentService] 提取文本失败, FileName: %s, Error: %v", in.Filename, err)
		return nil, err
	}

	result, err := s.indexer.Ingest(ctx, pipeline.IngestRequest{
		Text:       text,
		Title:      in.Filename,
		Filename:   in.Filename,
		Source:     pipeline.DefaultSource,
		UploadType: uploadType(in.Filename),
		UploadedBy: in.UploadedBy,
	})
	if err != nil {
		return nil, err
	}

	s.archive(ctx, result.ID, in)
	return result, nil
}

// archive 把原文保存到对象存储，失败只记录日志。
func (s *documentService) archive(ctx context.Context, docID uint, in UploadInput) {
	if s.store == nil {
		return
	}
	objectKey := storage.DocumentObjectKey(docID, in.Filename)
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.store.Put(ctx, objectKey, bytes.NewReader(in.Content), int64(len(in.Content)), contentType); err != nil {
		log.Warnw("[DocumentService] 原文归档失败", "documentID", docID, "objectKey", objectKey, "error", err)
		return
	}
	if err := s.docRepo.UpdateObjectKey(docID, objectKey); err != nil {
		log.Warnw("[DocumentService] 记录归档对象键失败", "documentID", docID, "error", err)
	}
}

func (s *documentService) List(page, size int) (*DocumentListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	docs, total, err := s.docRepo.FindWithPagination((page-1)*size, size)
	if err != nil {
		return nil, err
	}
	content := make([]model.DocumentDTO, 0, len(docs))
	for i := range docs {
		content = append(content, docs[i].ToDTO())
	}
	return &DocumentListResponse{
		Content:       content,
		TotalElements: total,
		TotalPages:    int((total + int64(size) - 1) / int64(size)),
		Size:          size,
		Number:        page,
	}, nil
}

func (s *documentService) Get(id uint) (*model.DocumentDTO, error) {
	doc, err := s.docRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	dto := doc.ToDTO()
	return &dto, nil
}

// Delete 依次删除索引中的点、归档对象与文档记录。
func (s *documentService) Delete(ctx context.Context, id uint) error {
	doc, err := s.docRepo.FindByID(id)
	if err != nil {
		return err
	}
	if err := s.deleter.DeleteDocument(ctx, id); err != nil {
		log.Errorf("[DocumentService] 删除文档向量失败, DocumentID: %d, Error: %v", id, err)
		return err
	}
	if doc.ObjectKey != "" && s.store != nil {
		if err := s.store.Remove(ctx, doc.ObjectKey); err != nil {
			log.Warnw("[DocumentService] 删除归档对象失败", "documentID", id, "objectKey", doc.ObjectKey, "error", err)
		}
	}
	if err := s.docRepo.Delete(id); err != nil {
		return err
	}
	log.Infof("[DocumentService] 文档已删除, DocumentID: %d", id)
	return nil
}

func (s *documentService) GenerateDownloadURL(ctx context.Context, id uint) (*DownloadInfoDTO, error) {
	doc, err := s.docRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if doc.ObjectKey == "" || s.store == nil {
		return nil, fmt.Errorf("%w: document %d has no archived original", model.ErrNotFound, id)
	}
	downloadURL, err := s.store.PresignedURL(ctx, doc.ObjectKey)
	if err != nil {
		return nil, err
	}
	return &DownloadInfoDTO{FileName: doc.Filename, DownloadURL: downloadURL}, nil
}

func (s *documentService) RequestReindex(ctx context.Context, id uint, requestedBy uint) error {
	if _, err := s.docRepo.FindByID(id); err != nil {
		return err
	}
	if s.producer == nil {
		_, err := s.indexer.Reindex(ctx, id)
		return err
	}
	task := tasks.ReindexTask{DocumentID: id, RequestedBy: requestedBy, Reason: "manual"}
	if err := s.producer.ProduceReindexTask(ctx, task); err != nil {
		return fmt.Errorf("投递重建索引任务失败: %w", err)
	}
	log.Infof("[DocumentService] 已投递重建索引任务, DocumentID: %d", id)
	return nil
}
