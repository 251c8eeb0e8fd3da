// Package pipeline 定义了文档入库的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"rag-qa-go/internal/config"
	"rag-qa-go/internal/model"
	"rag-qa-go/internal/repository"
	"rag-qa-go/pkg/embedding"
	"rag-qa-go/pkg/log"
	"rag-qa-go/pkg/tasks"
	"rag-qa-go/pkg/vectorindex"
)

const (
	// DefaultSource 是通过上传接口入库的文档的来源标签。
	DefaultSource = "upload"

	defaultSummaryMaxTokens   = 500
	defaultSummaryPrefixChars = 2000
)

// Summarizer 是生成摘要所需的大模型接口。
type Summarizer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// IngestRequest 描述一次入库所需的已提取文本与元数据。
type IngestRequest struct {
	Text       string
	Title      string
	Filename   string
	Source     string
	UploadType string
	UploadedBy *uint
}

// Processor 封装了文档入库的所有依赖和逻辑。
type Processor struct {
	docRepo  repository.DocumentRepository
	embedder embedding.Client
	index    vectorindex.Index
	llm      Summarizer
	ragCfg   config.RAGConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	docRepo repository.DocumentRepository,
	embedder embedding.Client,
	index vectorindex.Index,
	llm Summarizer,
	ragCfg config.RAGConfig,
) *Processor {
	return &Processor{
		docRepo:  docRepo,
		embedder: embedder,
		index:    index,
		llm:      llm,
		ragCfg:   ragCfg,
	}
}

// Ingest 持久化文档，切块、向量化并写入索引，最后生成摘要。
// 任一步骤失败即中止；已写入的文档记录不会回滚。
func (p *Processor) Ingest(ctx context.Context, req IngestRequest) (*model.IngestResult, error) {
	if req.Title == "" {
		req.Title = req.Filename
	}
	if req.Source == "" {
		req.Source = DefaultSource
	}
	log.Infof("[Processor] 开始入库, FileName: %s, 文本长度: %d 字符", req.Filename, utf8.RuneCountInString(req.Text))

	// 1. 保存文档记录
	doc := &model.Document{
		Title:      req.Title,
		Source:     req.Source,
		Filename:   req.Filename,
		UploadType: req.UploadType,
		UploadedBy: req.UploadedBy,
		Text:       req.Text,
	}
	if err := p.docRepo.Create(doc); err != nil {
		log.Errorf("[Processor] 步骤1: 保存文档记录失败, FileName: %s, Error: %v", req.Filename, err)
		return nil, fmt.Errorf("保存文档记录失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文档记录已保存, DocumentID: %d", doc.ID)

	result := &model.IngestResult{
		ID:       doc.ID,
		Title:    doc.Title,
		Filename: doc.Filename,
	}

	// 2-4. 切块、向量化、写入索引
	chunks, err := p.indexDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	result.Chunks = chunks
	if chunks == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, 跳过索引与摘要, DocumentID: %d", doc.ID)
		return result, nil
	}

	// 5. 生成摘要
	summary, err := p.summarize(ctx, req.Text)
	if err != nil {
		log.Errorf("[Processor] 步骤5: 生成摘要失败, DocumentID: %d, Error: %v", doc.ID, err)
		return nil, err
	}
	result.Summary = summary

	// 6. 回写补充字段
	if err := p.docRepo.UpdateIngestFields(doc.ID, chunks, summary); err != nil {
		log.Errorf("[Processor] 步骤6: 回写文档补充字段失败, DocumentID: %d, Error: %v", doc.ID, err)
		return nil, fmt.Errorf("回写文档补充字段失败: %w", err)
	}

	log.Infof("[Processor] 入库成功完成, DocumentID: %d, chunks: %d", doc.ID, chunks)
	return result, nil
}

// Reindex 为已存储的文档重新切块、向量化并写入索引，不重新生成摘要。
func (p *Processor) Reindex(ctx context.Context, documentID uint) (int, error) {
	doc, err := p.docRepo.FindByID(documentID)
	if err != nil {
		return 0, fmt.Errorf("读取文档失败: %w", err)
	}
	log.Infof("[Processor] 开始重建索引, DocumentID: %d", doc.ID)

	chunks, err := p.indexDocument(ctx, doc)
	if err != nil {
		return 0, err
	}
	if chunks != doc.ChunkCount {
		if err := p.docRepo.UpdateIngestFields(doc.ID, chunks, doc.Summary); err != nil {
			return chunks, fmt.Errorf("回写文档补充字段失败: %w", err)
		}
	}
	log.Infof("[Processor] 重建索引完成, DocumentID: %d, chunks: %d", doc.ID, chunks)
	return chunks, nil
}

// Process 满足 kafka.TaskProcessor 接口。
func (p *Processor) Process(ctx context.Context, task tasks.ReindexTask) error {
	_, err := p.Reindex(ctx, task.DocumentID)
	return err
}

// indexDocument 执行 切块 -> 确保集合 -> 向量化 -> 写入，返回写入的分块数。
func (p *Processor) indexDocument(ctx context.Context, doc *model.Document) (int, error) {
	chunks := Chunk(doc.Text)
	log.Infof("[Processor] 步骤2: 文本分块完成, chunkSize: %d, chunkOverlap: %d, 共 %d 个分块", ChunkSize, ChunkOverlap, len(chunks))
	if len(chunks) == 0 {
		return 0, nil
	}

	dim := p.embedder.Dimensions()
	action, err := p.index.EnsureSchema(ctx, dim)
	if err != nil {
		log.Errorf("[Processor] 步骤3: 确保向量集合失败, Error: %v", err)
		return 0, fmt.Errorf("确保向量集合失败: %w", err)
	}
	log.Infof("[Processor] 步骤3: 向量集合就绪, dim: %d, action: %s", dim, action)

	vectors, err := p.embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		log.Errorf("[Processor] 步骤3: 分块向量化失败, DocumentID: %d, Error: %v", doc.ID, err)
		return 0, fmt.Errorf("分块向量化失败: %w", err)
	}

	createdAt := ""
	if !doc.CreatedAt.IsZero() {
		createdAt = doc.CreatedAt.Format(time.RFC3339)
	}
	payloads := make([]model.Payload, 0, len(chunks))
	for i, chunk := range chunks {
		payloads = append(payloads, model.ChunkMetadata{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Filename:   doc.Filename,
			Source:     doc.Source,
			UploadType: doc.UploadType,
			ChunkIndex: i,
			Text:       chunk,
			CreatedAt:  createdAt,
		}.Payload())
	}

	if err := p.index.Upsert(ctx, doc.ID, vectors, payloads); err != nil {
		log.Errorf("[Processor] 步骤4: 写入向量索引失败, DocumentID: %d, Error: %v", doc.ID, err)
		return 0, fmt.Errorf("写入向量索引失败: %w", err)
	}
	log.Infof("[Processor] 步骤4: %d 个分块已写入向量索引", len(chunks))
	return len(chunks), nil
}

// summarize 对原文前若干字符生成一次简短摘要。
func (p *Processor) summarize(ctx context.Context, text string) (string, error) {
	prefixChars := p.ragCfg.SummaryPrefixChars
	if prefixChars <= 0 {
		prefixChars = defaultSummaryPrefixChars
	}
	maxTokens := p.ragCfg.SummaryMaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultSummaryMaxTokens
	}

	prefix := text
	if utf8.RuneCountInString(prefix) > prefixChars {
		prefix = string([]rune(prefix)[:prefixChars])
	}
	prompt := "Write a concise summary of the following text:\n" + prefix
	summary, err := p.llm.Complete(ctx, prompt, maxTokens)
	if err != nil {
		if errors.Is(err, model.ErrProvider) {
			return "", fmt.Errorf("生成摘要失败: %w", err)
		}
		return "", fmt.Errorf("%w: 生成摘要失败: %w", model.ErrProvider, err)
	}
	log.Info("[Processor] 步骤5: 摘要生成成功")
	return strings.TrimSpace(summary), nil
}
