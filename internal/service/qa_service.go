// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"rag-qa-go/internal/config"
	"rag-qa-go/internal/model"
	"rag-qa-go/internal/repository"
	"rag-qa-go/pkg/embedding"
	"rag-qa-go/pkg/llm"
	"rag-qa-go/pkg/log"
	"rag-qa-go/pkg/vectorindex"
)

const (
	// 缓存读写都有独立的上限，Redis 变慢时问答流程照常进行
	cacheReadTimeout  = 300 * time.Millisecond
	cacheWriteTimeout = 2 * time.Second
)

// QAService 定义了检索增强问答的操作。
type QAService interface {
	// Ask 先查答案缓存，未命中时执行 检索 -> 生成，并把生成的答案写回缓存。
	Ask(ctx context.Context, query string, topK int) (*model.AnswerPayload, error)
	// StreamAnswer 与 Ask 相同的流程，但以流式分块把答案写入 writer。
	StreamAnswer(ctx context.Context, query string, topK int, writer llm.MessageWriter) error
}

type qaService struct {
	embedder  embedding.Client
	index     vectorindex.Index
	cache     repository.AnswerCache
	generator *AnswerGenerator
	llmClient llm.Client
	ragCfg    config.RAGConfig

	cacheReadTimeout  time.Duration
	cacheWriteTimeout time.Duration
}

// NewQAService 创建一个新的 QAService 实例。
func NewQAService(
	embedder embedding.Client,
	index vectorindex.Index,
	cache repository.AnswerCache,
	generator *AnswerGenerator,
	llmClient llm.Client,
	ragCfg config.RAGConfig,
) QAService {
	return &qaService{
		embedder:  embedder,
		index:     index,
		cache:     cache,
		generator: generator,
		llmClient: llmClient,
		ragCfg:    ragCfg,

		cacheReadTimeout:  cacheReadTimeout,
		cacheWriteTimeout: cacheWriteTimeout,
	}
}

// normalizeTopK 校验请求参数，0 表示使用默认值。
func (s *qaService) normalizeTopK(query string, topK int) (int, error) {
	if strings.TrimSpace(query) == "" {
		return 0, fmt.Errorf("%w: query must not be empty", model.ErrValidation)
	}
	if topK == 0 {
		topK = s.ragCfg.DefaultTopK
	}
	if topK <= 0 || (s.ragCfg.MaxTopK > 0 && topK > s.ragCfg.MaxTopK) {
		return 0, fmt.Errorf("%w: top_k must be between 1 and %d, got %d", model.ErrValidation, s.ragCfg.MaxTopK, topK)
	}
	return topK, nil
}

func (s *qaService) lookup(ctx context.Context, key string) *model.AnswerPayload {
	ctx, cancel := context.WithTimeout(ctx, s.cacheReadTimeout)
	defer cancel()
	payload, outcome := s.cache.Get(ctx, key)
	if outcome != repository.CacheHit {
		log.Infow("[QAService] 答案缓存未命中", "key", key, "outcome", outcome.String())
		return nil
	}
	payload.Cached = true
	if payload.Sources == nil {
		payload.Sources = []model.SourceCitation{}
	}
	return payload
}

func (s *qaService) store(key string, payload *model.AnswerPayload) {
	// 缓存写入不影响响应：使用独立的短超时上下文，失败只记录日志
	ctx, cancel := context.WithTimeout(context.Background(), s.cacheWriteTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, key, payload, s.ragCfg.CacheTTL()); err != nil {
		log.Warnw("[QAService] 写入答案缓存失败", "key", key, "error", err)
	}
}

func (s *qaService) retrieve(ctx context.Context, query string, topK int) ([]model.SearchHit, error) {
	vector, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, providerError("embed query", err)
	}
	hits, err := s.index.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	log.Infof("[QAService] 检索完成, top_k: %d, hits: %d", topK, len(hits))
	return hits, nil
}

func (s *qaService) Ask(ctx context.Context, query string, topK int) (*model.AnswerPayload, error) {
	topK, err := s.normalizeTopK(query, topK)
	if err != nil {
		return nil, err
	}

	key := repository.BuildAnswerCacheKey(query, topK)
	if cached := s.lookup(ctx, key); cached != nil {
		return cached, nil
	}

	hits, err := s.retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	payload, err := s.generator.Answer(ctx, query, hits)
	if err != nil {
		return nil, err
	}

	// 只缓存由大模型生成的答案，固定回答不写入缓存
	if len(payload.Sources) > 0 {
		s.store(key, payload)
	}
	return payload, nil
}

func (s *qaService) StreamAnswer(ctx context.Context, query string, topK int, writer llm.MessageWriter) error {
	topK, err := s.normalizeTopK(query, topK)
	if err != nil {
		return err
	}

	key := repository.BuildAnswerCacheKey(query, topK)
	if cached := s.lookup(ctx, key); cached != nil {
		if err := writeChunk(writer, cached.Answer); err != nil {
			return err
		}
		return finishStream(writer, cached.Sources, true)
	}

	hits, err := s.retrieve(ctx, query, topK)
	if err != nil {
		return err
	}
	gp, fixed := buildGroundedPrompt(query, hits)
	if gp == nil {
		if err := writeChunk(writer, fixed); err != nil {
			return err
		}
		return finishStream(writer, []model.SourceCitation{}, false)
	}

	answerBuilder := &strings.Builder{}
	interceptor := &chunkWriter{next: writer, answer: answerBuilder}
	maxTokens := s.generator.MaxTokens()
	err = s.llmClient.StreamChatMessages(ctx,
		[]llm.Message{{Role: "user", Content: gp.prompt}},
		&llm.GenerationParams{MaxTokens: &maxTokens},
		interceptor,
	)
	if err != nil {
		return providerError("stream answer", err)
	}

	if err := finishStream(writer, gp.sources, false); err != nil {
		return err
	}
	if answer := answerBuilder.String(); answer != "" {
		s.store(key, &model.AnswerPayload{Answer: answer, Sources: gp.sources})
	}
	return nil
}

// chunkWriter 捕获完整答案，并把原始分块包装为 {"chunk":"..."}。
type chunkWriter struct {
	next   llm.MessageWriter
	answer *strings.Builder
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *chunkWriter) WriteMessage(messageType int, data []byte) error {
	w.answer.Write(data)
	return writeJSON(w.next, messageType, map[string]string{"chunk": string(data)})
}

func writeJSON(w llm.MessageWriter, messageType int, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteMessage(messageType, b)
}

func writeChunk(w llm.MessageWriter, text string) error {
	return writeJSON(w, websocket.TextMessage, map[string]string{"chunk": text})
}

// finishStream 依次发送引用列表与完成通知。
func finishStream(w llm.MessageWriter, sources []model.SourceCitation, cached bool) error {
	if err := writeJSON(w, websocket.TextMessage, map[string]interface{}{
		"type":    "sources",
		"sources": sources,
		"cached":  cached,
	}); err != nil {
		return err
	}
	return writeJSON(w, websocket.TextMessage, completionMessage())
}

func completionMessage() map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	}
}
