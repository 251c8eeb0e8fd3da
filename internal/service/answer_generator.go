package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"rag-qa-go/internal/model"
	"rag-qa-go/pkg/log"
)

const (
	// NoContentAnswer 检索结果为空时的固定回答。
	NoContentAnswer = "No content found in the documents."
	// NoTextAnswer 检索结果中没有任何片段文本时的固定回答。
	NoTextAnswer = "No textual content found."

	// DefaultAnswerMaxTokens 是生成答案的输出 token 上限。
	DefaultAnswerMaxTokens = 500

	previewRunes     = 200
	contextSeparator = "\n\n---\n\n"
)

// Completer 是单轮补全的大模型接口。
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// AnswerGenerator 把检索结果组装为上下文，调用一次大模型生成答案与引用列表。
type AnswerGenerator struct {
	llm       Completer
	maxTokens int
}

// NewAnswerGenerator 创建 AnswerGenerator，maxTokens <= 0 时使用 DefaultAnswerMaxTokens。
func NewAnswerGenerator(llm Completer, maxTokens int) *AnswerGenerator {
	if maxTokens <= 0 {
		maxTokens = DefaultAnswerMaxTokens
	}
	return &AnswerGenerator{llm: llm, maxTokens: maxTokens}
}

// MaxTokens 返回答案的输出 token 上限。
func (g *AnswerGenerator) MaxTokens() int {
	return g.maxTokens
}

// groundedPrompt 是发送给大模型的提示词以及与之对应的引用列表。
type groundedPrompt struct {
	prompt  string
	sources []model.SourceCitation
}

// buildGroundedPrompt 过滤无文本的结果并构造提示词。
// 没有可用于回答的内容时返回 nil 与应直接返回给用户的固定回答。
func buildGroundedPrompt(query string, hits []model.SearchHit) (*groundedPrompt, string) {
	if len(hits) == 0 {
		return nil, NoContentAnswer
	}

	contextParts := make([]string, 0, len(hits))
	sources := make([]model.SourceCitation, 0, len(hits))
	for i, hit := range hits {
		text := hit.Payload.String("text")
		if text == "" {
			continue
		}
		title := resolveTitle(hit.Payload)
		contextParts = append(contextParts, fmt.Sprintf("[Document: %s]\n%s", title, text))
		sources = append(sources, model.SourceCitation{
			ID:              citationID(hit.Payload, i),
			Title:           title,
			ChunkText:       preview(text),
			Score:           hit.Score,
			MatchPercentage: matchPercentage(hit.Score),
		})
	}
	if len(contextParts) == 0 {
		return nil, NoTextAnswer
	}

	prompt := fmt.Sprintf(`Answer based ONLY on the provided context. Respond in the same language as the question.
If the context does not contain enough information to answer, say so explicitly.

CONTEXT:
%s

QUESTION: %s

Be concise and cite sources when relevant.`, strings.Join(contextParts, contextSeparator), query)

	return &groundedPrompt{prompt: prompt, sources: sources}, ""
}

// Answer 按检索顺序组装上下文并调用一次大模型。
// 结果为空或没有任何文本时直接返回固定回答，不调用大模型。
func (g *AnswerGenerator) Answer(ctx context.Context, query string, hits []model.SearchHit) (*model.AnswerPayload, error) {
	gp, fixed := buildGroundedPrompt(query, hits)
	if gp == nil {
		return &model.AnswerPayload{Answer: fixed, Sources: []model.SourceCitation{}}, nil
	}

	log.Infof("[AnswerGenerator] 调用大模型生成答案, sources: %d, prompt_len: %d", len(gp.sources), len(gp.prompt))
	answer, err := g.llm.Complete(ctx, gp.prompt, g.maxTokens)
	if err != nil {
		return nil, providerError("generate answer", err)
	}
	return &model.AnswerPayload{Answer: answer, Sources: gp.sources}, nil
}

// resolveTitle 依次取 title、document_title、filename，都为空时回退为 "Document {doc_id}"。
func resolveTitle(p model.Payload) string {
	if title := p.FirstString("title", "document_title", "filename"); title != "" {
		return title
	}
	return "Document " + documentLabel(p)
}

func documentLabel(p model.Payload) string {
	if id := p.FirstString("doc_id", "document_id"); id != "" {
		return id
	}
	return "unknown"
}

// citationID 返回 "{document_id}_{chunk_index}"，缺少 chunk_index 时使用结果中的位置。
func citationID(p model.Payload, position int) string {
	chunkIndex := int64(position)
	if idx, ok := p.Int("chunk_index"); ok {
		chunkIndex = idx
	}
	return fmt.Sprintf("%s_%d", documentLabel(p), chunkIndex)
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}

// matchPercentage 把相似度换算为 "NN%"，结果限制在 [0,100]。
func matchPercentage(score float64) string {
	pct := math.Round(score * 100)
	if math.IsNaN(pct) || pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%d%%", int(pct))
}

func providerError(op string, err error) error {
	if errors.Is(err, model.ErrProvider) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", model.ErrProvider, op, err)
}
