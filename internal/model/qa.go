package model

// SourceCitation 是答案中引用的一个检索片段。
type SourceCitation struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	ChunkText       string  `json:"chunk_text"`
	Score           float64 `json:"score"`
	MatchPercentage string  `json:"match_percentage"`
}

// AnswerPayload 是问答接口的响应体，也是答案缓存中存储的内容。
type AnswerPayload struct {
	Answer  string           `json:"answer"`
	Sources []SourceCitation `json:"sources"`
	Cached  bool             `json:"cached"`
}

// QueryRequest 是问答接口的请求体。
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

// IngestResult 是单个文档入库后的结果。
type IngestResult struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Summary  string `json:"summary"`
}
