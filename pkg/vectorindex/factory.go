package vectorindex

import (
	"fmt"

	"rag-qa-go/internal/config"
)

// New 根据配置选择向量索引后端。
func New(cfg config.VectorIndexConfig) (Index, error) {
	switch cfg.Backend {
	case "qdrant", "":
		return NewQdrant(cfg.Qdrant, cfg.Collection)
	case "elasticsearch":
		return NewElastic(cfg.Elasticsearch, cfg.Collection)
	case "bolt":
		return NewBolt(cfg.Bolt.Path, cfg.Collection)
	default:
		return nil, fmt.Errorf("unsupported vector index backend %q", cfg.Backend)
	}
}
