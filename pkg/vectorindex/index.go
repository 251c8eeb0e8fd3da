// Package vectorindex 管理单个向量集合的生命周期：schema 检查与重建、upsert、相似度检索。
// 支持 Qdrant、Elasticsearch 与本地 bbolt 三种后端，行为保持一致。
package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"rag-qa-go/internal/model"
	"rag-qa-go/pkg/log"
)

// SchemaState 是集合相对于目标维度的状态。
type SchemaState int

const (
	// SchemaAbsent 集合不存在。
	SchemaAbsent SchemaState = iota
	// SchemaCompatible 集合存在且维度与目标一致。
	SchemaCompatible
	// SchemaIncompatible 集合存在但维度（或向量布局）与目标不一致。
	SchemaIncompatible
)

func (s SchemaState) String() string {
	switch s {
	case SchemaAbsent:
		return "absent"
	case SchemaCompatible:
		return "compatible"
	case SchemaIncompatible:
		return "incompatible"
	}
	return fmt.Sprintf("SchemaState(%d)", int(s))
}

// SchemaAction 是 EnsureSchema 实际执行的动作。
type SchemaAction int

const (
	// SchemaUnchanged 集合已兼容，未做任何修改。
	SchemaUnchanged SchemaAction = iota
	// SchemaCreated 集合原本不存在，已新建。
	SchemaCreated
	// SchemaRecreated 集合维度不一致，已删除并重建，原有的点全部丢失。
	SchemaRecreated
)

func (a SchemaAction) String() string {
	switch a {
	case SchemaUnchanged:
		return "unchanged"
	case SchemaCreated:
		return "created"
	case SchemaRecreated:
		return "recreated"
	}
	return fmt.Sprintf("SchemaAction(%d)", int(a))
}

// Index 是向量索引的统一接口。
type Index interface {
	// InspectSchema 检查集合状态，不做任何修改。
	InspectSchema(ctx context.Context, dim int) (SchemaState, error)
	// EnsureSchema 保证集合以维度 dim、余弦相似度存在。维度不一致时会破坏性重建。
	EnsureSchema(ctx context.Context, dim int) (SchemaAction, error)
	// Upsert 为每对 (vector, payload) 写入一个点，点 ID 由 PointID(documentID, i) 决定。
	// 写入后对后续检索立即可见。
	Upsert(ctx context.Context, documentID uint, vectors [][]float32, payloads []model.Payload) error
	// Search 按相似度降序返回至多 topK 条结果；集合不存在或为空时返回空结果而非错误。
	Search(ctx context.Context, vector []float32, topK int) ([]model.SearchHit, error)
	// DeleteDocument 删除某个文档的全部点。
	DeleteDocument(ctx context.Context, documentID uint) error
	Close() error
}

// errCollectionExists 表示创建时集合已被并发的调用方建好。
var errCollectionExists = errors.New("collection already exists")

// collectionManager 是各后端实现的底层集合操作，供 ensureSchema 复用。
// createCollection 在集合已存在时返回包装了 errCollectionExists 的错误。
type collectionManager interface {
	InspectSchema(ctx context.Context, dim int) (SchemaState, error)
	createCollection(ctx context.Context, dim int) error
	dropCollection(ctx context.Context) error
}

// ensureSchema 先检查状态再决定是否新建或重建。
func ensureSchema(ctx context.Context, m collectionManager, name string, dim int) (SchemaAction, error) {
	if dim <= 0 {
		return SchemaUnchanged, fmt.Errorf("%w: dimension must be positive, got %d", model.ErrValidation, dim)
	}

	state, err := m.InspectSchema(ctx, dim)
	if err != nil {
		return SchemaUnchanged, err
	}

	switch state {
	case SchemaCompatible:
		return SchemaUnchanged, nil
	case SchemaAbsent:
		if err := m.createCollection(ctx, dim); err != nil {
			if errors.Is(err, errCollectionExists) {
				return SchemaUnchanged, confirmCompatible(ctx, m, name, dim, err)
			}
			return SchemaUnchanged, err
		}
		log.Infow("[VectorIndex] 集合已创建", "collection", name, "dim", dim)
		return SchemaCreated, nil
	default:
		log.Warnw("[VectorIndex] 集合维度不一致，删除并重建，已有向量将全部丢失", "collection", name, "dim", dim)
		if err := m.dropCollection(ctx); err != nil {
			return SchemaUnchanged, err
		}
		if err := m.createCollection(ctx, dim); err != nil {
			if errors.Is(err, errCollectionExists) {
				if err := confirmCompatible(ctx, m, name, dim, err); err != nil {
					return SchemaUnchanged, err
				}
				return SchemaRecreated, nil
			}
			return SchemaUnchanged, err
		}
		return SchemaRecreated, nil
	}
}

// confirmCompatible 在并发创建冲突后重新检查集合，维度一致则视为成功。
func confirmCompatible(ctx context.Context, m collectionManager, name string, dim int, createErr error) error {
	state, err := m.InspectSchema(ctx, dim)
	if err != nil {
		return err
	}
	if state != SchemaCompatible {
		return fmt.Errorf("%w: collection %s created concurrently with state %s: %w", model.ErrIndex, name, state, createErr)
	}
	log.Infow("[VectorIndex] 集合已由并发请求创建", "collection", name, "dim", dim)
	return nil
}

func validateUpsert(vectors [][]float32, payloads []model.Payload) error {
	if len(vectors) != len(payloads) {
		return fmt.Errorf("%w: vectors and payloads length mismatch: %d != %d", model.ErrValidation, len(vectors), len(payloads))
	}
	return nil
}

func validateSearch(vector []float32, topK int) error {
	if topK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", model.ErrValidation, topK)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty query vector", model.ErrValidation)
	}
	return nil
}
