package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"rag-qa-go/internal/model"
)

var (
	bucketMeta   = []byte("meta")
	bucketPoints = []byte("points")
	keyDimension = []byte("dim")
)

// Bolt 是基于 bbolt 的单机向量索引，使用暴力余弦检索。
// 每个集合对应一个顶层 bucket，内部包含 meta（维度）与 points 两个子 bucket。
type Bolt struct {
	db         *bbolt.DB
	collection []byte
}

type storedPoint struct {
	Vector  []float32     `json:"v"`
	Payload model.Payload `json:"p,omitempty"`
}

// NewBolt 打开（或创建）path 处的 bbolt 文件。
func NewBolt(path, collection string) (*Bolt, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create bolt dir: %w", model.ErrIndex, err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bolt db: %w", model.ErrIndex, err)
	}
	return &Bolt{db: db, collection: []byte(collection)}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func readDimension(root *bbolt.Bucket) (int, bool) {
	meta := root.Bucket(bucketMeta)
	if meta == nil {
		return 0, false
	}
	raw := meta.Get(keyDimension)
	if raw == nil {
		return 0, false
	}
	dim, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false
	}
	return dim, true
}

func (b *Bolt) InspectSchema(_ context.Context, dim int) (SchemaState, error) {
	state := SchemaAbsent
	err := b.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(b.collection)
		if root == nil {
			return nil
		}
		current, ok := readDimension(root)
		if ok && current == dim && root.Bucket(bucketPoints) != nil {
			state = SchemaCompatible
		} else {
			state = SchemaIncompatible
		}
		return nil
	})
	if err != nil {
		return SchemaAbsent, fmt.Errorf("%w: inspect collection: %w", model.ErrIndex, err)
	}
	return state, nil
}

func (b *Bolt) EnsureSchema(ctx context.Context, dim int) (SchemaAction, error) {
	return ensureSchema(ctx, b, string(b.collection), dim)
}

func (b *Bolt) createCollection(_ context.Context, dim int) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucket(b.collection)
		if err != nil {
			return err
		}
		meta, err := root.CreateBucket(bucketMeta)
		if err != nil {
			return err
		}
		if err := meta.Put(keyDimension, []byte(strconv.Itoa(dim))); err != nil {
			return err
		}
		_, err = root.CreateBucket(bucketPoints)
		return err
	})
	if errors.Is(err, bbolt.ErrBucketExists) {
		return fmt.Errorf("%w: create collection: %w", model.ErrIndex, errCollectionExists)
	}
	if err != nil {
		return fmt.Errorf("%w: create collection: %w", model.ErrIndex, err)
	}
	return nil
}

func (b *Bolt) dropCollection(_ context.Context) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket(b.collection)
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: drop collection: %w", model.ErrIndex, err)
	}
	return nil
}

func (b *Bolt) Upsert(_ context.Context, documentID uint, vectors [][]float32, payloads []model.Payload) error {
	if err := validateUpsert(vectors, payloads); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(b.collection)
		if root == nil {
			return fmt.Errorf("%w: collection %q does not exist", model.ErrIndex, b.collection)
		}
		dim, _ := readDimension(root)
		points := root.Bucket(bucketPoints)
		if points == nil {
			return fmt.Errorf("%w: collection %q has no points bucket", model.ErrIndex, b.collection)
		}
		for i, vec := range vectors {
			if len(vec) != dim {
				return fmt.Errorf("%w: vector %d has dimension %d, collection expects %d", model.ErrValidation, i, len(vec), dim)
			}
			data, err := json.Marshal(storedPoint{Vector: vec, Payload: payloads[i]})
			if err != nil {
				return err
			}
			if err := points.Put([]byte(PointID(documentID, i)), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrIndex) {
			return err
		}
		return fmt.Errorf("%w: upsert: %w", model.ErrIndex, err)
	}
	return nil
}

func (b *Bolt) Search(_ context.Context, vector []float32, topK int) ([]model.SearchHit, error) {
	if err := validateSearch(vector, topK); err != nil {
		return nil, err
	}
	var hits []model.SearchHit
	err := b.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(b.collection)
		if root == nil {
			return nil
		}
		points := root.Bucket(bucketPoints)
		if points == nil {
			return nil
		}
		return points.ForEach(func(k, v []byte) error {
			var p storedPoint
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode point %s: %w", k, err)
			}
			hits = append(hits, model.SearchHit{
				PointID: string(k),
				Score:   cosineSimilarity(vector, p.Vector),
				Payload: p.Payload,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", model.ErrIndex, err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (b *Bolt) DeleteDocument(_ context.Context, documentID uint) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(b.collection)
		if root == nil {
			return nil
		}
		points := root.Bucket(bucketPoints)
		if points == nil {
			return nil
		}
		var keys [][]byte
		err := points.ForEach(func(k, v []byte) error {
			var p storedPoint
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			if id, ok := p.Payload.Int("document_id"); ok && id == int64(documentID) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := points.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: delete document %d: %w", model.ErrIndex, documentID, err)
	}
	return nil
}

// cosineSimilarity 维度不一致或任一向量为零向量时返回 0。
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
