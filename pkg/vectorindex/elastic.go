package vectorindex

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"rag-qa-go/internal/config"
	"rag-qa-go/internal/model"
	"rag-qa-go/pkg/log"
)

// Elastic 使用 Elasticsearch 的 dense_vector 字段与 kNN 检索实现向量索引。
// 集合对应一个索引，元数据原样存放在不建索引的 payload 字段中。
type Elastic struct {
	client *elasticsearch.Client
	index  string
}

type esPoint struct {
	DocumentID int64         `json:"document_id"`
	ChunkIndex int64         `json:"chunk_index"`
	Text       string        `json:"text"`
	Vector     []float32     `json:"vector"`
	Payload    model.Payload `json:"payload"`
}

// NewElastic 创建 Elasticsearch 客户端。Addresses 支持逗号分隔的多个地址。
func NewElastic(cfg config.ElasticsearchConfig, index string) (*Elastic, error) {
	var addresses []string
	for _, a := range strings.Split(cfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create elasticsearch client: %w", model.ErrIndex, err)
	}
	return &Elastic{client: client, index: strings.ToLower(index)}, nil
}

func (e *Elastic) Close() error {
	return nil
}

// responseError 把非 2xx 的响应转换为错误，响应体保留在错误信息中便于排查。
func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("%w: %s: elasticsearch returned %s: %s", model.ErrIndex, op, res.Status(), strings.TrimSpace(string(body)))
}

func (e *Elastic) InspectSchema(ctx context.Context, dim int) (SchemaState, error) {
	res, err := e.client.Indices.GetMapping(
		e.client.Indices.GetMapping.WithIndex(e.index),
		e.client.Indices.GetMapping.WithContext(ctx),
	)
	if err != nil {
		return SchemaAbsent, fmt.Errorf("%w: get mapping: %w", model.ErrIndex, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return SchemaAbsent, nil
	}
	if res.IsError() {
		return SchemaAbsent, responseError("get mapping", res)
	}

	var mappings map[string]struct {
		Mappings struct {
			Properties map[string]struct {
				Type string `json:"type"`
				Dims int    `json:"dims"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&mappings); err != nil {
		return SchemaAbsent, fmt.Errorf("%w: decode mapping: %w", model.ErrIndex, err)
	}
	for _, m := range mappings {
		vec, ok := m.Mappings.Properties["vector"]
		if ok && vec.Type == "dense_vector" && vec.Dims == dim {
			return SchemaCompatible, nil
		}
	}
	return SchemaIncompatible, nil
}

func (e *Elastic) EnsureSchema(ctx context.Context, dim int) (SchemaAction, error) {
	return ensureSchema(ctx, e, e.index, dim)
}

func (e *Elastic) createCollection(ctx context.Context, dim int) error {
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"document_id": { "type": "long" },
				"chunk_index": { "type": "integer" },
				"text": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"payload": { "type": "object", "enabled": false }
			}
		}
	}`, dim)

	res, err := e.client.Indices.Create(
		e.index,
		e.client.Indices.Create.WithBody(strings.NewReader(mapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: create index %s: %w", model.ErrIndex, e.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		if res.StatusCode == http.StatusBadRequest && bytes.Contains(body, []byte("resource_already_exists_exception")) {
			return fmt.Errorf("%w: create index %s: %w", model.ErrIndex, e.index, errCollectionExists)
		}
		log.Errorf("[VectorIndex] 创建索引 '%s' 时 Elasticsearch 返回错误: %s %s", e.index, res.Status(), body)
		return fmt.Errorf("%w: create index: elasticsearch returned %s: %s", model.ErrIndex, res.Status(), strings.TrimSpace(string(body)))
	}
	return nil
}

func (e *Elastic) dropCollection(ctx context.Context) error {
	res, err := e.client.Indices.Delete([]string{e.index}, e.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: delete index %s: %w", model.ErrIndex, e.index, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete index", res)
	}
	return nil
}

func (e *Elastic) Upsert(ctx context.Context, documentID uint, vectors [][]float32, payloads []model.Payload) error {
	if err := validateUpsert(vectors, payloads); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, vec := range vectors {
		action := map[string]any{"index": map[string]any{"_index": e.index, "_id": PointID(documentID, i)}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		doc := esPoint{
			DocumentID: int64(documentID),
			ChunkIndex: int64(i),
			Text:       payloads[i].String("text"),
			Vector:     vec,
			Payload:    payloads[i],
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode bulk document: %w", err)
		}
	}

	// refresh=true 保证写入后立即可被检索
	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.index),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: bulk upsert: %w", model.ErrIndex, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		if res.StatusCode == http.StatusBadRequest {
			return fmt.Errorf("%w: %w", model.ErrValidation, responseError("bulk upsert", res))
		}
		return responseError("bulk upsert", res)
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("%w: decode bulk response: %w", model.ErrIndex, err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, r := range item {
				if r.Error != nil {
					return fmt.Errorf("%w: bulk item failed: %s: %s", model.ErrIndex, r.Error.Type, r.Error.Reason)
				}
			}
		}
		return fmt.Errorf("%w: bulk upsert reported errors", model.ErrIndex)
	}
	return nil
}

func (e *Elastic) Search(ctx context.Context, vector []float32, topK int) ([]model.SearchHit, error) {
	if err := validateSearch(vector, topK); err != nil {
		return nil, err
	}
	numCandidates := topK * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	query := map[string]any{
		"size": topK,
		"knn": map[string]any{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": numCandidates,
		},
		"_source": map[string]any{"excludes": []string{"vector"}},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", model.ErrIndex, err)
	}
	defer res.Body.Close()

	// 索引不存在时按空结果处理
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, responseError("search", res)
	}

	var searchResp struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source esPoint `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %w", model.ErrIndex, err)
	}

	hits := make([]model.SearchHit, 0, len(searchResp.Hits.Hits))
	for _, h := range searchResp.Hits.Hits {
		payload := h.Source.Payload
		if payload == nil {
			payload = model.Payload{"text": h.Source.Text, "document_id": h.Source.DocumentID, "chunk_index": h.Source.ChunkIndex}
		}
		hits = append(hits, model.SearchHit{
			PointID: h.ID,
			// Elasticsearch 的 cosine 得分为 (1+cos)/2，这里还原为余弦相似度，与其他后端保持一致
			Score:   2*h.Score - 1,
			Payload: payload,
		})
	}
	return hits, nil
}

func (e *Elastic) DeleteDocument(ctx context.Context, documentID uint) error {
	body := fmt.Sprintf(`{"query":{"term":{"document_id":%d}}}`, documentID)
	res, err := e.client.DeleteByQuery(
		[]string{e.index},
		strings.NewReader(body),
		e.client.DeleteByQuery.WithRefresh(true),
		e.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: delete by query: %w", model.ErrIndex, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete by query", res)
	}
	return nil
}
