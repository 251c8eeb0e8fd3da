package model

import (
	"fmt"
	"strconv"
)

// Payload 是向量索引中每个点携带的元数据。
type Payload map[string]any

// String 返回 key 对应的字符串值，不存在或为空时返回空串。
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Int 返回 key 对应的整数值。JSON 解码得到的 float64 和字符串形式的数字都会被接受。
func (p Payload) Int(key string) (int64, bool) {
	switch t := p[key].(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// FirstString 返回第一个非空的字符串字段。
func (p Payload) FirstString(keys ...string) string {
	for _, k := range keys {
		if s := p.String(k); s != "" {
			return s
		}
	}
	return ""
}

// ChunkMetadata 描述入库时写入每个点的元数据。
type ChunkMetadata struct {
	DocumentID uint
	Title      string
	Filename   string
	Source     string
	UploadType string
	ChunkIndex int
	Text       string
	CreatedAt  string
}

// ChunkID 返回 "{document_id}_{chunk_index}" 形式的复合片段标识。
func (m ChunkMetadata) ChunkID() string {
	return fmt.Sprintf("%d_%d", m.DocumentID, m.ChunkIndex)
}

// Payload 构造写入向量索引的元数据，同时保留旧字段名的别名以兼容已有数据。
func (m ChunkMetadata) Payload() Payload {
	return Payload{
		"text":            m.Text,
		"content":         m.Text,
		"document_id":     int64(m.DocumentID),
		"doc_id":          int64(m.DocumentID),
		"title":           m.Title,
		"document_title":  m.Title,
		"filename":        m.Filename,
		"source":          m.Source,
		"document_source": m.Source,
		"upload_type":     m.UploadType,
		"chunk_index":     int64(m.ChunkIndex),
		"chunk_id":        m.ChunkID(),
		"created_at":      m.CreatedAt,
	}
}

// SearchHit 是一次相似度检索的单条结果。
type SearchHit struct {
	PointID string
	Score   float64
	Payload Payload
}
