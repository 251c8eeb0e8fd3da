package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"rag-qa-go/internal/model"
	"rag-qa-go/pkg/log"
)

// DefaultAnswerTTL 是答案缓存的默认过期时间。
const DefaultAnswerTTL = 3600 * time.Second

// CacheOutcome 描述一次缓存读取的结果。Corrupt 与 Unavailable 都按未命中处理。
type CacheOutcome int

const (
	CacheMiss CacheOutcome = iota
	CacheHit
	// CacheCorrupt 缓存值无法反序列化。
	CacheCorrupt
	// CacheUnavailable Redis 读取失败。
	CacheUnavailable
)

func (o CacheOutcome) String() string {
	switch o {
	case CacheHit:
		return "hit"
	case CacheMiss:
		return "miss"
	case CacheCorrupt:
		return "corrupt"
	case CacheUnavailable:
		return "unavailable"
	}
	return fmt.Sprintf("CacheOutcome(%d)", int(o))
}

// AnswerCache 按 (query, top_k) 缓存问答结果。
type AnswerCache interface {
	Get(ctx context.Context, key string) (*model.AnswerPayload, CacheOutcome)
	// Set 写入缓存，ttl <= 0 时使用 DefaultAnswerTTL。错误包装为 model.ErrCache，调用方记录后忽略。
	Set(ctx context.Context, key string, payload *model.AnswerPayload, ttl time.Duration) error
}

// BuildAnswerCacheKey 构造缓存键 "qa:{query}:{top_k}"。
// 查询文本原样嵌入，不做大小写或空白归一化，仅空白不同的问题各自缓存。
func BuildAnswerCacheKey(query string, topK int) string {
	return fmt.Sprintf("qa:%s:%d", query, topK)
}

type redisAnswerCache struct {
	redisClient *redis.Client
}

// NewAnswerCache 创建一个基于 Redis 的 AnswerCache。
func NewAnswerCache(redisClient *redis.Client) AnswerCache {
	return &redisAnswerCache{redisClient: redisClient}
}

func (r *redisAnswerCache) Get(ctx context.Context, key string) (*model.AnswerPayload, CacheOutcome) {
	data, err := r.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, CacheMiss
	}
	if err != nil {
		log.Warnw("[AnswerCache] 读取缓存失败，按未命中处理", "key", key, "error", err)
		return nil, CacheUnavailable
	}

	var payload model.AnswerPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		log.Warnw("[AnswerCache] 缓存内容无法解析，按未命中处理", "key", key, "error", err)
		return nil, CacheCorrupt
	}
	return &payload, CacheHit
}

func (r *redisAnswerCache) Set(ctx context.Context, key string, payload *model.AnswerPayload, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultAnswerTTL
	}
	stored := *payload
	stored.Cached = false
	// encoding/json 以 UTF-8 原样输出非 ASCII 字符
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("%w: marshal answer: %w", model.ErrCache, err)
	}
	if err := r.redisClient.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", model.ErrCache, key, err)
	}
	return nil
}
