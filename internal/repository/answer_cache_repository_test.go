package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-qa-go/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestBuildAnswerCacheKey(t *testing.T) {
	assert.Equal(t, "qa:What is RAG?:5", BuildAnswerCacheKey("What is RAG?", 5))
	// 不做归一化
	assert.NotEqual(t, BuildAnswerCacheKey("what is rag?", 5), BuildAnswerCacheKey("What is RAG?", 5))
	assert.NotEqual(t, BuildAnswerCacheKey("q", 5), BuildAnswerCacheKey("q", 3))
}

func TestAnswerCacheRoundTripNonASCII(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cache := NewAnswerCache(rdb)
	ctx := context.Background()

	payload := &model.AnswerPayload{
		Answer: "Le résumé: 检索增强生成 🚀",
		Sources: []model.SourceCitation{{
			ID:              "3_0",
			Title:           "Überblick.pdf",
			ChunkText:       "café 東京",
			Score:           0.87,
			MatchPercentage: "87%",
		}},
	}
	key := BuildAnswerCacheKey("Qu'est-ce que c'est ?", 5)
	require.NoError(t, cache.Set(ctx, key, payload, 0))

	raw, err := mr.Get(key)
	require.NoError(t, err)
	assert.Contains(t, raw, "检索增强生成", "stored as raw UTF-8")
	assert.Equal(t, DefaultAnswerTTL, mr.TTL(key))

	got, outcome := cache.Get(ctx, key)
	assert.Equal(t, CacheHit, outcome)
	assert.Equal(t, payload, got)
}

func TestAnswerCacheExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cache := NewAnswerCache(rdb)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", &model.AnswerPayload{Answer: "a"}, 10*time.Second))
	mr.FastForward(11 * time.Second)

	got, outcome := cache.Get(ctx, "k")
	assert.Nil(t, got)
	assert.Equal(t, CacheMiss, outcome)
}

func TestAnswerCacheCorruptIsMiss(t *testing.T) {
	mr, rdb := newTestRedis(t)
	require.NoError(t, mr.Set("qa:broken:5", "{not json"))

	got, outcome := NewAnswerCache(rdb).Get(context.Background(), "qa:broken:5")
	assert.Nil(t, got)
	assert.Equal(t, CacheCorrupt, outcome)
}

func TestAnswerCacheUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cache := NewAnswerCache(rdb)
	mr.Close()

	got, outcome := cache.Get(context.Background(), "k")
	assert.Nil(t, got)
	assert.Equal(t, CacheUnavailable, outcome)

	err := cache.Set(context.Background(), "k", &model.AnswerPayload{Answer: "a"}, time.Minute)
	assert.ErrorIs(t, err, model.ErrCache)
}

func TestTokenBlacklist(t *testing.T) {
	mr, rdb := newTestRedis(t)
	bl := NewTokenBlacklist(rdb)
	ctx := context.Background()

	ok, err := bl.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bl.Add(ctx, "jti-1", time.Minute))
	ok, err = bl.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, bl.Add(ctx, "jti-2", 0))
	assert.False(t, mr.Exists("auth:blacklist:jti-2"))

	mr.FastForward(2 * time.Minute)
	ok, err = bl.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
