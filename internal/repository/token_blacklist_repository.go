package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenBlacklist 记录已登出的 token ID (jti)，直到 token 自然过期。
type TokenBlacklist interface {
	Add(ctx context.Context, tokenID string, ttl time.Duration) error
	Contains(ctx context.Context, tokenID string) (bool, error)
}

type redisTokenBlacklist struct {
	redisClient *redis.Client
}

// NewTokenBlacklist 创建一个基于 Redis 的 TokenBlacklist。
func NewTokenBlacklist(redisClient *redis.Client) TokenBlacklist {
	return &redisTokenBlacklist{redisClient: redisClient}
}

func blacklistKey(tokenID string) string {
	return fmt.Sprintf("auth:blacklist:%s", tokenID)
}

func (r *redisTokenBlacklist) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// 已过期的 token 无需加入黑名单
		return nil
	}
	return r.redisClient.Set(ctx, blacklistKey(tokenID), 1, ttl).Err()
}

func (r *redisTokenBlacklist) Contains(ctx context.Context, tokenID string) (bool, error) {
	err := r.redisClient.Get(ctx, blacklistKey(tokenID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
