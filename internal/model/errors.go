package model

import "errors"

// 检索问答流程的错误分类。各组件使用 fmt.Errorf("%w: ...") 包装这些哨兵错误，
// handler 层通过 errors.Is 决定 HTTP 状态码。
var (
	// ErrProvider 表示 Embedding 或大模型服务不可达或拒绝了请求。
	ErrProvider = errors.New("provider error")
	// ErrIndex 表示向量索引不可用或 schema 操作失败。
	ErrIndex = errors.New("index error")
	// ErrCache 表示答案缓存读写失败，调用方始终按未命中处理。
	ErrCache = errors.New("cache error")
	// ErrValidation 表示请求参数不合法，例如向量与元数据数量不一致。
	ErrValidation = errors.New("validation error")
	// ErrNotFound 表示请求的记录不存在。
	ErrNotFound = errors.New("not found")
	// ErrConflict 表示记录已存在，例如重复注册的邮箱。
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized 表示凭证无效或 token 已失效。
	ErrUnauthorized = errors.New("unauthorized")
)
