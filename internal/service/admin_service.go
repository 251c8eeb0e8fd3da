package service

import (
	"context"
	"fmt"

	"rag-qa-go/internal/model"
	"rag-qa-go/internal/repository"
	"rag-qa-go/pkg/kafka"
	"rag-qa-go/pkg/log"
	"rag-qa-go/pkg/tasks"
	"rag-qa-go/pkg/vectorindex"
)

// UserListResponse 定义了用户列表 API 的响应结构。
type UserListResponse struct {
	Content       []UserDetailResponse `json:"content"`
	TotalElements int64                `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
	Size          int                  `json:"size"`
	Number        int                  `json:"number"`
}

// UserDetailResponse 定义了用户列表项的详细结构。
type UserDetailResponse struct {
	UserID    uint            `json:"userId"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	IsActive  bool            `json:"isActive"`
	CreatedAt model.LocalTime `json:"createdAt"`
}

// EnsureIndexResult 描述一次集合检查的结果。
type EnsureIndexResult struct {
	Dimensions int    `json:"dimensions"`
	Action     string `json:"action"`
}

// ReindexResult 描述一次批量重建索引请求。
type ReindexResult struct {
	Documents int  `json:"documents"`
	Queued    bool `json:"queued"`
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	// EnsureIndex 以当前 Embedding 维度检查集合，必要时新建或重建。
	EnsureIndex(ctx context.Context) (*EnsureIndexResult, error)
	// ReindexAll 为所有已存储文档请求重建索引。
	ReindexAll(ctx context.Context, requestedBy uint) (*ReindexResult, error)
	ListUsers(page, size int) (*UserListResponse, error)
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	userRepo   repository.UserRepository
	docRepo    repository.DocumentRepository
	index      vectorindex.Index
	indexer    DocumentIndexer
	producer   kafka.TaskProducer
	dimensions int
}

// NewAdminService 创建一个新的 AdminService 实例。producer 可以为 nil，此时同步重建。
func NewAdminService(
	userRepo repository.UserRepository,
	docRepo repository.DocumentRepository,
	index vectorindex.Index,
	indexer DocumentIndexer,
	producer kafka.TaskProducer,
	dimensions int,
) AdminService {
	return &adminService{
		userRepo:   userRepo,
		docRepo:    docRepo,
		index:      index,
		indexer:    indexer,
		producer:   producer,
		dimensions: dimensions,
	}
}

func (s *adminService) EnsureIndex(ctx context.Context) (*EnsureIndexResult, error) {
	action, err := s.index.EnsureSchema(ctx, s.dimensions)
	if err != nil {
		return nil, err
	}
	log.Infof("[AdminService] 向量集合检查完成, dim: %d, action: %s", s.dimensions, action)
	if action == vectorindex.SchemaRecreated {
		log.Warnf("[AdminService] 向量集合已重建，已有文档需要重建索引后才能被检索")
	}
	return &EnsureIndexResult{Dimensions: s.dimensions, Action: action.String()}, nil
}

func (s *adminService) ReindexAll(ctx context.Context, requestedBy uint) (*ReindexResult, error) {
	ids, err := s.docRepo.FindAllIDs()
	if err != nil {
		return nil, err
	}
	log.Infof("[AdminService] 开始批量重建索引, 文档数: %d", len(ids))

	if s.producer == nil {
		for _, id := range ids {
			if _, err := s.indexer.Reindex(ctx, id); err != nil {
				return nil, fmt.Errorf("重建文档 %d 的索引失败: %w", id, err)
			}
		}
		return &ReindexResult{Documents: len(ids)}, nil
	}

	for _, id := range ids {
		task := tasks.ReindexTask{DocumentID: id, RequestedBy: requestedBy, Reason: "bulk"}
		if err := s.producer.ProduceReindexTask(ctx, task); err != nil {
			return nil, fmt.Errorf("投递文档 %d 的重建索引任务失败: %w", id, err)
		}
	}
	return &ReindexResult{Documents: len(ids), Queued: true}, nil
}

// ListUsers 分页列出用户。
func (s *adminService) ListUsers(page, size int) (*UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	users, total, err := s.userRepo.FindWithPagination((page-1)*size, size)
	if err != nil {
		return nil, err
	}

	content := make([]UserDetailResponse, 0, len(users))
	for _, u := range users {
		content = append(content, UserDetailResponse{
			UserID:    u.ID,
			Email:     u.Email,
			Role:      u.Role,
			IsActive:  u.IsActive,
			CreatedAt: model.LocalTime(u.CreatedAt),
		})
	}
	return &UserListResponse{
		Content:       content,
		TotalElements: total,
		TotalPages:    int((total + int64(size) - 1) / int64(size)),
		Size:          size,
		Number:        page,
	}, nil
}
