// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rag-qa-go/internal/config"
	"rag-qa-go/pkg/log"
)

const defaultPresignExpiry = time.Hour

// ObjectStore 定义了原文归档所需的对象存储操作。
type ObjectStore interface {
	Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, objectKey string) (string, error)
	Remove(ctx context.Context, objectKey string) error
}

// DocumentObjectKey 返回文档原文在存储桶中的对象键 "documents/{id}/{filename}"。
func DocumentObjectKey(documentID uint, filename string) string {
	return fmt.Sprintf("documents/%d/%s", documentID, path.Base(filename))
}

// MinIOStore 是基于 MinIO 的 ObjectStore 实现。
type MinIOStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &MinIOStore{client: client, bucket: cfg.BucketName, expiry: expiry}, nil
}

// Put 上传一个对象，size 未知时传 -1。
func (s *MinIOStore) Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

// PresignedURL 生成对象的临时下载链接。
func (s *MinIOStore) PresignedURL(ctx context.Context, objectKey string) (string, error) {
	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.expiry, nil)
	if err != nil {
		log.Errorf("生成预签名链接失败, Object: %s, Error: %v", objectKey, err)
		return "", err
	}
	return presignedURL.String(), nil
}

// Remove 删除对象，对象不存在时不返回错误。
func (s *MinIOStore) Remove(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}
