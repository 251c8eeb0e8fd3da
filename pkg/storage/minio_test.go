package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentObjectKey(t *testing.T) {
	assert.Equal(t, "documents/7/report.pdf", DocumentObjectKey(7, "report.pdf"))
	// 文件名中的目录部分被去掉，避免越过文档前缀
	assert.Equal(t, "documents/7/passwd", DocumentObjectKey(7, "../../etc/passwd"))
	assert.Equal(t, "documents/3/notes é.md", DocumentObjectKey(3, "notes é.md"))
}

func TestPresignedURLIsSignedLocally(t *testing.T) {
	// 指定 Region 后签名不需要访问服务端
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)
	store := &MinIOStore{client: client, bucket: "documents", expiry: 15 * time.Minute}

	raw, err := store.PresignedURL(context.Background(), DocumentObjectKey(5, "a.pdf"))
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/documents/documents/5/a.pdf", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
