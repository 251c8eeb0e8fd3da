package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-qa-go/internal/config"
	"rag-qa-go/internal/model"
)

func fakeEmbeddingServer(t *testing.T, dims int, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Len(t, req.Input, 1)
		assert.Equal(t, 4, req.Dimensions)
		if req.Input[0] == "boom" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		vec := make([]float32, dims)
		vec[0] = float32(len(req.Input[0]))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(url string) Client {
	return NewClient(config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    url + "/",
		Model:      "test-model",
		Dimensions: 4,
	})
}

func TestEmbedTextsOneRequestPerText(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingServer(t, 4, &calls)
	c := newTestClient(srv.URL)

	vectors, err := c.EmbedTexts(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	// 输出顺序与输入一致
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(2), vectors[1][0])
	assert.Equal(t, float32(3), vectors[2][0])
	assert.Equal(t, 4, c.Dimensions())
}

func TestEmbedTextsFailsWhole(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingServer(t, 4, &calls)

	vectors, err := newTestClient(srv.URL).EmbedTexts(context.Background(), []string{"a", "boom", "c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrProvider)
	assert.Nil(t, vectors)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCreateEmbeddingDimensionMismatch(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingServer(t, 3, &calls)

	_, err := newTestClient(srv.URL).CreateEmbedding(context.Background(), "x")
	assert.ErrorIs(t, err, model.ErrProvider)
}

func TestCreateEmbeddingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).CreateEmbedding(context.Background(), "x")
	assert.ErrorIs(t, err, model.ErrProvider)
}
