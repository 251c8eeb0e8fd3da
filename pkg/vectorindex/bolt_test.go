package vectorindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-qa-go/internal/model"
)

func newTestBolt(t *testing.T) *Bolt {
	t.Helper()
	idx, err := NewBolt(filepath.Join(t.TempDir(), "index", "vectors.db"), "documents")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func payloadsFor(docID uint, n int) []model.Payload {
	out := make([]model.Payload, n)
	for i := range out {
		out[i] = model.ChunkMetadata{DocumentID: docID, Title: "t", ChunkIndex: i, Text: "chunk"}.Payload()
	}
	return out
}

func TestBoltEnsureSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := newTestBolt(t)

	state, err := idx.InspectSchema(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, SchemaAbsent, state)

	action, err := idx.EnsureSchema(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, SchemaCreated, action)

	action, err = idx.EnsureSchema(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, SchemaUnchanged, action)

	state, err = idx.InspectSchema(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, SchemaCompatible, state)
}

func TestBoltEnsureSchemaRecreateDropsPoints(t *testing.T) {
	ctx := context.Background()
	idx := newTestBolt(t)

	_, err := idx.EnsureSchema(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, 1, [][]float32{{1, 0, 0}, {0, 1, 0}}, payloadsFor(1, 2)))

	state, err := idx.InspectSchema(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, SchemaIncompatible, state)

	action, err := idx.EnsureSchema(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, SchemaRecreated, action)

	hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBoltUpsertThenSearchSameVector(t *testing.T) {
	ctx := context.Background()
	idx := newTestBolt(t)
	_, err := idx.EnsureSchema(ctx, 3)
	require.NoError(t, err)

	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0.2, 0.2, 0.9}}
	require.NoError(t, idx.Upsert(ctx, 9, vectors, payloadsFor(9, 3)))

	hits, err := idx.Search(ctx, []float32{0.2, 0.2, 0.9}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, PointID(9, 2), hits[0].PointID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	docID, ok := hits[0].Payload.Int("document_id")
	require.True(t, ok)
	assert.Equal(t, int64(9), docID)
	assert.Equal(t, "9_2", hits[0].Payload.String("chunk_id"))
}

func TestBoltUpsertOverwritesSamePoint(t *testing.T) {
	ctx := context.Background()
	idx := newTestBolt(t)
	_, err := idx.EnsureSchema(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, 1, [][]float32{{1, 0}}, payloadsFor(1, 1)))
	require.NoError(t, idx.Upsert(ctx, 1, [][]float32{{0, 1}}, payloadsFor(1, 1)))

	hits, err := idx.Search(ctx, []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestBoltSearchFewerThanTopK(t *testing.T) {
	ctx := context.Background()
	idx := newTestBolt(t)
	_, err := idx.EnsureSchema(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, 3, [][]float32{{1, 0}, {1, 1}, {0, 1}}, payloadsFor(3, 3)))

	hits, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestBoltSearchAbsentCollection(t *testing.T) {
	hits, err := newTestBolt(t).Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBoltUpsertValidation(t *testing.T) {
	ctx := context.Background()
	idx := newTestBolt(t)
	_, err := idx.EnsureSchema(ctx, 2)
	require.NoError(t, err)

	err = idx.Upsert(ctx, 1, [][]float32{{1, 0}}, payloadsFor(1, 2))
	assert.ErrorIs(t, err, model.ErrValidation)

	err = idx.Upsert(ctx, 1, [][]float32{{1, 0, 0}}, payloadsFor(1, 1))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestBoltUpsertWithoutCollection(t *testing.T) {
	err := newTestBolt(t).Upsert(context.Background(), 1, [][]float32{{1, 0}}, payloadsFor(1, 1))
	assert.ErrorIs(t, err, model.ErrIndex)
}

func TestBoltDeleteDocument(t *testing.T) {
	ctx := context.Background()
	idx := newTestBolt(t)
	_, err := idx.EnsureSchema(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, 1, [][]float32{{1, 0}, {0, 1}}, payloadsFor(1, 2)))
	require.NoError(t, idx.Upsert(ctx, 2, [][]float32{{1, 1}}, payloadsFor(2, 1)))

	require.NoError(t, idx.DeleteDocument(ctx, 1))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, PointID(2, 0), hits[0].PointID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 0}))
}
