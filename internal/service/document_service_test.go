package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-qa-go/internal/model"
	"rag-qa-go/internal/pipeline"
	"rag-qa-go/pkg/tasks"
)

type memDocs struct {
	docs map[uint]*model.Document
	next uint
}

func newMemDocs() *memDocs { return &memDocs{docs: map[uint]*model.Document{}} }

func (r *memDocs) Create(doc *model.Document) error {
	r.next++
	doc.ID = r.next
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *memDocs) FindByID(id uint) (*model.Document, error) {
	d, ok := r.docs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDocs) FindWithPagination(offset, limit int) ([]model.Document, int64, error) {
	var out []model.Document
	for id := r.next; id >= 1; id-- {
		if d, ok := r.docs[id]; ok {
			out = append(out, *d)
		}
	}
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *memDocs) FindAllIDs() ([]uint, error) {
	var ids []uint
	for id := uint(1); id <= r.next; id++ {
		if _, ok := r.docs[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memDocs) ExistsByFilename(filename string) (bool, error) {
	for _, d := range r.docs {
		if d.Filename == filename {
			return true, nil
		}
	}
	return false, nil
}

func (r *memDocs) UpdateIngestFields(id uint, chunkCount int, summary string) error {
	r.docs[id].ChunkCount = chunkCount
	r.docs[id].Summary = summary
	return nil
}

func (r *memDocs) UpdateObjectKey(id uint, objectKey string) error {
	r.docs[id].ObjectKey = objectKey
	return nil
}

func (r *memDocs) Delete(id uint) error {
	if _, ok := r.docs[id]; !ok {
		return model.ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

// fakeIndexer 把请求记入内存文档仓库，不做真实的向量化。
type fakeIndexer struct {
	repo      *memDocs
	lastReq   pipeline.IngestRequest
	reindexed []uint
	err       error
}

func (f *fakeIndexer) Ingest(_ context.Context, req pipeline.IngestRequest) (*model.IngestResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	doc := &model.Document{Title: req.Title, Filename: req.Filename, Source: req.Source, Text: req.Text}
	_ = f.repo.Create(doc)
	return &model.IngestResult{ID: doc.ID, Title: doc.Title, Filename: doc.Filename, Chunks: 1, Summary: "s"}, nil
}

func (f *fakeIndexer) Reindex(_ context.Context, id uint) (int, error) {
	f.reindexed = append(f.reindexed, id)
	return 1, f.err
}

type fakeExtractor struct {
	calls int
	text  string
	err   error
}

func (f *fakeExtractor) ExtractText(_ context.Context, r io.Reader, _ string) (string, error) {
	f.calls++
	_, _ = io.ReadAll(r)
	return f.text, f.err
}

type fakeStore struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	b, _ := io.ReadAll(r)
	f.objects[key] = b
	return nil
}

func (f *fakeStore) PresignedURL(_ context.Context, key string) (string, error) {
	return "https://minio.local/" + key + "?sig=1", nil
}

func (f *fakeStore) Remove(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

type fakeDeleter struct{ deleted []uint }

func (f *fakeDeleter) DeleteDocument(_ context.Context, id uint) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeProducer struct{ sent []tasks.ReindexTask }

func (f *fakeProducer) ProduceReindexTask(_ context.Context, task tasks.ReindexTask) error {
	f.sent = append(f.sent, task)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type docFixture struct {
	svc       DocumentService
	repo      *memDocs
	indexer   *fakeIndexer
	extractor *fakeExtractor
	store     *fakeStore
	deleter   *fakeDeleter
}

func newDocFixture(producer *fakeProducer) *docFixture {
	repo := newMemDocs()
	f := &docFixture{
		repo:      repo,
		indexer:   &fakeIndexer{repo: repo},
		extractor: &fakeExtractor{text: "extracted by tika"},
		store:     &fakeStore{objects: map[string][]byte{}},
		deleter:   &fakeDeleter{},
	}
	if producer != nil {
		f.svc = NewDocumentService(repo, f.indexer, f.extractor, f.deleter, f.store, producer)
	} else {
		f.svc = NewDocumentService(repo, f.indexer, f.extractor, f.deleter, f.store, nil)
	}
	return f
}

func TestUploadPlainTextSkipsTika(t *testing.T) {
	f := newDocFixture(nil)

	res, err := f.svc.Upload(context.Background(), UploadInput{Filename: "Notes.MD", Content: []byte("# Titre\ncontenu")})
	require.NoError(t, err)
	assert.Equal(t, 0, f.extractor.calls)
	assert.Equal(t, "# Titre\ncontenu", f.indexer.lastReq.Text)
	assert.Equal(t, "md", f.indexer.lastReq.UploadType)
	assert.Equal(t, pipeline.DefaultSource, f.indexer.lastReq.Source)

	// 原文已归档并记录对象键
	assert.Contains(t, f.store.objects, "documents/1/Notes.MD")
	doc, err := f.repo.FindByID(res.ID)
	require.NoError(t, err)
	assert.Equal(t, "documents/1/Notes.MD", doc.ObjectKey)
}

func TestUploadBinaryUsesTika(t *testing.T) {
	f := newDocFixture(nil)

	_, err := f.svc.Upload(context.Background(), UploadInput{Filename: "report.pdf", Content: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, 1, f.extractor.calls)
	assert.Equal(t, "extracted by tika", f.indexer.lastReq.Text)
	assert.Equal(t, "pdf", f.indexer.lastReq.UploadType)
}

func TestUploadExtractionFailure(t *testing.T) {
	f := newDocFixture(nil)
	f.extractor.err = errors.New("tika down")

	_, err := f.svc.Upload(context.Background(), UploadInput{Filename: "report.pdf", Content: []byte("%PDF")})
	assert.True(t, errors.Is(err, model.ErrProvider))
	assert.Empty(t, f.repo.docs)
}

func TestUploadArchiveFailureDoesNotFail(t *testing.T) {
	f := newDocFixture(nil)
	f.store.putErr = errors.New("minio unavailable")

	res, err := f.svc.Upload(context.Background(), UploadInput{Filename: "a.txt", Content: []byte("hello")})
	require.NoError(t, err)
	doc, err := f.repo.FindByID(res.ID)
	require.NoError(t, err)
	assert.Empty(t, doc.ObjectKey)

	_, err = f.svc.GenerateDownloadURL(context.Background(), res.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestDeleteRemovesPointsObjectAndRecord(t *testing.T) {
	f := newDocFixture(nil)
	ctx := context.Background()
	res, err := f.svc.Upload(ctx, UploadInput{Filename: "a.txt", Content: []byte("hello")})
	require.NoError(t, err)

	info, err := f.svc.GenerateDownloadURL(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", info.FileName)
	assert.Contains(t, info.DownloadURL, "documents/1/a.txt")

	require.NoError(t, f.svc.Delete(ctx, res.ID))
	assert.Equal(t, []uint{res.ID}, f.deleter.deleted)
	assert.Empty(t, f.store.objects)
	_, err = f.svc.Get(res.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestListPaginates(t *testing.T) {
	f := newDocFixture(nil)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := f.svc.Upload(context.Background(), UploadInput{Filename: name, Content: []byte(name)})
		require.NoError(t, err)
	}

	page, err := f.svc.List(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Content, 2)
	assert.Equal(t, "c.txt", page.Content[0].Filename)
}

func TestRequestReindexWithAndWithoutQueue(t *testing.T) {
	ctx := context.Background()

	direct := newDocFixture(nil)
	res, err := direct.svc.Upload(ctx, UploadInput{Filename: "a.txt", Content: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, direct.svc.RequestReindex(ctx, res.ID, 9))
	assert.Equal(t, []uint{res.ID}, direct.indexer.reindexed)

	producer := &fakeProducer{}
	queued := newDocFixture(producer)
	res, err = queued.svc.Upload(ctx, UploadInput{Filename: "a.txt", Content: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, queued.svc.RequestReindex(ctx, res.ID, 9))
	assert.Empty(t, queued.indexer.reindexed)
	require.Len(t, producer.sent, 1)
	assert.Equal(t, tasks.ReindexTask{DocumentID: res.ID, RequestedBy: 9, Reason: "manual"}, producer.sent[0])

	err = queued.svc.RequestReindex(ctx, 404, 9)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
