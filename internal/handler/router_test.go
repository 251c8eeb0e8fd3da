package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-qa-go/internal/model"
	"rag-qa-go/internal/repository"
	"rag-qa-go/internal/service"
	"rag-qa-go/pkg/llm"
	"rag-qa-go/pkg/token"
)

type fakeUsers struct {
	users map[uint]*model.User
}

func (f *fakeUsers) Register(email, password string) (string, error) {
	if email == "taken@example.com" {
		return "", fmt.Errorf("%w: email already registered", model.ErrConflict)
	}
	return "tok-" + email, nil
}

func (f *fakeUsers) Login(email, password string) (string, error) {
	return "", fmt.Errorf("%w: invalid credentials", model.ErrUnauthorized)
}

func (f *fakeUsers) GetProfile(id uint) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Logout(ctx context.Context, claims *token.CustomClaims) error {
	return nil
}

type fakeQA struct {
	lastQuery string
	lastTopK  int
	err       error
}

func (f *fakeQA) Ask(_ context.Context, query string, topK int) (*model.AnswerPayload, error) {
	f.lastQuery, f.lastTopK = query, topK
	if f.err != nil {
		return nil, f.err
	}
	return &model.AnswerPayload{
		Answer: "Paris",
		Sources: []model.SourceCitation{
			{ID: "1_0", Title: "Geo", ChunkText: "Paris...", Score: 0.91, MatchPercentage: "91%"},
		},
	}, nil
}

func (f *fakeQA) StreamAnswer(context.Context, string, int, llm.MessageWriter) error { return nil }

type fakeDocs struct {
	service.DocumentService
	lastUpload service.UploadInput
}

func (f *fakeDocs) Upload(_ context.Context, in service.UploadInput) (*model.IngestResult, error) {
	f.lastUpload = in
	return &model.IngestResult{ID: 3, Title: in.Filename, Filename: in.Filename, Chunks: 2, Summary: "résumé"}, nil
}

func (f *fakeDocs) Get(id uint) (*model.DocumentDTO, error) {
	return nil, fmt.Errorf("%w: document %d", model.ErrNotFound, id)
}

type fakeAdmin struct {
	service.AdminService
}

func (f *fakeAdmin) EnsureIndex(context.Context) (*service.EnsureIndexResult, error) {
	return &service.EnsureIndexResult{Dimensions: 384, Action: "unchanged"}, nil
}

type routerFixture struct {
	router    *gin.Engine
	jwt       *token.JWTManager
	blacklist repository.TokenBlacklist
	qa        *fakeQA
	docs      *fakeDocs
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &routerFixture{
		jwt:       token.NewJWTManager("secret", 10),
		blacklist: repository.NewTokenBlacklist(rdb),
		qa:        &fakeQA{},
		docs:      &fakeDocs{},
	}
	users := &fakeUsers{users: map[uint]*model.User{
		1: {ID: 1, Email: "user@example.com", Role: "USER", IsActive: true},
		2: {ID: 2, Email: "admin@example.com", Role: "ADMIN", IsActive: true},
	}}
	f.router = NewRouter(RouterDeps{
		UserService:     users,
		DocumentService: f.docs,
		QAService:       f.qa,
		AdminService:    &fakeAdmin{},
		JWTManager:      f.jwt,
		Blacklist:       f.blacklist,
		CORSOrigins:     []string{"http://localhost:3000"},
		MaxUploadMB:     1,
	})
	return f
}

func (f *routerFixture) bearer(t *testing.T, userID uint, role string) string {
	t.Helper()
	tok, err := f.jwt.GenerateToken(userID, role)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body, auth string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req
}

func TestQueryRequiresAuth(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(jsonRequest(http.MethodPost, "/api/v1/qa/query", `{"query":"q"}`, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQueryReturnsAnswerPayload(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(jsonRequest(http.MethodPost, "/api/v1/qa/query", `{"query":"Capital of France?","top_k":3}`, f.bearer(t, 1, "USER")))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Paris", body["answer"])
	assert.Equal(t, false, body["cached"])
	sources := body["sources"].([]interface{})
	require.Len(t, sources, 1)
	src := sources[0].(map[string]interface{})
	assert.Equal(t, "Paris...", src["chunk_text"])
	assert.Equal(t, "91%", src["match_percentage"])
	assert.Equal(t, "Capital of France?", f.qa.lastQuery)
	assert.Equal(t, 3, f.qa.lastTopK)
}

func TestQueryErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: top_k must be between 1 and 50", model.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: generate answer: timeout", model.ErrProvider), http.StatusBadGateway},
		{fmt.Errorf("%w: search", model.ErrIndex), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		f := newRouterFixture(t)
		f.qa.err = tc.err
		w := f.do(jsonRequest(http.MethodPost, "/api/v1/qa/query", `{"query":"q"}`, f.bearer(t, 1, "USER")))
		assert.Equal(t, tc.status, w.Code, tc.err.Error())

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.err.Error(), body["error"])
	}
}

func TestQueryMissingQueryIsBadRequest(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(jsonRequest(http.MethodPost, "/api/v1/qa/query", `{"top_k":3}`, f.bearer(t, 1, "USER")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoggedOutTokenIsRejected(t *testing.T) {
	f := newRouterFixture(t)
	auth := f.bearer(t, 1, "USER")
	claims, err := f.jwt.VerifyToken(auth[len("Bearer "):])
	require.NoError(t, err)
	require.NoError(t, f.blacklist.Add(context.Background(), claims.ID, claims.TTL()))

	w := f.do(jsonRequest(http.MethodGet, "/api/v1/users/me", "", auth))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadMultipart(t *testing.T) {
	f := newRouterFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "guide.md")
	require.NoError(t, err)
	_, _ = part.Write([]byte("# Guide"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", f.bearer(t, 1, "USER"))
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, uint(3), body.ID)
	assert.Equal(t, 2, body.Chunks)
	assert.Equal(t, "résumé", body.Summary)
	assert.Equal(t, service.UploadedMessage, body.Message)
	assert.Equal(t, []byte("# Guide"), f.docs.lastUpload.Content)
	require.NotNil(t, f.docs.lastUpload.UploadedBy)
	assert.Equal(t, uint(1), *f.docs.lastUpload.UploadedBy)
}

func TestUploadWithoutFile(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(jsonRequest(http.MethodPost, "/api/v1/documents/upload", `{}`, f.bearer(t, 1, "USER")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentNotFoundAndBadID(t *testing.T) {
	f := newRouterFixture(t)
	auth := f.bearer(t, 1, "USER")

	w := f.do(jsonRequest(http.MethodGet, "/api/v1/documents/42", "", auth))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(jsonRequest(http.MethodGet, "/api/v1/documents/abc", "", auth))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(jsonRequest(http.MethodPost, "/api/v1/admin/index/ensure", "", f.bearer(t, 1, "USER")))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(jsonRequest(http.MethodPost, "/api/v1/admin/index/ensure", "", f.bearer(t, 2, "ADMIN")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"unchanged"`)
}

func TestRegisterAndConflict(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(jsonRequest(http.MethodPost, "/api/v1/auth/register", `{"email":"new@example.com","password":"secret1"}`, ""))
	require.Equal(t, http.StatusOK, w.Code)
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, "tok-new@example.com", tok.AccessToken)

	w = f.do(jsonRequest(http.MethodPost, "/api/v1/auth/register", `{"email":"taken@example.com","password":"secret1"}`, ""))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(jsonRequest(http.MethodPost, "/api/v1/auth/token", `{"email":"x@example.com","password":"nope"}`, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newRouterFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/qa/query", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := f.do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/qa/query", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = f.do(req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseStreamRequest(t *testing.T) {
	assert.Equal(t, streamRequest{Query: "plain question"}, parseStreamRequest([]byte("  plain question \n")))
	assert.Equal(t, streamRequest{Query: "q", TopK: 7}, parseStreamRequest([]byte(`{"query":"q","top_k":7}`)))
	assert.Equal(t, streamRequest{Query: "{broken"}, parseStreamRequest([]byte("{broken")))
}
