package router

import (
	"CommentThreads/internal/auth"
	"CommentThreads/internal/config"
	"CommentThreads/internal/models"
	"CommentThreads/internal/repository"
	"CommentThreads/internal/router/handlers"
	"CommentThreads/internal/router/middleware"
	"CommentThreads/internal/service"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var secret = []byte("router-test-secret")

func newTestEngine(t *testing.T, mutate ...func(*config.CommentsConfig)) http.Handler {
	t.Helper()
	cfg := config.DefaultComments()
	for _, m := range mutate {
		m(&cfg)
	}
	svc := service.NewService(repository.NewInMemoryRepository(), cfg, zap.NewNop(), service.Options{})
	r := NewRouter("release", handlers.NewCommentHandler(svc), auth.JWTVerifier{Secret: secret}, zap.NewNop())
	return r.GetEngine()
}

func bearer(t *testing.T, subject, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Username: "user" + subject,
		Role:     role,
	}).SignedString(secret)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(t *testing.T, h http.Handler, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createdID(t *testing.T, rec *httptest.ResponseRecorder) int64 {
	t.Helper()
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Comment models.Comment `json:"comment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Comment.ID
}

func errorKey(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["error"]
}

func TestCommentLifecycleOverHTTP(t *testing.T) {
	h := newTestEngine(t)
	author := bearer(t, "1", "")
	mod := bearer(t, "9", "moderator")

	root := createdID(t, do(t, h, http.MethodPost, "/threads/t1/comments", author, models.CreateRequest{Body: "root"}))
	reply := createdID(t, do(t, h, http.MethodPost, "/threads/t1/comments", author, models.CreateRequest{Body: "reply", Parent: root}))
	createdID(t, do(t, h, http.MethodPost, "/threads/t1/comments", "", models.CreateRequest{Body: "nested", Parent: reply, Name: "Ann"}))

	rec := do(t, h, http.MethodPost, "/moderation/delete", mod, models.IDsRequest{IDs: []int64{reply, 999}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result models.BulkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, models.OutcomeApplied, result.Outcomes[reply])
	assert.Equal(t, models.OutcomeNotFound, result.Outcomes[999])

	rec = do(t, h, http.MethodGet, "/threads/t1/comments?page=1&limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.ThreadView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Comments, 1)
	slot := view.Comments[0].Children[0]
	assert.True(t, slot.Placeholder)
	assert.Equal(t, "nested", slot.Children[0].Body)

	rec = do(t, h, http.MethodGet, "/comments/"+strconv.FormatInt(reply, 10)+"/ancestors", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var crumbs struct {
		Ancestors []models.Node `json:"ancestors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &crumbs))
	require.Len(t, crumbs.Ancestors, 1)
	assert.Equal(t, root, crumbs.Ancestors[0].ID)
}

func TestErrorMapping(t *testing.T) {
	h := newTestEngine(t)
	author := bearer(t, "1", "")
	other := bearer(t, "2", "")

	root := createdID(t, do(t, h, http.MethodPost, "/threads/t1/comments", author, models.CreateRequest{Body: "root"}))
	path := "/comments/" + strconv.FormatInt(root, 10)

	tests := []struct {
		name   string
		method string
		path   string
		authz  string
		body   any
		status int
		key    string
	}{
		{"empty body", http.MethodPost, "/threads/t1/comments", author, models.CreateRequest{}, http.StatusBadRequest, models.KeyBody},
		{"cross thread parent", http.MethodPost, "/threads/t2/comments", author, models.CreateRequest{Body: "x", Parent: root}, http.StatusBadRequest, models.KeyParent},
		{"foreign edit", http.MethodPatch, path, other, models.EditRequest{Body: "x"}, http.StatusForbidden, models.KeyAccessDenied},
		{"missing comment", http.MethodPatch, "/comments/404", author, models.EditRequest{Body: "x"}, http.StatusNotFound, models.KeyNotFound},
		{"bad id", http.MethodDelete, "/comments/abc", author, nil, http.StatusBadRequest, models.KeyNoSelection},
		{"moderation without grant", http.MethodPost, "/moderation/approve", author, models.IDsRequest{IDs: []int64{root}}, http.StatusForbidden, models.KeyAccessDenied},
		{"unknown action", http.MethodPost, "/moderation/promote", author, models.IDsRequest{IDs: []int64{root}}, http.StatusBadRequest, models.KeyAction},
		{"moderator view as guest", http.MethodGet, "/threads/t1/comments?view=moderator", "", nil, http.StatusForbidden, models.KeyAccessDenied},
		{"bad token", http.MethodGet, "/threads/t1/comments", "Bearer nope", nil, http.StatusUnauthorized, models.KeyAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.authz, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.key, errorKey(t, rec))
		})
	}
}

func TestRequestIDEchoed(t *testing.T) {
	h := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/threads/t1/comments", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))

	rec = do(t, h, http.MethodGet, "/threads/t1/comments", "", nil)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestGetThread_ConfiguredDefaultLimit(t *testing.T) {
	h := newTestEngine(t, func(c *config.CommentsConfig) { c.DefaultLimit = 3 })
	author := bearer(t, "1", "")
	for i := range 5 {
		createdID(t, do(t, h, http.MethodPost, "/threads/t1/comments", author, models.CreateRequest{Body: "root " + strconv.Itoa(i)}))
	}

	tests := []struct {
		name  string
		query string
		limit int
		count int
	}{
		{"no limit", "", 3, 3},
		{"explicit limit", "?limit=4", 4, 4},
		{"unparsable limit", "?limit=lots", 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/threads/t1/comments"+tt.query, "", nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var view models.ThreadView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
			assert.Equal(t, tt.limit, view.Limit)
			assert.Len(t, view.Comments, tt.count)
			assert.Equal(t, 5, view.Total)
		})
	}
}
