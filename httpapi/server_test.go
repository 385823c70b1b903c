package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altaidevorg/letsearch"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	reg := letsearch.NewCollectionRegistry(nil,
		letsearch.WithRoot(t.TempDir()),
		letsearch.WithBackend("tfidf"),
		letsearch.WithMetrics(letsearch.NoopMetrics{}),
	)
	t.Cleanup(func() { reg.Close() })

	_, err := reg.Create(ctx, letsearch.CollectionConfig{
		Name:         "docs",
		ModelName:    "local-tfidf",
		ModelVariant: "f32",
		IndexColumns: []string{"text"},
	}, false)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rows.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"text":"cats purr"}`+"\n"+`{"text":"dogs bark"}`+"\n"), 0o644))
	_, err = reg.ImportJSONL(ctx, "docs", path)
	require.NoError(t, err)
	require.NoError(t, reg.EmbedColumn(ctx, "docs", "text", 2, nil))

	return New(reg, nil)
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec, env := do(t, srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var data healthResponse
	require.NoError(t, json.Unmarshal(env["data"], &data))
	assert.Equal(t, "ok", data.Status)
	assert.Equal(t, Version, data.Version)
	assert.Contains(t, env, "time")
}

func TestListCollections(t *testing.T) {
	srv := newTestServer(t)
	rec, env := do(t, srv, http.MethodGet, "/collections", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var data collectionsResponse
	require.NoError(t, json.Unmarshal(env["data"], &data))
	require.Len(t, data.Collections, 1)
	assert.Equal(t, "docs", data.Collections[0].Name)
	assert.Equal(t, []string{"text"}, data.Collections[0].IndexColumns)
}

func TestGetCollection(t *testing.T) {
	srv := newTestServer(t)
	rec, env := do(t, srv, http.MethodGet, "/collections/docs", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var data collectionResponse
	require.NoError(t, json.Unmarshal(env["data"], &data))
	assert.Equal(t, "docs", data.Name)
	assert.Equal(t, "local-tfidf", data.ModelName)
	assert.True(t, data.Indexed["text"])
}

func TestGetCollectionUnknown(t *testing.T) {
	srv := newTestServer(t)
	rec, env := do(t, srv, http.MethodGet, "/collections/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, env["error"])
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t)
	rec, env := do(t, srv, http.MethodPost, "/collections/docs/search",
		`{"column_name":"text","query":"cats purr","limit":1}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var data searchResponse
	require.NoError(t, json.Unmarshal(env["data"], &data))
	require.Len(t, data.Results, 1)
	assert.Equal(t, "cats purr", data.Results[0].Content)
	assert.Equal(t, uint64(1), data.Results[0].Key)
}

func TestSearchDefaultsLimit(t *testing.T) {
	srv := newTestServer(t)
	rec, env := do(t, srv, http.MethodPost, "/collections/docs/search",
		`{"column_name":"text","query":"cats purr"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var data searchResponse
	require.NoError(t, json.Unmarshal(env["data"], &data))
	assert.Len(t, data.Results, 2)
}

func TestSearchBadLimit(t *testing.T) {
	srv := newTestServer(t)
	for _, body := range []string{
		`{"column_name":"text","query":"q","limit":0}`,
		`{"column_name":"text","query":"q","limit":101}`,
	} {
		rec, _ := do(t, srv, http.MethodPost, "/collections/docs/search", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestSearchMissingColumnName(t *testing.T) {
	srv := newTestServer(t)
	rec, _ := do(t, srv, http.MethodPost, "/collections/docs/search", `{"query":"q"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchUnknownCollection(t *testing.T) {
	srv := newTestServer(t)
	rec, _ := do(t, srv, http.MethodPost, "/collections/nope/search",
		`{"column_name":"text","query":"q"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchUnknownColumn(t *testing.T) {
	srv := newTestServer(t)
	rec, _ := do(t, srv, http.MethodPost, "/collections/docs/search",
		`{"column_name":"nope","query":"q"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
