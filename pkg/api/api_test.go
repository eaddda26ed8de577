package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/config"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm/edmtest"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/store"
)

func setupTestServer(t *testing.T, opts ...Option) (*Server, *store.Store) {
	t.Helper()
	s := store.New()
	_, _, err := s.PutModel("demo", edmtest.New())
	require.NoError(t, err)
	return New(s, opts...), s
}

func shopSource(t *testing.T) []byte {
	t.Helper()
	src, err := os.ReadFile("../edm/testdata/shop.yaml")
	require.NoError(t, err)
	return src
}

func do(t *testing.T, srv *Server, method, target string, body []byte) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out), "body: %s", data)
	return resp.StatusCode, out
}

func parseURL(model, uri string) string {
	return "/v1/models/" + model + "/parse?uri=" + url.QueryEscape(uri)
}

func errorBody(t *testing.T, out map[string]any) map[string]any {
	t.Helper()
	e, ok := out["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %v", out)
	return e
}

func TestModelLifecycle(t *testing.T) {
	srv, _ := setupTestServer(t)

	code, out := do(t, srv, http.MethodPut, "/v1/models/shop", shopSource(t))
	assert.Equal(t, 201, code)
	assert.Equal(t, "Shop", out["namespace"])

	code, _ = do(t, srv, http.MethodPut, "/v1/models/shop", shopSource(t))
	assert.Equal(t, 200, code)

	code, out = do(t, srv, http.MethodGet, "/v1/models", nil)
	assert.Equal(t, 200, code)
	models, ok := out["models"].([]any)
	require.True(t, ok)
	assert.Len(t, models, 2)

	code, out = do(t, srv, http.MethodGet, "/v1/models/shop", nil)
	assert.Equal(t, 200, code)
	assert.Equal(t, []any{"Customers", "Orders"}, out["entitySets"])
	assert.Equal(t, []any{"Owner"}, out["singletons"])
	assert.Equal(t, []any{"BestCustomer"}, out["operationImports"])

	code, _ = do(t, srv, http.MethodDelete, "/v1/models/shop", nil)
	assert.Equal(t, 200, code)

	code, out = do(t, srv, http.MethodGet, "/v1/models/shop", nil)
	assert.Equal(t, 404, code)
	assert.Equal(t, "NOT_FOUND", errorBody(t, out)["status"])
}

func TestPutModelErrors(t *testing.T) {
	srv, _ := setupTestServer(t)

	code, out := do(t, srv, http.MethodPut, "/v1/models/empty", nil)
	assert.Equal(t, 400, code)
	assert.Equal(t, "INVALID_ARGUMENT", errorBody(t, out)["status"])

	code, _ = do(t, srv, http.MethodPut, "/v1/models/bad", []byte("entityTypes: []"))
	assert.Equal(t, 400, code)
}

func TestParse(t *testing.T) {
	srv, _ := setupTestServer(t)

	code, out := do(t, srv, http.MethodGet, parseURL("demo", "People(1)/Friends?$filter=Age gt 3&$top=2"), nil)
	require.Equal(t, 200, code, "%v", out)
	assert.Equal(t, "demo", out["model"])

	segments, ok := out["segments"].([]any)
	require.True(t, ok)
	require.Len(t, segments, 3)
	first := segments[0].(map[string]any)
	assert.Equal(t, "EntitySet", first["kind"])
	assert.Equal(t, "People", first["navigationSource"])
	assert.Equal(t, "Demo.Person", first["type"])
	assert.Equal(t, true, first["collection"])

	clauses, ok := out["clauses"].([]any)
	require.True(t, ok)
	assert.Contains(t, clauses, map[string]any{"name": "path", "text": "People(1)/Friends"})
	assert.Contains(t, clauses, map[string]any{"name": "$filter", "text": "(Age gt 3)"})
	assert.Contains(t, clauses, map[string]any{"name": "$top", "text": "2"})
}

func TestParseWithServiceRoot(t *testing.T) {
	srv, _ := setupTestServer(t)
	target := parseURL("demo", "https://example.com/svc/Me/Name") + "&serviceRoot=" + url.QueryEscape("https://example.com/svc/")
	code, out := do(t, srv, http.MethodGet, target, nil)
	require.Equal(t, 200, code, "%v", out)
	assert.Len(t, out["segments"], 2)
}

func TestParseErrors(t *testing.T) {
	srv, _ := setupTestServer(t)

	tests := []struct {
		name   string
		target string
		code   int
		kind   string
	}{
		{"unknown model", parseURL("nope", "People"), 404, ""},
		{"missing uri", "/v1/models/demo/parse", 400, ""},
		{"unknown segment", parseURL("demo", "People(1)/Nope"), 404, "BindingError"},
		{"leaf", parseURL("demo", "$metadata/Foo"), 404, "BindingError"},
		{"syntax", parseURL("demo", "People?$filter=Age gt"), 400, "SyntaxError"},
		{"count on root", parseURL("demo", "$count"), 400, "BindingError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := do(t, srv, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.code, code)
			e := errorBody(t, out)
			assert.EqualValues(t, tt.code, e["code"])
			if tt.kind != "" {
				assert.Equal(t, tt.kind, e["kind"])
			}
		})
	}

	_, out := do(t, srv, http.MethodGet, parseURL("demo", "People(1)/Nope/Name"), nil)
	path, ok := errorBody(t, out)["path"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"People", "(1)"}, path["parsed"])
	assert.Equal(t, "Nope", path["segment"])
	assert.Equal(t, []any{"Name"}, path["remaining"])
}

func TestParseUsesSettings(t *testing.T) {
	s := config.Default()
	s.KeyDelimiter = config.KeySlash
	srv, _ := setupTestServer(t, WithSettings(s))

	code, out := do(t, srv, http.MethodGet, parseURL("demo", "People/7/Name"), nil)
	require.Equal(t, 200, code, "%v", out)
	assert.Contains(t, out["clauses"], map[string]any{"name": "path", "text": "People(7)/Name"})
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	srv, _ := setupTestServer(t, WithLogger(nil), WithSettings(nil))
	code, out := do(t, srv, http.MethodGet, parseURL("demo", "People(7)/Name"), nil)
	require.Equal(t, 200, code, "%v", out)
	assert.Contains(t, out["clauses"], map[string]any{"name": "path", "text": "People(7)/Name"})
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shop.yaml"), shopSource(t), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("namespace: ''"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	srv, s := setupTestServer(t)
	n, err := srv.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.Get("shop")
	assert.NoError(t, err)

	_, err = srv.LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
