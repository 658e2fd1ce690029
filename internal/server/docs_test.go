package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	OpenAPI string `yaml:"openapi"`
	Servers []struct {
		URL string `yaml:"url"`
	} `yaml:"servers"`
	Paths map[string]map[string]any `yaml:"paths"`
}

func fetchDoc(t *testing.T, h http.Handler) openAPIDoc {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/docs/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))

	var doc openAPIDoc
	require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &doc))
	return doc
}

func TestDocs_Page(t *testing.T) {
	s := NewServer(nil, nil, Options{APIPrefix: "/api"}, zap.NewNop())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/docs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "SwaggerUIBundle")
	assert.Contains(t, string(body), "openapi.yaml")
}

func TestDocs_DocumentsEveryAPIRoute(t *testing.T) {
	s := NewServer(nil, nil, Options{APIPrefix: "/api"}, zap.NewNop())
	doc := fetchDoc(t, s.Handler())

	assert.True(t, strings.HasPrefix(doc.OpenAPI, "3."))
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "/api", doc.Servers[0].URL)

	var checked int
	err := s.router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		tmpl, err := route.GetPathTemplate()
		if err != nil || !strings.HasPrefix(tmpl, "/api/") {
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			return nil
		}
		path := strings.TrimPrefix(tmpl, "/api")
		ops, ok := doc.Paths[path]
		if !assert.True(t, ok, "undocumented path %s", path) {
			return nil
		}
		for _, m := range methods {
			assert.Contains(t, ops, strings.ToLower(m), "undocumented %s %s", m, path)
			checked++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, checked)
}

func TestDocs_FollowsAPIPrefix(t *testing.T) {
	s := NewServer(nil, nil, Options{APIPrefix: "/v2"}, zap.NewNop())
	doc := fetchDoc(t, s.Handler())

	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "/v2", doc.Servers[0].URL)
	assert.Contains(t, doc.Paths, "/news/{id}")
}
