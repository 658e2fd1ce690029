package web

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPISource []byte

// openAPIDocument returns the embedded OpenAPI document with its server URL
// set to apiPrefix.
func openAPIDocument(apiPrefix string) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(openAPISource, &doc); err != nil {
		return nil, fmt.Errorf("web: parse openapi document: %w", err)
	}
	if apiPrefix == "" {
		apiPrefix = "/"
	}
	doc["servers"] = []map[string]string{{"url": apiPrefix}}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("web: encode openapi document: %w", err)
	}
	return out, nil
}

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>newsdesk API</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>SwaggerUIBundle({url: {{.}}, dom_id: "#swagger-ui"});</script>
</body>
</html>
`))

func (s *Server) docsRoutes() {
	doc, err := openAPIDocument(s.opts.APIPrefix)
	if err != nil {
		// The document is embedded at build time; a parse error is a bug.
		s.logger.Error("API docs disabled", zap.Error(err))
		return
	}

	s.router.HandleFunc("/docs/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(doc)
	}).Methods("GET")
	s.router.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = docsPage.Execute(w, "/docs/openapi.yaml")
	}).Methods("GET")
}
