package handlers

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

// OpenAPIHandler serves the API description as YAML and JSON. Both renderings
// are built once, with info.version set to the running build.
type OpenAPIHandler struct {
	yamlDoc []byte
	jsonDoc []byte
	etag    string
}

// NewOpenAPIHandler parses the embedded document and stamps version into it.
// An empty version keeps the document's own.
func NewOpenAPIHandler(version string) (*OpenAPIHandler, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(openAPIYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	if info, ok := doc["info"].(map[string]any); ok && version != "" {
		info["version"] = version
	}

	yamlDoc, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI YAML: %w", err)
	}
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI JSON: %w", err)
	}
	sum := sha256.Sum256(jsonDoc)
	return &OpenAPIHandler{
		yamlDoc: yamlDoc,
		jsonDoc: jsonDoc,
		etag:    `"` + hex.EncodeToString(sum[:8]) + `"`,
	}, nil
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/openapi.yaml", h.ServeYAML).Methods("GET")
	r.HandleFunc("/api/v1/openapi.json", h.ServeJSON).Methods("GET")
}

// ServeYAML serves the YAML rendering.
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "application/x-yaml", h.yamlDoc)
}

// ServeJSON serves the JSON rendering.
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "application/json", h.jsonDoc)
}

func (h *OpenAPIHandler) serve(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	w.Header().Set("ETag", h.etag)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if r.Header.Get("If-None-Match") == h.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(body)
}
