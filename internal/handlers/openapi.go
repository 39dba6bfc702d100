package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

// OpenAPIHandler serves the embedded OpenAPI specification
type OpenAPIHandler struct {
	yamlDoc []byte
	jsonDoc []byte
}

// NewOpenAPIHandler converts the YAML document to JSON once, up front.
func NewOpenAPIHandler(spec []byte) (*OpenAPIHandler, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(spec, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI specification: %w", err)
	}
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert OpenAPI specification to JSON: %w", err)
	}
	return &OpenAPIHandler{yamlDoc: spec, jsonDoc: jsonDoc}, nil
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/openapi.yaml", h.ServeYAML).Methods("GET")
	r.HandleFunc("/api/openapi.json", h.ServeJSON).Methods("GET")
}

// ServeYAML serves the OpenAPI spec in YAML format
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(h.yamlDoc)
}

// ServeJSON serves the OpenAPI spec in JSON format
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(h.jsonDoc)
}
