package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emeraldgrove/grove-relay/api/openapi"
	"github.com/gorilla/mux"
)

func TestOpenAPIHandler(t *testing.T) {
	t.Parallel()

	h, err := NewOpenAPIHandler(openapi.Spec)
	if err != nil {
		t.Fatalf("NewOpenAPIHandler() error = %v", err)
	}
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/openapi.json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode JSON document: %v", err)
	}
	for _, path := range []string{"/api/chat", "/api/chat/status", "/api/openrouter", "/healthz"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Errorf("Expected path %s in document", path)
		}
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/openapi.yaml", nil))
	if ct := w.Header().Get("Content-Type"); ct != "application/x-yaml" {
		t.Errorf("Expected YAML content type, got %q", ct)
	}
}

func TestNewOpenAPIHandler_InvalidYAML(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAPIHandler([]byte("openapi: [unclosed")); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}
