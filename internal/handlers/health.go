package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/emeraldgrove/grove-relay/internal/services/ai"
)

// Pinger is a dependency that can report its own reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker handles health check requests
type HealthChecker struct {
	store    Pinger
	provider ai.Provider
	version  string
}

// NewHealthChecker creates a new health checker. store may be nil when quotas are kept in memory.
func NewHealthChecker(store Pinger, provider ai.Provider, version string) *HealthChecker {
	return &HealthChecker{store: store, provider: provider, version: version}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if r.URL.Query().Get("mode") != "extended" {
		respondJSON(w, http.StatusOK, response)
		return
	}

	checks := make(map[string]string)

	if h.store == nil {
		checks["rate_limit_store"] = "memory"
	} else if err := h.checkStore(r.Context()); err != nil {
		response.Status = "unhealthy"
		checks["rate_limit_store"] = "unhealthy: " + err.Error()
	} else {
		checks["rate_limit_store"] = "healthy"
	}

	// A missing key makes every chat request fail
	if h.provider != nil && h.provider.Configured() {
		checks["upstream"] = "configured"
	} else {
		response.Status = "unhealthy"
		checks["upstream"] = "unhealthy: OPENROUTER_API_KEY not set"
	}

	response.Checks = checks

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	respondJSON(w, statusCode, response)
}

func (h *HealthChecker) checkStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.store.Ping(ctx)
}

// Legacy handles the /health endpoint
func (h *HealthChecker) Legacy(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version handles the /version endpoint
func (h *HealthChecker) Version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version":    h.version,
		"go_version": runtime.Version(),
	})
}
