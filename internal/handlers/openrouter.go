package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	logpkg "github.com/emeraldgrove/grove-relay/internal/logger"
	"github.com/emeraldgrove/grove-relay/internal/request"
	"github.com/emeraldgrove/grove-relay/internal/services/ai"
	"go.uber.org/zap"
)

// OpenRouterHandler forwards OpenAI-compatible request bodies to the upstream untouched
type OpenRouterHandler struct {
	provider ai.Provider
	logger   *zap.Logger
}

// NewOpenRouterHandler creates a new passthrough handler
func NewOpenRouterHandler(provider ai.Provider, logger *zap.Logger) *OpenRouterHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenRouterHandler{provider: provider, logger: logger}
}

// Forward handles POST /api/openrouter. The upstream status and JSON body are returned as-is.
func (h *OpenRouterHandler) Forward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.RequestIDFromContext(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request entity too large", nil)
			return
		}
		respondJSONError(w, http.StatusInternalServerError, sanitizeErrorMessage(err.Error()), nil)
		return
	}
	if !json.Valid(body) {
		respondJSONError(w, http.StatusInternalServerError, "Invalid JSON body", nil)
		return
	}

	resp, err := h.provider.Forward(ctx, body)
	if err != nil {
		var upErr *ai.UpstreamError
		if errors.As(err, &upErr) {
			h.logger.Warn("upstream_error",
				zap.Int("status_code", upErr.StatusCode),
				zap.String("request_id", requestID),
			)
			h.writeUpstreamJSON(w, upErr.StatusCode, upErr.Body)
			return
		}
		if ctx.Err() != nil {
			return
		}
		h.logger.Error("upstream_request_failed",
			zap.String("error", logpkg.SanitizeError(err)),
			zap.String("request_id", requestID),
		)
		respondJSONError(w, http.StatusInternalServerError, sanitizeErrorMessage(err.Error()), nil)
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, sanitizeErrorMessage(err.Error()), nil)
		return
	}
	h.writeUpstreamJSON(w, resp.StatusCode, data)
}

func (h *OpenRouterHandler) writeUpstreamJSON(w http.ResponseWriter, status int, data []byte) {
	if !json.Valid(data) {
		respondJSONError(w, http.StatusInternalServerError, "Upstream returned a non-JSON response", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("failed_to_write_response", zap.Error(err))
	}
}

// MethodNotAllowed answers requests whose path exists but whose method does not.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondJSONError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
}

// NotFound answers unknown paths with a JSON body.
func NotFound(w http.ResponseWriter, r *http.Request) {
	respondJSONError(w, http.StatusNotFound, "Not found", nil)
}
