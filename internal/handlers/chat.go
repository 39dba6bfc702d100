package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	logpkg "github.com/emeraldgrove/grove-relay/internal/logger"
	"github.com/emeraldgrove/grove-relay/internal/models"
	"github.com/emeraldgrove/grove-relay/internal/ratelimit"
	"github.com/emeraldgrove/grove-relay/internal/request"
	"github.com/emeraldgrove/grove-relay/internal/services/ai"
	"github.com/emeraldgrove/grove-relay/internal/sse"
	"github.com/emeraldgrove/grove-relay/internal/validation"
	"go.uber.org/zap"
)

// ChatDefaults fill in relay parameters the browser leaves out.
type ChatDefaults struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// RateLimitMax is reported by the status endpoint.
	RateLimitMax int
}

// ChatHandler relays chat requests to the upstream model provider
type ChatHandler struct {
	provider ai.Provider
	limiter  ratelimit.Limiter
	defaults ChatDefaults
	logger   *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(provider ai.Provider, limiter ratelimit.Limiter, defaults ChatDefaults, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		provider: provider,
		limiter:  limiter,
		defaults: defaults,
		logger:   logger,
	}
}

// Chat handles POST /api/chat. Quota has already been consumed by the rate-limit middleware.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request entity too large", nil)
			return
		}
		h.logger.Warn("invalid_chat_body",
			zap.String("error", logpkg.SanitizeError(err)),
			zap.String("request_id", request.RequestIDFromContext(ctx)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal server error", sanitizeErrorMessage(err.Error()))
		return
	}

	messages, err := validation.ValidateChatRequest(&req)
	if err != nil {
		var paramsErr *validation.ParamsError
		switch {
		case errors.As(err, &paramsErr):
			respondJSONError(w, http.StatusBadRequest, "Invalid request parameters", paramsErr.Fields)
		case errors.Is(err, validation.ErrInvalidMessages):
			respondJSONError(w, http.StatusBadRequest, "Invalid messages format", nil)
		default:
			respondJSONError(w, http.StatusInternalServerError, "Internal server error", sanitizeErrorMessage(err.Error()))
		}
		return
	}

	if !h.provider.Configured() {
		h.logger.Error("openrouter_api_key_missing")
		respondJSONError(w, http.StatusInternalServerError, ai.ErrNotConfigured.Error(), nil)
		return
	}

	upstreamReq := h.buildUpstreamRequest(&req, messages)
	resp, err := h.provider.ChatCompletion(ctx, upstreamReq)
	if err != nil {
		h.respondUpstreamError(w, r, err)
		return
	}
	defer resp.Body.Close()

	if upstreamReq.Stream {
		h.stream(w, r, resp.Body)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		h.logger.Error("failed_to_read_upstream_response", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal server error", sanitizeErrorMessage(err.Error()))
		return
	}

	completion := ai.ParseCompletion(body)
	respondJSON(w, http.StatusOK, models.ChatResponse{
		Message: completion.Message,
		Model:   completion.Model,
		Usage:   completion.Usage,
	})
}

func (h *ChatHandler) buildUpstreamRequest(req *models.ChatRequest, messages []models.Message) ai.ChatCompletionRequest {
	out := ai.ChatCompletionRequest{
		Model:       h.defaults.Model,
		Messages:    ai.ApplySystemPrompt(messages, validation.SanitizeText(req.SystemPrompt)),
		Temperature: h.defaults.Temperature,
		MaxTokens:   h.defaults.MaxTokens,
		Stream:      req.Stream,
	}
	if req.Model != "" {
		out.Model = req.Model
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	return out
}

// stream re-frames the upstream event stream to the client. Once headers are out,
// failures abort the connection instead of writing a second status.
func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, upstream io.Reader) {
	ctx := r.Context()
	requestID := request.RequestIDFromContext(ctx)

	sw := sse.NewWriter(w)
	sw.SetHeaders()

	frames := 0
	err := sse.Relay(ctx, upstream, func(f sse.Frame) error {
		frames++
		return sw.WriteFrame(f)
	})

	switch {
	case err == nil:
		h.logger.Debug("stream_completed",
			zap.Int("frames", frames),
			zap.String("request_id", requestID),
		)
	case ctx.Err() != nil:
		h.logger.Info("client_disconnected",
			zap.Int("frames", frames),
			zap.String("request_id", requestID),
		)
	default:
		h.logger.Warn("stream_aborted",
			zap.Int("frames", frames),
			zap.String("error", logpkg.SanitizeError(err)),
			zap.String("request_id", requestID),
		)
		panic(http.ErrAbortHandler)
	}
}

func (h *ChatHandler) respondUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := request.RequestIDFromContext(r.Context())

	var upErr *ai.UpstreamError
	switch {
	case errors.As(err, &upErr):
		h.logger.Warn("upstream_error",
			zap.Int("status_code", upErr.StatusCode),
			zap.String("request_id", requestID),
		)
		respondJSONError(w, upErr.StatusCode, "Failed to get AI response", upErr.Details())
	case errors.Is(err, ai.ErrNotConfigured):
		respondJSONError(w, http.StatusInternalServerError, ai.ErrNotConfigured.Error(), nil)
	case errors.Is(err, context.Canceled):
		h.logger.Info("client_disconnected", zap.String("request_id", requestID))
	default:
		h.logger.Error("upstream_request_failed",
			zap.String("error", logpkg.SanitizeError(err)),
			zap.String("request_id", requestID),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal server error", sanitizeErrorMessage(err.Error()))
	}
}

// Status handles GET /api/chat/status without consuming quota.
func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := request.ClientIdentifier(r)
	st, err := h.limiter.Status(r.Context(), id, h.defaults.RateLimitMax)
	if err != nil {
		h.logger.Error("rate_limit_status_failed",
			zap.String("client_id", logpkg.SanitizeClientID(id)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal server error", "rate limit store unavailable")
		return
	}

	resp := models.StatusResponse{Limit: h.defaults.RateLimitMax, Remaining: st.Remaining}
	if st.ResetAt != nil {
		reset := ratelimit.FormatResetTime(*st.ResetAt)
		resp.ResetAt = &reset
	}
	respondJSON(w, http.StatusOK, resp)
}
