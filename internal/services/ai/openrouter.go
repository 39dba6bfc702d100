package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/emeraldgrove/grove-relay/internal/request"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the OpenRouter API base URL
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultTimeout bounds connecting and waiting for response headers
	DefaultTimeout = 60 * time.Second
	// PassthroughTitle is sent as X-Title on forwarded requests
	PassthroughTitle = "Emerald Grove Digital"

	chatCompletionsPath = "chat/completions"
	tracerName          = "github.com/emeraldgrove/grove-relay/internal/services/ai"
)

// Options configures an OpenRouterClient.
type Options struct {
	APIKey    string
	BaseURL   string
	SiteURL   string
	SiteTitle string
	// Timeout applies to connection setup and response headers, never to the body.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	DebugMode  bool
}

// OpenRouterClient implements Provider against OpenRouter's chat completions endpoint
type OpenRouterClient struct {
	client    openai.Client
	apiKey    string
	baseURL   string
	siteTitle string
	logger    *zap.Logger
	debugMode bool
	tracer    trace.Tracer
}

// NewOpenRouterClient creates a new OpenRouter client
func NewOpenRouterClient(opts Options) *OpenRouterClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.Timeout)
	}

	client := openai.NewClient(
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(opts.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		option.WithHeader("HTTP-Referer", opts.SiteURL),
		option.WithHeader("X-Title", opts.SiteTitle),
	)

	return &OpenRouterClient{
		client:    client,
		apiKey:    opts.APIKey,
		baseURL:   opts.BaseURL,
		siteTitle: opts.SiteTitle,
		logger:    opts.Logger,
		debugMode: opts.DebugMode,
		tracer:    otel.Tracer(tracerName),
	}
}

// newHTTPClient has no overall timeout so long streams are not cut off mid-body.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	transport.TLSHandshakeTimeout = min(timeout, transport.TLSHandshakeTimeout)
	return &http.Client{Transport: transport}
}

// Configured reports whether an API key is available
func (c *OpenRouterClient) Configured() bool {
	return c.apiKey != ""
}

// BaseURL returns the upstream base URL
func (c *OpenRouterClient) BaseURL() string {
	return c.baseURL
}

// ChatCompletion sends a chat completion request and returns the raw upstream response.
func (c *OpenRouterClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*http.Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat completion request: %w", err)
	}

	ctx, span := c.tracer.Start(ctx, "upstream.chat_completions",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", req.Model),
			attribute.Bool("llm.stream", req.Stream),
			attribute.Int("llm.message_count", len(req.Messages)),
		),
	)
	defer span.End()

	requestID := request.RequestIDFromContext(ctx)
	if c.debugMode {
		c.logger.Debug("llm_api_request",
			zap.String("operation", "chat"),
			zap.String("model", req.Model),
			zap.Bool("stream", req.Stream),
			zap.Int("message_count", len(req.Messages)),
			zap.Strings("messages_preview", SanitizeMessages(req.Messages, true)),
			zap.String("request_id", requestID),
		)
	}

	var opts []option.RequestOption
	if req.Stream {
		opts = append(opts, option.WithHeader("Accept", "text/event-stream"))
	}

	start := time.Now()
	resp, err := c.post(ctx, body, opts...)
	latency := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if c.debugMode {
			c.logger.Debug("llm_api_error",
				zap.String("operation", "chat"),
				zap.String("model", req.Model),
				zap.Error(err),
				zap.String("request_id", requestID),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if c.debugMode {
		c.logger.Debug("llm_api_response",
			zap.String("operation", "chat"),
			zap.String("model", req.Model),
			zap.Int("status", resp.StatusCode),
			zap.String("content_type", resp.Header.Get("Content-Type")),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return resp, nil
}

// Forward sends body to the upstream unchanged, as the passthrough route does.
func (c *OpenRouterClient) Forward(ctx context.Context, body []byte) (*http.Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	ctx, span := c.tracer.Start(ctx, "upstream.forward", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	resp, err := c.post(ctx, body, option.WithHeader("X-Title", PassthroughTitle))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

// post returns a 2xx response with an unread body, an *UpstreamError, or a transport error.
func (c *OpenRouterClient) post(ctx context.Context, body []byte, opts ...option.RequestOption) (*http.Response, error) {
	var resp *http.Response
	err := c.client.Post(ctx, chatCompletionsPath, body, &resp, opts...)

	// The SDK hands back error responses with their body buffered, whatever error it built from them.
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		defer resp.Body.Close()
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read upstream error body: %w", readErr)
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: data}
	}
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	return resp, nil
}
