// Package server assembles the relay's HTTP routes and middleware.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/emeraldgrove/grove-relay/api/openapi"
	"github.com/emeraldgrove/grove-relay/internal/config"
	"github.com/emeraldgrove/grove-relay/internal/handlers"
	"github.com/emeraldgrove/grove-relay/internal/middleware"
	"github.com/emeraldgrove/grove-relay/internal/ratelimit"
	"github.com/emeraldgrove/grove-relay/internal/services/ai"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// ServiceName identifies the relay in traces.
const ServiceName = "grove-relay"

// utilityTimeout bounds the non-streaming utility routes.
const utilityTimeout = 10 * time.Second

// Deps are the collaborators the router wires together.
type Deps struct {
	Config   *config.Config
	Limiter  ratelimit.Limiter
	Store    handlers.Pinger // nil when quotas live in memory
	Provider ai.Provider
	Logger   *zap.Logger
	Version  string
	Tracing  bool
}

// NewRouter builds the relay router.
func NewRouter(d Deps) (*mux.Router, error) {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	openAPIHandler, err := handlers.NewOpenAPIHandler(openapi.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI specification: %w", err)
	}
	chatHandler := handlers.NewChatHandler(d.Provider, d.Limiter, handlers.ChatDefaults{
		Model:        cfg.AIModel,
		Temperature:  cfg.AITemperature,
		MaxTokens:    cfg.AIMaxTokens,
		RateLimitMax: cfg.RateLimitMax,
	}, logger)
	openRouterHandler := handlers.NewOpenRouterHandler(d.Provider, logger)
	healthChecker := handlers.NewHealthChecker(d.Store, d.Provider, d.Version)

	r := mux.NewRouter()

	// First registered runs outermost
	if d.Tracing {
		r.Use(otelmux.Middleware(ServiceName))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.RequestID)
	r.Use(middleware.ErrorHandler(logger))
	r.Use(middleware.Audit(logger))
	r.Use(middleware.Logging(logger))

	timeout := middleware.Timeout(utilityTimeout)

	r.Handle("/healthz", timeout(http.HandlerFunc(healthChecker.HealthCheck))).Methods("GET")
	r.HandleFunc("/health", healthChecker.Legacy).Methods("GET") // Legacy endpoint
	r.HandleFunc("/version", healthChecker.Version).Methods("GET")
	openAPIHandler.RegisterRoutes(r)

	// The relay routes share one quota and stream, so no timeout wrapper. Quota is
	// consumed before any body check so every rejection carries X-RateLimit-* headers.
	rateLimit := middleware.RateLimit(d.Limiter, cfg.RateLimitMax, cfg.RateLimitWindow, logger)
	maxSize := middleware.MaxRequestSize(cfg.MaxRequestBytes)
	relay := func(h http.HandlerFunc) http.Handler {
		return rateLimit(maxSize(middleware.ContentType(h)))
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/chat", relay(chatHandler.Chat)).Methods("POST")
	api.Handle("/chat/status", timeout(http.HandlerFunc(chatHandler.Status))).Methods("GET")
	api.Handle("/openrouter", relay(openRouterHandler.Forward)).Methods("POST")

	// Preflight requests need a matching route for the CORS middleware to run
	for _, path := range []string{"/chat", "/chat/status", "/openrouter"} {
		api.Handle(path, http.HandlerFunc(preflight)).Methods("OPTIONS")
	}

	r.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(handlers.NotFound)

	return r, nil
}

func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
