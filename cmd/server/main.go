package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emeraldgrove/grove-relay/internal/config"
	"github.com/emeraldgrove/grove-relay/internal/handlers"
	"github.com/emeraldgrove/grove-relay/internal/logger"
	"github.com/emeraldgrove/grove-relay/internal/ratelimit"
	"github.com/emeraldgrove/grove-relay/internal/server"
	"github.com/emeraldgrove/grove-relay/internal/services/ai"
	"github.com/emeraldgrove/grove-relay/internal/telemetry"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode, cfg.LogFormat == config.LogFormatConsole)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.Strings("allowed_origins", cfg.AllowedOrigins()),
		zap.String("ai_model", cfg.AIModel),
		zap.Int("rate_limit_max", cfg.RateLimitMax),
		zap.Duration("rate_limit_window", cfg.RateLimitWindow),
		zap.String("rate_limit_store", cfg.RateLimitStore),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracing := false
	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(context.Background(), telemetry.Options{
			ServiceName:    server.ServiceName,
			ServiceVersion: version,
			Endpoint:       cfg.OTELEndpoint,
		})
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracing = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	var (
		limiter ratelimit.Limiter
		store   handlers.Pinger
	)
	switch cfg.RateLimitStore {
	case config.StoreRedis:
		redisLimiter, err := ratelimit.NewRedisLimiter(context.Background(), cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisLimiter.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		limiter, store = redisLimiter, redisLimiter
		zapLogger.Info("connected_to_redis")
	default:
		limiter = ratelimit.NewMemoryLimiter()
	}

	provider := ai.NewOpenRouterClient(ai.Options{
		APIKey:    cfg.OpenRouterKey,
		BaseURL:   cfg.OpenRouterBaseURL,
		SiteURL:   cfg.SiteURL,
		SiteTitle: cfg.SiteTitle,
		Timeout:   cfg.UpstreamTimeout,
		Logger:    zapLogger,
		DebugMode: debugMode,
	})
	if !provider.Configured() {
		zapLogger.Warn("openrouter_api_key_not_configured")
	}

	router, err := server.NewRouter(server.Deps{
		Config:   cfg,
		Limiter:  limiter,
		Store:    store,
		Provider: provider,
		Logger:   zapLogger,
		Version:  version,
		Tracing:  tracing,
	})
	if err != nil {
		zapLogger.Fatal("failed_to_build_router", zap.Error(err))
	}

	// WriteTimeout stays at zero by default so long streams are not cut off.
	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   cfg.ServerWriteTimeout,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
