package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Rate limit store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Log output formats
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config holds application configuration
type Config struct {
	ServerPort         string
	FrontendURL        string
	OpenRouterKey      string
	OpenRouterBaseURL  string
	SiteURL            string
	SiteTitle          string
	AIModel            string
	AITemperature      float64
	AIMaxTokens        int
	UpstreamTimeout    time.Duration
	RateLimitMax       int
	RateLimitWindow    time.Duration
	RateLimitStore     string
	RedisURL           string
	MaxRequestBytes    int64
	ServerWriteTimeout time.Duration
	EnableHSTS         bool
	ServerDebugMode    bool
	LogFormat          string
	OTELEnabled        bool
	OTELEndpoint       string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
		OpenRouterKey:      getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL:  getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		SiteURL:            getEnv("SITE_URL", "http://localhost:3000"),
		SiteTitle:          getEnv("SITE_TITLE", "Emerald Grove AI Playground"),
		AIModel:            getEnv("AI_MODEL", "anthropic/claude-3.5-sonnet"),
		AITemperature:      getEnvFloat("AI_TEMPERATURE", 0.7),
		AIMaxTokens:        getEnvInt("AI_MAX_TOKENS", 4000),
		UpstreamTimeout:    getEnvDuration("UPSTREAM_TIMEOUT", 60*time.Second),
		RateLimitMax:       getEnvInt("RATE_LIMIT_MAX", 20),
		RateLimitWindow:    time.Duration(getEnvInt("RATE_LIMIT_WINDOW", 3600000)) * time.Millisecond,
		RateLimitStore:     strings.ToLower(getEnv("RATE_LIMIT_STORE", StoreMemory)),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		MaxRequestBytes:    int64(getEnvInt("MAX_REQUEST_BYTES", 4<<20)),
		ServerWriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 0),
		EnableHSTS:         getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode:    getEnvBool("SERVER_DEBUG_MODE", false),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", LogFormatJSON)),
		OTELEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.RateLimitMax <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", cfg.RateLimitMax)
	}
	if cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW must be a positive number of milliseconds")
	}
	switch cfg.RateLimitStore {
	case StoreMemory, StoreRedis:
	default:
		return nil, fmt.Errorf("RATE_LIMIT_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, cfg.RateLimitStore)
	}
	switch cfg.LogFormat {
	case LogFormatJSON, LogFormatConsole:
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be %q or %q, got %q", LogFormatJSON, LogFormatConsole, cfg.LogFormat)
	}
	if cfg.AIMaxTokens <= 0 {
		return nil, fmt.Errorf("AI_MAX_TOKENS must be positive, got %d", cfg.AIMaxTokens)
	}

	return cfg, nil
}

// AllowedOrigins splits FrontendURL into CORS origins, deduplicated, defaulting to localhost:3000.
func (c *Config) AllowedOrigins() []string {
	origins := []string{}
	seen := make(map[string]bool)
	for _, origin := range strings.Split(c.FrontendURL, ",") {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		origins = append(origins, trimmed)
	}
	if len(origins) == 0 {
		origins = append(origins, "http://localhost:3000")
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
