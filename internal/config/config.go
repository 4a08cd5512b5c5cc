// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// commerce backend connection, local caches, the session database, the ops
// HTTP server, logging, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-storefront-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StoreConfig holds the commerce backend connection settings. The client id
// and secret are exchanged for bearer tokens on demand; RPS/Burst bound the
// outbound call rate against the backend.
type StoreConfig struct {
	BaseURL      string        // STORE_BASE_URL (required, no trailing slash)
	ClientID     string        // STORE_CLIENT_ID (required)
	ClientSecret string        // STORE_CLIENT_SECRET (required)
	HTTPTimeout  time.Duration // HTTP_TIMEOUT, connect+read budget per call
	RPS          float64       // STORE_RPS outbound tokens per second
	Burst        int           // STORE_BURST outbound bucket size
}

// Config holds all configuration values for the application.
type Config struct {
	// Commerce backend
	Store StoreConfig

	// Local state
	DBPath        string // SESSION_DB_PATH, SQLite session database
	ImageCacheDir string // IMAGE_CACHE_DIR, downloaded product photography
	StaticDir     string // STATIC_DIR, logo/cart screen images

	// Conversation
	PlaceholderEmailDomain string // PLACEHOLDER_EMAIL_DOMAIN for derived emails
	CurrencySymbol         string // CURRENCY_SYMBOL shown in captions

	// Ops server
	OpsPort           string        // OPS_PORT, just the number
	ReadTimeout       time.Duration // READ_TIMEOUT
	ReadHeaderTimeout time.Duration // READ_HEADER_TIMEOUT
	WriteTimeout      time.Duration // WRITE_TIMEOUT
	IdleTimeout       time.Duration // IDLE_TIMEOUT
	GinMode           string        // GIN_MODE debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Store: StoreConfig{
			BaseURL:      strings.TrimRight(getenv("STORE_BASE_URL", ""), "/"),
			ClientID:     getenv("STORE_CLIENT_ID", ""),
			ClientSecret: getenv("STORE_CLIENT_SECRET", ""),
			HTTPTimeout:  getdur("HTTP_TIMEOUT", 30*time.Second),
			RPS:          getfloat("STORE_RPS", 10.0),
			Burst:        getint("STORE_BURST", 20),
		},

		DBPath:        getenv("SESSION_DB_PATH", "bot.db"),
		ImageCacheDir: getenv("IMAGE_CACHE_DIR", "images"),
		StaticDir:     getenv("STATIC_DIR", "static"),

		PlaceholderEmailDomain: getenv("PLACEHOLDER_EMAIL_DOMAIN", "chat.local"),
		CurrencySymbol:         getenv("CURRENCY_SYMBOL", "$"),

		OpsPort:           getenv("OPS_PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-storefront-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Store.BaseURL) == "" {
		return cfg, errors.New("STORE_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.Store.ClientID) == "" || strings.TrimSpace(cfg.Store.ClientSecret) == "" {
		return cfg, errors.New("STORE_CLIENT_ID and STORE_CLIENT_SECRET must not be empty")
	}
	if cfg.Store.HTTPTimeout <= 0 {
		return cfg, errors.New("HTTP_TIMEOUT must be a positive duration")
	}
	if cfg.Store.RPS <= 0 {
		return cfg, errors.New("STORE_RPS must be > 0")
	}
	if cfg.Store.Burst < 1 {
		return cfg, errors.New("STORE_BURST must be >= 1")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("SESSION_DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.ImageCacheDir) == "" {
		return cfg, errors.New("IMAGE_CACHE_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.OpsPort) == "" {
		return cfg, errors.New("OPS_PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if strings.TrimSpace(cfg.PlaceholderEmailDomain) == "" {
		return cfg, errors.New("PLACEHOLDER_EMAIL_DOMAIN must not be empty")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
