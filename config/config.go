package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	AppEnv     string
	AppURL     string
	CORSOrigin string
	DBURL      string

	AuthURL       string
	AuthJWTSecret string
	AuthAudience  string

	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float32

	StripeSecretKey      string
	StripePublishableKey string
	StripeWebhookSecret  string

	PayPalClientID     string
	PayPalClientSecret string
	PayPalWebhookID    string
	PayPalMode         string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string

	TokenEncryptionKey string

	RedisAddr     string
	RedisPassword string

	OTLPEndpoint     string
	ServiceVersion   string
	TraceSampleRatio float64

	LogLevel  string
	LogFormat string

	RateLimitRPS   float64
	RateLimitBurst int

	ShutdownTimeout time.Duration
}

// IsDev reports whether dev-only routes should be mounted.
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev" || c.AppEnv == "development"
}

// Load reads .env (if any) and the process environment. Provider
// credentials are optional; only DB_URL is required.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found. Using system environment variables.")
	}

	var missing []string
	mustEnv := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		Port:   getEnv("PORT", "8080"),
		AppEnv: strings.ToLower(getEnv("APP_ENV", "dev")),
		AppURL: strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),
		DBURL:  mustEnv("DB_URL"),

		AuthURL:       strings.TrimRight(getEnv("AUTH_URL", ""), "/"),
		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		AuthAudience:  getEnv("AUTH_AUDIENCE", "authenticated"),

		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMBaseURL: getEnv("LLM_BASE_URL", ""),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),

		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),

		PayPalClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
		PayPalClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),
		PayPalWebhookID:    getEnv("PAYPAL_WEBHOOK_ID", ""),
		PayPalMode:         getEnv("PAYPAL_MODE", "sandbox"),

		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		GitHubRedirectURL:  getEnv("GITHUB_REDIRECT_URL", ""),

		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceVersion: getEnv("SERVICE_VERSION", "dev"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ShutdownTimeout: 10 * time.Second,
	}
	cfg.CORSOrigin = getEnv("CORS_ORIGIN", cfg.AppURL)

	var err error
	if cfg.LLMMaxTokens, err = getInt("LLM_MAX_TOKENS", 4000); err != nil {
		return nil, err
	}
	if cfg.LLMTemperature, err = getFloat32("LLM_TEMPERATURE", 0.7); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}
	rps, err := getFloat32("RATE_LIMIT_RPS", 1)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitRPS = float64(rps)
	ratio, err := getFloat32("OTEL_TRACES_SAMPLER_ARG", 1)
	if err != nil {
		return nil, err
	}
	cfg.TraceSampleRatio = float64(ratio)

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variable: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloat32(key string, fallback float32) (float32, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return float32(f), nil
}
