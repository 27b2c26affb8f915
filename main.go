package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codegen-app/config"
	"codegen-app/database"
	adminapi "codegen-app/internal/api/admin"
	billingapi "codegen-app/internal/api/billing"
	convapi "codegen-app/internal/api/conversations"
	generateapi "codegen-app/internal/api/generate"
	githubapi "codegen-app/internal/api/github"
	"codegen-app/internal/api/respond"
	"codegen-app/internal/api/users"
	"codegen-app/internal/api/webhook"
	routes "codegen-app/internal/app/http"
	"codegen-app/internal/app/http/middleware"
	"codegen-app/internal/auth"
	"codegen-app/internal/domain/access"
	"codegen-app/internal/domain/billing"
	"codegen-app/internal/domain/conversations"
	"codegen-app/internal/domain/github"
	"codegen-app/internal/infra/cache"
	"codegen-app/internal/infra/llm"
	"codegen-app/internal/infra/paypal"
	"codegen-app/internal/infra/secretbox"
	"codegen-app/internal/infra/stripe"
	"codegen-app/internal/logger"
	"codegen-app/internal/telemetry"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "codegen-app"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName:  serviceName,
		Version:      cfg.ServiceVersion,
		Environment:  cfg.AppEnv,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRatio:  cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()

	db, err := database.Open(cfg.DBURL, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info("database connected and migrated")

	if err := respond.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	// Payments
	processor := billing.NewProcessor(db, log)
	providers := billing.NewProviders(
		stripe.New(stripe.Config{
			SecretKey:      cfg.StripeSecretKey,
			PublishableKey: cfg.StripePublishableKey,
			WebhookSecret:  cfg.StripeWebhookSecret,
			AppURL:         cfg.AppURL,
		}, log),
		paypal.New(paypal.Config{
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			WebhookID:    cfg.PayPalWebhookID,
			Mode:         cfg.PayPalMode,
			AppURL:       cfg.AppURL,
			BrandName:    serviceName,
		}, log),
	)
	orders := billing.NewOrderService(db, providers, processor, log)

	// GitHub linking needs redis for OAuth state and a key to seal tokens.
	// Either one missing leaves the routes answering NotConfigured.
	var states githubapi.StateStore
	rdb, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable, GitHub linking disabled", "error", err)
	} else {
		states = cache.NewStateStore(rdb, "oauth:github:")
	}
	defer rdb.Close()

	var sealer githubapi.Sealer
	if cfg.TokenEncryptionKey != "" {
		box, err := secretbox.New(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("token encryption key: %w", err)
		}
		sealer = box
	} else {
		log.Warn("TOKEN_ENCRYPTION_KEY not set, GitHub linking disabled")
	}

	verifier := auth.NewVerifier(ctx, auth.Config{
		Issuer:    cfg.AuthURL,
		Audience:  cfg.AuthAudience,
		JWTSecret: cfg.AuthJWTSecret,
		Leeway:    30 * time.Second,
	})
	if !verifier.Configured() {
		log.Warn("no token verification configured, authenticated routes will fail")
	}

	completer := llm.New(llm.Config{
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	})

	ghHandler := githubapi.NewHandler(githubapi.Config{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		RedirectURL:  cfg.GitHubRedirectURL,
		AppURL:       cfg.AppURL,
	}, states, sealer, github.NewStore(db))

	meter := access.NewMeter(db)
	convs := conversations.NewStore(db)

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(log),
		middleware.Security(cfg.AppURL),
		cors.New(cors.Config{
			AllowOrigins:     []string{cfg.CORSOrigin},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)

	routes.RegisterRoutes(ctx, r, routes.Deps{
		Verifier:       verifier,
		Quota:          meter,
		Conversations:  convapi.NewHandler(convs),
		Billing:        billingapi.NewHandler(db, orders, processor),
		Webhooks:       webhook.NewHandler(providers, processor),
		Users:          users.NewHandler(meter),
		GitHub:         ghHandler,
		Generate:       generateapi.NewHandler(completer, meter, convs),
		Admin:          adminapi.NewHandler(db, processor),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		DevRoutes:      cfg.IsDev(),
	})

	// No write timeout: /api/modify-code streams for as long as the model does.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(r, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
