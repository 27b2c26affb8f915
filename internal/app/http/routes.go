package routes

import (
	"context"
	"net/http"

	adminapi "codegen-app/internal/api/admin"
	billingapi "codegen-app/internal/api/billing"
	convapi "codegen-app/internal/api/conversations"
	generateapi "codegen-app/internal/api/generate"
	githubapi "codegen-app/internal/api/github"
	"codegen-app/internal/api/users"
	"codegen-app/internal/api/webhook"
	"codegen-app/internal/app/http/middleware"
	"codegen-app/internal/domain/billing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps carries the handlers and policies the router mounts.
type Deps struct {
	Verifier middleware.TokenVerifier
	Quota    middleware.PolicyResolver

	Conversations *convapi.Handler
	Billing       *billingapi.Handler
	Webhooks      *webhook.Handler
	Users         *users.Handler
	GitHub        *githubapi.Handler
	Generate      *generateapi.Handler
	Admin         *adminapi.Handler

	RateLimitRPS   float64
	RateLimitBurst int
	DevRoutes      bool
}

// RegisterRoutes mounts the API. ctx bounds background work started by
// middleware such as the limiter janitor.
func RegisterRoutes(ctx context.Context, r *gin.Engine, d Deps) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := middleware.AuthMiddleware(d.Verifier)
	api := r.Group("/api")

	// Conversations
	conv := api.Group("/conversations", authed)
	conv.POST("/create", middleware.SanitizeFields("title"), d.Conversations.Create)
	conv.GET("/list", d.Conversations.List)
	conv.GET("/:id", d.Conversations.Get)
	conv.PUT("/:id", middleware.SanitizeFields("title"), d.Conversations.Rename)
	conv.DELETE("/:id", d.Conversations.Delete)
	conv.POST("/:id/messages", d.Conversations.AddMessage)
	conv.POST("/:id/files", d.Conversations.SaveFiles)

	// Payments
	pay := api.Group("/payment")
	pay.GET("/pricing", d.Billing.Pricing)
	pay.POST("/webhook/stripe", d.Webhooks.Handle(billing.ProviderStripe))
	pay.POST("/webhook/paypal", d.Webhooks.Handle(billing.ProviderPayPal))

	payAuthed := pay.Group("/", authed)
	payAuthed.POST("/onetime/create", d.Billing.CreateOnetime)
	payAuthed.POST("/onetime/confirm", d.Billing.Confirm)
	payAuthed.GET("/history", d.Billing.History)
	if d.DevRoutes {
		payAuthed.POST("/test/complete", d.Billing.TestComplete)
	}

	// User
	user := api.Group("/user", authed)
	user.GET("/subscription", d.Users.GetSubscription)
	user.GET("/me", d.Users.GetCurrentUser)

	// GitHub
	gh := api.Group("/github")
	gh.GET("/callback", d.GitHub.Callback)
	gh.GET("/auth", authed, d.GitHub.Auth)
	gh.GET("/status", authed, d.GitHub.Status)
	gh.DELETE("/unbind", authed, d.GitHub.Unbind)

	// Code generation
	limited := middleware.RateLimit(ctx, d.RateLimitRPS, d.RateLimitBurst)
	optional := middleware.OptionalAuth(d.Verifier)
	quota := middleware.RequireQuota(d.Quota)
	api.POST("/generate", limited, optional, quota, d.Generate.Generate)
	api.POST("/modify-code", limited, optional, quota, d.Generate.ModifyCode)
	api.POST("/preview", limited, d.Generate.Preview)

	// Admin
	admin := api.Group("/admin", authed, middleware.RequireRole("admin"))
	admin.GET("/payments", d.Admin.ListAllPayments)
	admin.POST("/payments/:id/refund", d.Admin.RefundPayment)
	admin.GET("/stats", d.Admin.GetAdminStats)
	admin.GET("/users/:id", d.Admin.GetUserDetails)
}
