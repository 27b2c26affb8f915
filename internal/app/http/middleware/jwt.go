package middleware

import (
	"context"
	"net/http"
	"strings"

	"codegen-app/internal/api/respond"
	"codegen-app/internal/auth"
	"codegen-app/internal/domain/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CtxUserID = "user_id"
	CtxEmail  = "email"
	CtxRole   = "role"
)

type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Claims, error)
}

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	tok := strings.TrimPrefix(h, "Bearer ")
	if h == "" || tok == h || strings.TrimSpace(tok) == "" {
		return "", false
	}
	return strings.TrimSpace(tok), true
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(CtxUserID, claims.UserID)
	c.Set(CtxEmail, claims.Email)
	c.Set(CtxRole, claims.Role)
	respond.SetLogger(c, respond.Logger(c).With("user_id", claims.UserID))
}

// AuthMiddleware requires a valid bearer token. Every failure gets the same
// 401 body; a verifier with no key material is a 500.
func AuthMiddleware(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearer(c)
		if !ok {
			respond.Unauthorized(c)
			return
		}
		claims, err := v.Verify(c.Request.Context(), tok)
		if err != nil {
			if apperr.Is(err, apperr.KindNotConfigured) {
				respond.Error(c, err)
				return
			}
			respond.Unauthorized(c)
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and lets
// anonymous requests through. A token that fails verification is still a 401.
func OptionalAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearer(c)
		if !ok {
			c.Next()
			return
		}
		claims, err := v.Verify(c.Request.Context(), tok)
		if err != nil {
			respond.Unauthorized(c)
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(CtxRole)
		if !exists {
			respond.Unauthorized(c)
			return
		}
		if value != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "Access denied"})
			return
		}
		c.Next()
	}
}

// UserID is the authenticated caller, or "" for anonymous requests.
func UserID(c *gin.Context) string { return c.GetString(CtxUserID) }
