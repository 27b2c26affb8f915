package middleware

import (
	"context"
	"time"

	"codegen-app/internal/api/respond"
	"codegen-app/internal/domain/access"
	"codegen-app/internal/domain/billing"

	"github.com/gin-gonic/gin"
)

const CtxPolicy = "policy"

type PolicyResolver interface {
	Resolve(ctx context.Context, userID string) (access.Policy, *billing.Subscription, error)
	Check(ctx context.Context, userID string, p access.Policy) error
}

// RequireQuota resolves the caller's tier policy and refuses the request
// once its usage limits are spent. Anonymous callers get the free policy
// and are only held back by the IP rate limiter.
func RequireQuota(r PolicyResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		if userID == "" {
			c.Set(CtxPolicy, access.ComputePolicy(time.Now().UTC(), nil))
			c.Next()
			return
		}

		ctx := c.Request.Context()
		policy, _, err := r.Resolve(ctx, userID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if err := r.Check(ctx, userID, policy); err != nil {
			respond.Error(c, err)
			return
		}
		c.Set(CtxPolicy, policy)
		c.Next()
	}
}

// Policy returns the policy stored by RequireQuota.
func Policy(c *gin.Context) access.Policy {
	if v, ok := c.Get(CtxPolicy); ok {
		if p, ok := v.(access.Policy); ok {
			return p
		}
	}
	return access.ComputePolicy(time.Now().UTC(), nil)
}
