package users

import (
	"time"

	"codegen-app/internal/api/respond"
	"codegen-app/internal/app/http/middleware"
	"codegen-app/internal/domain/access"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	meter *access.Meter
	now   func() time.Time
}

func NewHandler(meter *access.Meter) *Handler {
	return &Handler{meter: meter, now: func() time.Time { return time.Now().UTC() }}
}

// GetSubscription returns the caller's effective tier and this period's usage.
func (h *Handler) GetSubscription(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	policy, sub, err := h.meter.Resolve(ctx, userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	stats, err := h.meter.Stats(ctx, userID, policy)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{
		"subscription": BuildSubscriptionDTO(h.now(), policy, sub),
		"usageStats":   stats,
	})
}

func (h *Handler) GetCurrentUser(c *gin.Context) {
	userID := middleware.UserID(c)
	policy, sub, err := h.meter.Resolve(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	resp := MeResponse{
		User: UserDTO{
			ID:    userID,
			Email: c.GetString(middleware.CtxEmail),
			Role:  c.GetString(middleware.CtxRole),
		},
		Subscription: BuildSubscriptionDTO(h.now(), policy, sub),
	}
	respond.OK(c, gin.H{"user": resp.User, "subscription": resp.Subscription})
}
