package billing

import (
	"codegen-app/internal/api/respond"
	"codegen-app/internal/app/http/middleware"
	"codegen-app/internal/domain/billing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type testCompleteRequest struct {
	Amount int64 `json:"amount" binding:"required,min=1"`
	Days   int   `json:"days" binding:"required,min=1,max=3660"`
}

// TestComplete settles a synthetic payment for the caller without a
// provider. The tier is derived from the amount. Registered in dev only.
func (h *Handler) TestComplete(c *gin.Context) {
	var req testCompleteRequest
	if err := respond.Bind(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	res, err := h.processor.Apply(c.Request.Context(), billing.ProviderTest, billing.WebhookEvent{
		Provider:      billing.ProviderTest,
		Type:          "test.completed",
		TransactionID: "test_" + uuid.NewString(),
		UserID:        middleware.UserID(c),
		Days:          req.Days,
		Amount:        req.Amount,
		Currency:      "USD",
		Paid:          true,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{
		"tier":         res.Tier,
		"payment":      res.Payment,
		"subscription": res.Subscription,
	})
}
