package billing

import (
	"codegen-app/internal/api/respond"
	"codegen-app/internal/app/http/middleware"

	"github.com/gin-gonic/gin"
)

type confirmRequest struct {
	PaymentID string `json:"paymentId" binding:"required"`
}

// Confirm polls the provider for the caller's payment and applies it once
// settled. PayPal orders are captured here after the buyer approves.
func (h *Handler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := respond.Bind(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	res, err := h.orders.Confirm(c.Request.Context(), middleware.UserID(c), req.PaymentID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	body := gin.H{"status": res.Status}
	if res.Subscription != nil {
		body["subscription"] = res.Subscription
	}
	respond.OK(c, body)
}
