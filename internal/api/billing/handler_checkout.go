package billing

import (
	"codegen-app/internal/api/respond"
	"codegen-app/internal/app/http/middleware"
	"codegen-app/internal/domain/billing"

	"github.com/gin-gonic/gin"
)

type createRequest struct {
	Method       string `json:"method" binding:"required"`
	BillingCycle string `json:"billingCycle" binding:"required"`
	PlanType     string `json:"planType"`
}

// CreateOnetime opens a provider checkout for one billing cycle of a plan.
func (h *Handler) CreateOnetime(c *gin.Context) {
	var req createRequest
	if err := respond.Bind(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	order, err := h.orders.Create(c.Request.Context(), billing.CreateOrderInput{
		UserID:       middleware.UserID(c),
		Email:        c.GetString(middleware.CtxEmail),
		Method:       req.Method,
		BillingCycle: req.BillingCycle,
		PlanType:     req.PlanType,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{
		"paymentId":  order.PaymentID,
		"sessionId":  order.SessionID,
		"paymentUrl": order.PaymentURL,
		"amount":     order.Amount,
		"currency":   order.Currency,
		"planType":   order.Tier,
		"days":       order.Days,
	})
}
