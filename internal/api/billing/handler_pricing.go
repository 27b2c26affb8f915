package billing

import (
	"strings"

	"codegen-app/internal/api/respond"
	"codegen-app/internal/domain/plans"

	"github.com/gin-gonic/gin"
)

type planDTO struct {
	Tier     string       `json:"tier"`
	Name     string       `json:"name"`
	Monthly  int64        `json:"monthly"`
	Yearly   int64        `json:"yearly"`
	Limits   plans.Limits `json:"limits"`
	Models   []string     `json:"models"`
	Features []string     `json:"features"`
}

// Pricing lists the purchasable plans for a payment method. Amounts are in
// minor units of the method's currency.
func (h *Handler) Pricing(c *gin.Context) {
	method := strings.ToLower(c.DefaultQuery("method", plans.MethodStripe))
	currency, err := plans.CurrencyFor(method)
	if err != nil {
		respond.Error(c, err)
		return
	}

	list := make([]planDTO, 0, 3)
	for _, p := range plans.Paid() {
		pr, err := plans.PlanPricing(p.Tier, method)
		if err != nil {
			respond.Error(c, err)
			return
		}
		list = append(list, planDTO{
			Tier:     p.Tier,
			Name:     p.Name,
			Monthly:  pr.Monthly,
			Yearly:   pr.Yearly,
			Limits:   p.Limits,
			Models:   p.Models,
			Features: p.Features,
		})
	}

	monthly, _ := plans.CycleDays(plans.CycleMonthly)
	yearly, _ := plans.CycleDays(plans.CycleYearly)

	respond.OK(c, gin.H{
		"method":      method,
		"currency":    currency,
		"plans":       list,
		"defaultPlan": plans.DefaultPaidTier,
		"cycles": gin.H{
			plans.CycleMonthly: monthly,
			plans.CycleYearly:  yearly,
		},
	})
}
