package users

import (
	"math"
	"time"

	"codegen-app/internal/domain/access"
	"codegen-app/internal/domain/billing"
	"codegen-app/internal/domain/plans"
)

func BuildSubscriptionDTO(now time.Time, p access.Policy, sub *billing.Subscription) SubscriptionDTO {
	dto := SubscriptionDTO{
		Tier:          p.Tier,
		Status:        string(p.State),
		Limits:        p.Limits,
		AllowedModels: p.Models,
		Features:      plans.Lookup(p.Tier).Features,
	}
	if sub == nil {
		return dto
	}
	start, end := sub.PeriodStart, sub.PeriodEnd
	dto.PeriodStart = &start
	dto.PeriodEnd = &end
	dto.DaysLeft = DaysLeft(now, end)
	return dto
}

// DaysLeft rounds a partial day up; a past end is zero.
func DaysLeft(now, end time.Time) int {
	if !now.Before(end) {
		return 0
	}
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}
