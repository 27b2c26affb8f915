package users

import (
	"time"

	"codegen-app/internal/domain/plans"
)

type MeResponse struct {
	User         UserDTO         `json:"user"`
	Subscription SubscriptionDTO `json:"subscription"`
}

type UserDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// SubscriptionDTO is the effective entitlement. A user without a paid
// period shows as the free tier with status inactive.
type SubscriptionDTO struct {
	Tier          string       `json:"tier"`
	Status        string       `json:"status"`
	PeriodStart   *time.Time   `json:"periodStart"`
	PeriodEnd     *time.Time   `json:"periodEnd"`
	DaysLeft      int          `json:"daysLeft"`
	Limits        plans.Limits `json:"limits"`
	AllowedModels []string     `json:"allowedModels"`
	Features      []string     `json:"features"`
}
