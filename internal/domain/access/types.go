package access

import (
	"time"

	"codegen-app/internal/domain/plans"
)

type State string

const (
	StateActive   State = "active"
	StateInactive State = "inactive"
)

const (
	KindGenerate = "generate"
	KindModify   = "modify"
)

// UsageRecord is one authenticated LLM call.
type UsageRecord struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"type:varchar(64);not null;index:idx_usage_user_created,priority:1"`
	Kind      string    `gorm:"type:varchar(16);not null"`
	Model     string    `gorm:"type:varchar(64)"`
	Tokens    int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"index:idx_usage_user_created,priority:2"`
}

// Policy is what a user may do right now.
type Policy struct {
	Tier   string       `json:"tier"`
	State  State        `json:"status"`
	Limits plans.Limits `json:"limits"`
	Models []string     `json:"allowedModels"`
}

type UsageStats struct {
	RequestsToday      int64        `json:"requestsToday"`
	RequestsThisMonth  int64        `json:"requestsThisMonth"`
	TokensThisMonth    int64        `json:"tokensThisMonth"`
	RemainingToday     int64        `json:"remainingToday"`
	RemainingThisMonth int64        `json:"remainingThisMonth"`
	Limits             plans.Limits `json:"limits"`
	AllowedModels      []string     `json:"allowedModels"`
}
