package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
)

// Subscription holds a user's entitlement. A partial unique index keeps at
// most one active row per user.
type Subscription struct {
	ID                string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID            string    `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_subscriptions_active_user,where:status = 'active'" json:"user_id"`
	Tier              string    `gorm:"type:varchar(16);not null;default:free" json:"tier"`
	Status            string    `gorm:"type:varchar(16);not null;default:inactive" json:"status"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `gorm:"index" json:"period_end"`
	ProviderReference string    `gorm:"type:varchar(255)" json:"provider_reference"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ActiveAt reports whether the row grants its tier at now.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s != nil && s.Status == SubscriptionActive && now.Before(s.PeriodEnd)
}
