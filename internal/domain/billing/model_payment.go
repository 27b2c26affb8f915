package billing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment is an append-only record of one purchase attempt. Amount is in
// minor units. TransactionID is the provider session/order id.
type Payment struct {
	ID            string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID        string            `gorm:"type:varchar(64);not null;index:idx_payments_user_created,priority:1" json:"user_id"`
	Amount        int64             `gorm:"not null" json:"amount"`
	Currency      string            `gorm:"type:varchar(8);not null" json:"currency"`
	Status        string            `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	PaymentMethod string            `gorm:"type:varchar(16);not null;uniqueIndex:idx_payments_method_tx,priority:1" json:"payment_method"`
	TransactionID *string           `gorm:"type:varchar(255);uniqueIndex:idx_payments_method_tx,priority:2" json:"transaction_id"`
	PlanType      string            `gorm:"type:varchar(16)" json:"plan_type"`
	BillingCycle  string            `gorm:"type:varchar(16)" json:"billing_cycle"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	CreatedAt     time.Time         `gorm:"index:idx_payments_user_created,priority:2" json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// MetadataString reads a string value written at checkout.
func (p *Payment) MetadataString(key string) string {
	if p == nil || p.Metadata == nil {
		return ""
	}
	if s, ok := p.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// MetadataInt reads a numeric value written at checkout. Rows read back
// from the database carry json.Number; providers hand metadata back as
// strings.
func (p *Payment) MetadataInt(key string) int {
	if p == nil || p.Metadata == nil {
		return 0
	}
	switch v := p.Metadata[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		return atoiOrZero(v)
	}
	return 0
}
