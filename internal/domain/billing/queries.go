package billing

import (
	"context"
	"errors"

	"codegen-app/internal/domain/apperr"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// CurrentSubscription returns the user's active row, or nil when none exists.
func CurrentSubscription(ctx context.Context, db *gorm.DB, userID string) (*Subscription, error) {
	var sub Subscription
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, SubscriptionActive).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to load subscription", err)
	}
	return &sub, nil
}

// PaymentHistory pages through a user's payments, newest first.
func PaymentHistory(ctx context.Context, db *gorm.DB, userID string, page, pageSize int) ([]Payment, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	scoped := func() *gorm.DB {
		return db.WithContext(ctx).Model(&Payment{}).Where("user_id = ?", userID)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.KindUpstream, "Failed to load payments", err)
	}

	payments := []Payment{}
	if err := scoped().
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&payments).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.KindUpstream, "Failed to load payments", err)
	}
	return payments, total, nil
}
