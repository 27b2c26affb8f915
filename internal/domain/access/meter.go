package access

import (
	"context"
	"time"

	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/billing"
	"codegen-app/internal/domain/plans"

	"gorm.io/gorm"
)

// Meter counts LLM usage per user against tier limits.
type Meter struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMeter(db *gorm.DB) *Meter {
	return &Meter{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Resolve loads the user's subscription and turns it into a Policy.
func (m *Meter) Resolve(ctx context.Context, userID string) (Policy, *billing.Subscription, error) {
	sub, err := billing.CurrentSubscription(ctx, m.db, userID)
	if err != nil {
		return Policy{}, nil, err
	}
	return ComputePolicy(m.now(), sub), sub, nil
}

func (m *Meter) Stats(ctx context.Context, userID string, p Policy) (UsageStats, error) {
	now := m.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var month struct {
		Requests int64
		Tokens   int64
	}
	db := m.db.WithContext(ctx)
	if err := db.Model(&UsageRecord{}).
		Select("COUNT(*) AS requests, COALESCE(SUM(tokens), 0) AS tokens").
		Where("user_id = ? AND created_at >= ?", userID, monthStart).
		Scan(&month).Error; err != nil {
		return UsageStats{}, apperr.Wrap(apperr.KindUpstream, "Failed to load usage", err)
	}

	var today int64
	if err := db.Model(&UsageRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, dayStart).
		Count(&today).Error; err != nil {
		return UsageStats{}, apperr.Wrap(apperr.KindUpstream, "Failed to load usage", err)
	}

	return UsageStats{
		RequestsToday:      today,
		RequestsThisMonth:  month.Requests,
		TokensThisMonth:    month.Tokens,
		RemainingToday:     remaining(p.Limits.RequestsPerDay, today),
		RemainingThisMonth: remaining(p.Limits.RequestsPerMonth, month.Requests),
		Limits:             p.Limits,
		AllowedModels:      p.Models,
	}, nil
}

func remaining(limit int, used int64) int64 {
	if limit == plans.Unlimited {
		return plans.Unlimited
	}
	if left := int64(limit) - used; left > 0 {
		return left
	}
	return 0
}

// Check refuses a call once the daily or monthly limit is used up.
func (m *Meter) Check(ctx context.Context, userID string, p Policy) error {
	stats, err := m.Stats(ctx, userID, p)
	if err != nil {
		return err
	}
	if stats.RemainingToday == 0 {
		return apperr.New(apperr.KindQuotaExceeded, "Daily request limit reached for the "+p.Tier+" plan")
	}
	if stats.RemainingThisMonth == 0 {
		return apperr.New(apperr.KindQuotaExceeded, "Monthly request limit reached for the "+p.Tier+" plan")
	}
	return nil
}

func (m *Meter) Record(ctx context.Context, userID, kind, model string, tokens int) error {
	rec := UsageRecord{UserID: userID, Kind: kind, Model: model, Tokens: tokens, CreatedAt: m.now()}
	if err := m.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return apperr.Wrap(apperr.KindUpstream, "Failed to record usage", err)
	}
	return nil
}
