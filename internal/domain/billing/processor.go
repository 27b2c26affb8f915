package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/plans"
	"codegen-app/internal/telemetry"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
	ProviderTest   = "test"
)

var successEvents = map[string]map[string]bool{
	ProviderStripe: {
		"checkout.session.completed":               true,
		"checkout.session.async_payment_succeeded": true,
	},
	ProviderPayPal: {
		"PAYMENT.CAPTURE.COMPLETED": true,
		"CHECKOUT.ORDER.COMPLETED":  true,
	},
}

var failureEvents = map[string]map[string]bool{
	ProviderStripe: {
		"checkout.session.async_payment_failed": true,
		"checkout.session.expired":              true,
	},
	ProviderPayPal: {
		"PAYMENT.CAPTURE.DENIED":   true,
		"PAYMENT.CAPTURE.DECLINED": true,
	},
}

var (
	errAlreadyCompleted = errors.New("payment already completed")
	errSettled          = errors.New("payment already failed or refunded")
)

// ApplyResult describes what a successful Apply did.
type ApplyResult struct {
	Subscription *Subscription
	Payment      *Payment
	Tier         string
	Duplicate    bool
	// Settled is set when the payment had already failed or been refunded.
	// Nothing is granted.
	Settled bool
}

// Processor reconciles confirmed payments into subscriptions. It holds no
// mutable state and is safe for concurrent use.
type Processor struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewProcessor(db *gorm.DB, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Recognizes reports whether evt is a "payment succeeded" event for provider.
// Stripe completes async checkouts unpaid, so those are not success yet.
func (p *Processor) Recognizes(provider, eventType string, evt WebhookEvent) bool {
	if !successEvents[provider][eventType] {
		return false
	}
	if provider == ProviderStripe && eventType == "checkout.session.completed" {
		return evt.Paid
	}
	return true
}

func (p *Processor) IsFailure(provider, eventType string) bool {
	return failureEvents[provider][eventType]
}

// ProcessWebhook applies a verified success event. It returns true when the
// entitlement is in place, including replays of an already completed payment.
func (p *Processor) ProcessWebhook(ctx context.Context, provider, eventType string, evt WebhookEvent) bool {
	ctx, span := telemetry.Tracer().Start(ctx, "billing.ProcessWebhook")
	defer span.End()

	log := p.logger.With("provider", provider, "event_type", eventType, "event_id", evt.EventID)

	if !p.Recognizes(provider, eventType, evt) {
		log.Warn("webhook event rejected")
		telemetry.RecordWebhook(ctx, provider, "rejected")
		return false
	}

	res, err := p.Apply(ctx, provider, evt)
	if err != nil {
		log.Error("webhook processing failed", "transaction_id", evt.TransactionID, "error", err)
		telemetry.RecordWebhook(ctx, provider, "failed")
		return false
	}

	if res.Duplicate {
		log.Info("webhook replay ignored", "transaction_id", evt.TransactionID)
		telemetry.RecordWebhook(ctx, provider, "duplicate")
		return true
	}
	if res.Settled {
		status := ""
		if res.Payment != nil {
			status = res.Payment.Status
		}
		log.Warn("success event for settled payment acknowledged", "transaction_id", evt.TransactionID, "status", status)
		telemetry.RecordWebhook(ctx, provider, "settled")
		return true
	}

	log.Info("subscription updated",
		"transaction_id", evt.TransactionID,
		"user_id", res.Subscription.UserID,
		"tier", res.Tier,
		"period_end", res.Subscription.PeriodEnd,
	)
	telemetry.RecordWebhook(ctx, provider, "applied")
	return true
}

// Apply grants the entitlement for a settled payment. The subscription
// upsert and the payment completion commit together or not at all.
func (p *Processor) Apply(ctx context.Context, provider string, evt WebhookEvent) (*ApplyResult, error) {
	if evt.TransactionID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "Event has no transaction id")
	}

	res := &ApplyResult{}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := findPayment(tx, provider, evt)
		if err != nil {
			return err
		}

		if payment != nil {
			switch payment.Status {
			case StatusCompleted:
				res.Payment = payment
				return errAlreadyCompleted
			case StatusFailed, StatusRefunded:
				res.Payment = payment
				return errSettled
			}
		}

		fillFromPayment(&evt, payment)
		if evt.UserID == "" {
			return apperr.New(apperr.KindInvalidInput, "Event has no user id")
		}
		if payment != nil && payment.UserID != evt.UserID {
			return apperr.New(apperr.KindInvalidInput, "Event user does not own payment")
		}
		if evt.Days <= 0 {
			return apperr.New(apperr.KindInvalidInput, "Event has no entitlement days")
		}

		now := p.now()
		tier := plans.ResolveTier(evt.Tier, evt.Amount)

		sub, err := upsertSubscription(tx, evt.UserID, tier, evt.Days, evt.TransactionID, now)
		if err != nil {
			return err
		}

		payment, err = completePayment(tx, provider, payment, evt, tier, now)
		if err != nil {
			return err
		}

		res.Subscription = sub
		res.Payment = payment
		res.Tier = tier
		return nil
	})

	if errors.Is(err, errAlreadyCompleted) {
		res.Duplicate = true
		return res, nil
	}
	if errors.Is(err, errSettled) {
		res.Settled = true
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// MarkFailed moves a pending payment to failed. Missing or already settled
// payments are left alone.
func (p *Processor) MarkFailed(ctx context.Context, provider, transactionID string) error {
	if transactionID == "" {
		return nil
	}
	return p.db.WithContext(ctx).
		Model(&Payment{}).
		Where("payment_method = ? AND transaction_id = ? AND status = ?", provider, transactionID, StatusPending).
		Update("status", StatusFailed).Error
}

// Refund marks a completed payment refunded. The subscription is left to
// run out on its own period.
func (p *Processor) Refund(ctx context.Context, paymentID string) (*Payment, error) {
	var payment Payment
	if err := p.db.WithContext(ctx).Where("id = ?", paymentID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "Payment not found")
		}
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to load payment", err)
	}
	if !CanTransition(payment.Status, StatusRefunded) {
		return nil, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("Cannot refund a %s payment", payment.Status))
	}

	result := p.db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ? AND status = ?", payment.ID, StatusCompleted).
		Update("status", StatusRefunded)
	if result.Error != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to refund payment", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "Payment changed concurrently")
	}
	payment.Status = StatusRefunded
	return &payment, nil
}

func findPayment(tx *gorm.DB, provider string, evt WebhookEvent) (*Payment, error) {
	var payment Payment
	err := tx.Where("payment_method = ? AND transaction_id = ?", provider, evt.TransactionID).First(&payment).Error
	if err == nil {
		return &payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find payment by transaction: %w", err)
	}

	if evt.PaymentID == "" {
		return nil, nil
	}
	err = tx.Where("id = ? AND payment_method = ?", evt.PaymentID, provider).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment by id: %w", err)
	}
	return &payment, nil
}

// fillFromPayment completes an event from the metadata stored at checkout.
func fillFromPayment(evt *WebhookEvent, payment *Payment) {
	if payment == nil {
		return
	}
	if evt.UserID == "" {
		evt.UserID = payment.UserID
	}
	if evt.Tier == "" {
		evt.Tier = payment.MetadataString(MetaTier)
	}
	if evt.Tier == "" {
		evt.Tier = payment.PlanType
	}
	if evt.Days <= 0 {
		evt.Days = payment.MetadataInt(MetaDays)
	}
	if evt.Amount == 0 {
		evt.Amount = payment.Amount
	}
	if evt.Currency == "" {
		evt.Currency = payment.Currency
	}
}

func upsertSubscription(tx *gorm.DB, userID, tier string, days int, reference string, now time.Time) (*Subscription, error) {
	periodEnd := now.AddDate(0, 0, days)

	var sub Subscription
	err := tx.Where("user_id = ? AND status = ?", userID, SubscriptionActive).First(&sub).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"tier":               tier,
			"period_end":         periodEnd,
			"provider_reference": reference,
			"updated_at":         now,
		}
		if err := tx.Model(&sub).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("extend subscription: %w", err)
		}
		sub.Tier = tier
		sub.PeriodEnd = periodEnd
		sub.ProviderReference = reference
		sub.UpdatedAt = now
		return &sub, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		sub = Subscription{
			UserID:            userID,
			Tier:              tier,
			Status:            SubscriptionActive,
			PeriodStart:       now,
			PeriodEnd:         periodEnd,
			ProviderReference: reference,
		}
		if err := tx.Create(&sub).Error; err != nil {
			return nil, fmt.Errorf("create subscription: %w", err)
		}
		return &sub, nil

	default:
		return nil, fmt.Errorf("load subscription: %w", err)
	}
}

func completePayment(tx *gorm.DB, provider string, payment *Payment, evt WebhookEvent, tier string, now time.Time) (*Payment, error) {
	txID := evt.TransactionID

	if payment == nil {
		payment = &Payment{
			ID:            evt.PaymentID,
			UserID:        evt.UserID,
			Amount:        evt.Amount,
			Currency:      evt.Currency,
			Status:        StatusCompleted,
			PaymentMethod: provider,
			TransactionID: &txID,
			PlanType:      tier,
			Metadata: datatypes.JSONMap{
				MetaUserID: evt.UserID,
				MetaTier:   tier,
				MetaDays:   evt.Days,
			},
			CompletedAt: &now,
		}
		if err := tx.Create(payment).Error; err != nil {
			return nil, fmt.Errorf("record payment: %w", err)
		}
		return payment, nil
	}

	if !CanTransition(payment.Status, StatusCompleted) {
		return nil, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("Payment is %s and cannot complete", payment.Status))
	}

	result := tx.Model(&Payment{}).
		Where("id = ? AND status = ?", payment.ID, payment.Status).
		Updates(map[string]interface{}{
			"status":         StatusCompleted,
			"transaction_id": txID,
			"completed_at":   now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("complete payment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var current Payment
		if err := tx.Select("status").Where("id = ?", payment.ID).First(&current).Error; err != nil {
			return nil, fmt.Errorf("reload payment: %w", err)
		}
		switch current.Status {
		case StatusCompleted:
			return nil, errAlreadyCompleted
		case StatusFailed, StatusRefunded:
			return nil, errSettled
		}
		return nil, fmt.Errorf("payment %s moved to %s concurrently", payment.ID, current.Status)
	}

	payment.Status = StatusCompleted
	payment.TransactionID = &txID
	payment.CompletedAt = &now
	return payment, nil
}
