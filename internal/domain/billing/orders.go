package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/plans"
	"codegen-app/internal/telemetry"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DuplicateWindow is how long an identical order blocks a resubmission.
const DuplicateWindow = 60 * time.Second

type CreateOrderInput struct {
	UserID       string
	Email        string
	Method       string
	BillingCycle string
	PlanType     string
}

type CreatedOrder struct {
	PaymentID  string `json:"paymentId"`
	SessionID  string `json:"sessionId"`
	PaymentURL string `json:"paymentUrl"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Tier       string `json:"planType"`
	Days       int    `json:"days"`
}

type ConfirmResult struct {
	Status       string        `json:"status"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// OrderService opens checkouts and polls them to completion.
type OrderService struct {
	db        *gorm.DB
	providers *Providers
	processor *Processor
	logger    *slog.Logger
	now       func() time.Time
}

func NewOrderService(db *gorm.DB, providers *Providers, processor *Processor, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		db:        db,
		providers: providers,
		processor: processor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*CreatedOrder, error) {
	provider, err := s.providers.Get(in.Method)
	if err != nil {
		return nil, err
	}
	if err := provider.Usable(); err != nil {
		return nil, err
	}

	tier := plans.Normalize(in.PlanType)
	if tier == "" {
		tier = plans.DefaultPaidTier
	}
	pricing, err := plans.PlanPricing(tier, provider.Name())
	if err != nil {
		return nil, err
	}
	amount, err := pricing.Amount(in.BillingCycle)
	if err != nil {
		return nil, err
	}
	days, err := plans.CycleDays(in.BillingCycle)
	if err != nil {
		return nil, err
	}

	if err := s.checkDuplicate(ctx, in.UserID, amount, pricing.Currency, provider.Name()); err != nil {
		return nil, err
	}

	paymentID := uuid.NewString()
	payment := Payment{
		ID:            paymentID,
		UserID:        in.UserID,
		Amount:        amount,
		Currency:      pricing.Currency,
		Status:        StatusPending,
		PaymentMethod: provider.Name(),
		PlanType:      tier,
		BillingCycle:  in.BillingCycle,
		CreatedAt:     s.now(),
		Metadata: datatypes.JSONMap{
			MetaUserID:    in.UserID,
			MetaPaymentID: paymentID,
			MetaTier:      tier,
			MetaDays:      days,
			MetaCycle:     in.BillingCycle,
		},
	}
	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to create payment", err)
	}

	plan := plans.Lookup(tier)
	res := provider.CreateOnetimePayment(ctx, Order{
		PaymentID:    paymentID,
		UserID:       in.UserID,
		Email:        in.Email,
		Amount:       amount,
		Currency:     pricing.Currency,
		Description:  fmt.Sprintf("%s plan, %d days", plan.Name, days),
		PlanType:     tier,
		BillingCycle: in.BillingCycle,
		Metadata: map[string]string{
			MetaUserID:    in.UserID,
			MetaPaymentID: paymentID,
			MetaTier:      tier,
			MetaDays:      strconv.Itoa(days),
			MetaCycle:     in.BillingCycle,
		},
	})
	if !res.Success {
		s.markCreateFailed(ctx, paymentID)
		telemetry.RecordCheckout(ctx, provider.Name(), "failed")
		if res.Err != nil {
			if _, ok := apperr.As(res.Err); ok {
				return nil, res.Err
			}
			return nil, apperr.Wrap(apperr.KindUpstream, "Failed to create checkout session", res.Err)
		}
		return nil, apperr.New(apperr.KindUpstream, "Failed to create checkout session")
	}

	if err := s.db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ?", paymentID).
		Update("transaction_id", res.PaymentID).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to store checkout session", err)
	}

	telemetry.RecordCheckout(ctx, provider.Name(), "created")
	s.logger.Info("checkout created",
		"user_id", in.UserID,
		"payment_id", paymentID,
		"method", provider.Name(),
		"tier", tier,
		"amount", amount,
	)

	return &CreatedOrder{
		PaymentID:  paymentID,
		SessionID:  res.PaymentID,
		PaymentURL: res.PaymentURL,
		Amount:     amount,
		Currency:   pricing.Currency,
		Tier:       tier,
		Days:       days,
	}, nil
}

// checkDuplicate rejects an identical order placed inside DuplicateWindow.
func (s *OrderService) checkDuplicate(ctx context.Context, userID string, amount int64, currency, method string) error {
	now := s.now()
	var recent Payment
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND amount = ? AND currency = ? AND payment_method = ?", userID, amount, currency, method).
		Where("status IN ?", []string{StatusPending, StatusCompleted}).
		Where("created_at > ?", now.Add(-DuplicateWindow)).
		Order("created_at DESC").
		First(&recent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "Failed to check recent payments", err)
	}

	wait := DuplicateWindow - now.Sub(recent.CreatedAt)
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return apperr.Conflict("A payment for this plan was just created. Please wait before trying again", time.Duration(secs)*time.Second)
}

func (s *OrderService) markCreateFailed(ctx context.Context, paymentID string) {
	err := s.db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ? AND status = ?", paymentID, StatusPending).
		Update("status", StatusFailed).Error
	if err != nil {
		s.logger.Error("failed to mark payment failed", "payment_id", paymentID, "error", err)
	}
}

// Confirm asks the provider whether the caller's payment settled and, when
// it did, applies it the same way a webhook would.
func (s *OrderService) Confirm(ctx context.Context, userID, paymentID string) (*ConfirmResult, error) {
	var payment Payment
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", paymentID, userID).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "Payment not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to load payment", err)
	}

	switch payment.Status {
	case StatusCompleted:
		sub, err := CurrentSubscription(ctx, s.db, userID)
		if err != nil {
			return nil, err
		}
		return &ConfirmResult{Status: StatusCompleted, Subscription: sub}, nil
	case StatusFailed, StatusRefunded:
		return &ConfirmResult{Status: payment.Status}, nil
	}

	if payment.TransactionID == nil || *payment.TransactionID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "Payment has no checkout session")
	}

	provider, err := s.providers.Get(payment.PaymentMethod)
	if err != nil {
		return nil, err
	}

	conf := provider.ConfirmPayment(ctx, *payment.TransactionID)
	if !conf.Success {
		if conf.Failed {
			if err := s.processor.MarkFailed(ctx, provider.Name(), *payment.TransactionID); err != nil {
				return nil, apperr.Wrap(apperr.KindUpstream, "Failed to update payment", err)
			}
			s.logger.Info("checkout expired", "payment_id", payment.ID, "method", provider.Name())
			return &ConfirmResult{Status: StatusFailed}, nil
		}
		if conf.Pending {
			return &ConfirmResult{Status: StatusPending}, nil
		}
		if conf.Err != nil {
			if _, ok := apperr.As(conf.Err); ok {
				return nil, conf.Err
			}
			return nil, apperr.Wrap(apperr.KindUpstream, "Failed to confirm payment", conf.Err)
		}
		return nil, apperr.New(apperr.KindUpstream, "Failed to confirm payment")
	}

	evt := WebhookEvent{
		Provider:      provider.Name(),
		Type:          "confirm",
		TransactionID: *payment.TransactionID,
		PaymentID:     payment.ID,
		UserID:        payment.UserID,
		Amount:        conf.Amount,
		Currency:      conf.Currency,
		Paid:          true,
	}
	if conf.Metadata != nil {
		evt.Tier = conf.Metadata[MetaTier]
		evt.Days = atoiOrZero(conf.Metadata[MetaDays])
	}

	res, err := s.processor.Apply(ctx, provider.Name(), evt)
	if err != nil {
		return nil, err
	}
	if res.Settled {
		status := StatusFailed
		if res.Payment != nil {
			status = res.Payment.Status
		}
		return &ConfirmResult{Status: status}, nil
	}
	sub := res.Subscription
	if sub == nil {
		if sub, err = CurrentSubscription(ctx, s.db, userID); err != nil {
			return nil, err
		}
	}
	return &ConfirmResult{Status: StatusCompleted, Subscription: sub}, nil
}
