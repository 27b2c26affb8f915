package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/plans"
	"codegen-app/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeProvider struct {
	name     string
	usable   error
	checkout CheckoutResult
	confirm  Confirmation
	orders   []Order
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Usable() error { return f.usable }

func (f *fakeProvider) WebhookConfigured() error { return nil }

// CreateOnetimePayment hands out a distinct session id per order after the
// first, the way a real provider would.
func (f *fakeProvider) CreateOnetimePayment(_ context.Context, order Order) CheckoutResult {
	f.orders = append(f.orders, order)
	res := f.checkout
	if res.Success && len(f.orders) > 1 {
		res.PaymentID = fmt.Sprintf("%s_%d", res.PaymentID, len(f.orders))
	}
	return res
}

func (f *fakeProvider) ConfirmPayment(context.Context, string) Confirmation { return f.confirm }

func (f *fakeProvider) VerifyWebhookSignature(context.Context, []byte, http.Header) bool {
	return true
}

func (f *fakeProvider) ParseWebhook(context.Context, []byte, http.Header) (WebhookEvent, error) {
	return WebhookEvent{}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	return testutil.NewDB(t, &Payment{}, &Subscription{})
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedPayment(t *testing.T, db *gorm.DB, p Payment) Payment {
	t.Helper()
	require.NoError(t, db.Create(&p).Error)
	return p
}

func strPtr(s string) *string { return &s }

func countPayments(t *testing.T, db *gorm.DB, where string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&Payment{}).Where(where, args...).Count(&n).Error)
	return n
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusCompleted))
	assert.True(t, CanTransition(StatusPending, StatusFailed))
	assert.True(t, CanTransition(StatusCompleted, StatusRefunded))

	assert.False(t, CanTransition(StatusCompleted, StatusPending))
	assert.False(t, CanTransition(StatusFailed, StatusCompleted))
	assert.False(t, CanTransition(StatusRefunded, StatusCompleted))
	assert.False(t, CanTransition(StatusPending, StatusRefunded))
}

func TestProcessWebhookIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = fixedClock(now)

	seedPayment(t, db, Payment{
		ID: "pay-1", UserID: "user-a", Amount: 299, Currency: "USD",
		Status: StatusPending, PaymentMethod: ProviderStripe,
		TransactionID: strPtr("cs_test_1"), PlanType: plans.TierPro,
	})

	evt := WebhookEvent{
		TransactionID: "cs_test_1", UserID: "user-a", Days: 30,
		Amount: 299, Currency: "USD", Tier: plans.TierPro, Paid: true,
	}
	ctx := context.Background()

	require.True(t, p.ProcessWebhook(ctx, ProviderStripe, "checkout.session.completed", evt))

	p.now = fixedClock(now.Add(time.Hour))
	require.True(t, p.ProcessWebhook(ctx, ProviderStripe, "checkout.session.completed", evt))

	assert.EqualValues(t, 1, countPayments(t, db, "status = ?", StatusCompleted))

	var subs []Subscription
	require.NoError(t, db.Find(&subs).Error)
	require.Len(t, subs, 1)
	assert.Equal(t, plans.TierPro, subs[0].Tier)
	assert.Equal(t, SubscriptionActive, subs[0].Status)
	assert.True(t, subs[0].PeriodEnd.Equal(now.AddDate(0, 0, 30)), "replay must not extend the period")
}

func TestProcessWebhookExtendsActiveSubscription(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db, nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = fixedClock(start)
	ctx := context.Background()

	first := WebhookEvent{TransactionID: "cs_1", UserID: "u", Days: 30, Amount: 99, Currency: "USD", Tier: "basic", Paid: true}
	require.True(t, p.ProcessWebhook(ctx, ProviderStripe, "checkout.session.completed", first))

	later := start.Add(10 * 24 * time.Hour)
	p.now = fixedClock(later)
	second := WebhookEvent{TransactionID: "cs_2", UserID: "u", Days: 365, Amount: 9990, Currency: "USD", Tier: "premium", Paid: true}
	require.True(t, p.ProcessWebhook(ctx, ProviderStripe, "checkout.session.completed", second))

	var subs []Subscription
	require.NoError(t, db.Where("user_id = ?", "u").Find(&subs).Error)
	require.Len(t, subs, 1)
	assert.Equal(t, plans.TierPremium, subs[0].Tier)
	assert.True(t, subs[0].PeriodStart.Equal(start))
	assert.True(t, subs[0].PeriodEnd.Equal(later.AddDate(0, 0, 365)))
	assert.Equal(t, "cs_2", subs[0].ProviderReference)

	// payments unknown to us are recorded as completed
	assert.EqualValues(t, 2, countPayments(t, db, "user_id = ? AND status = ?", "u", StatusCompleted))
}

func TestProcessWebhookTierFromMetadataOverAmount(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db, nil)

	seedPayment(t, db, Payment{
		ID: "pay-y", UserID: "u", Amount: 990, Currency: "USD",
		Status: StatusPending, PaymentMethod: ProviderPayPal,
		TransactionID: strPtr("ORDER-1"), PlanType: plans.TierBasic,
		Metadata: map[string]interface{}{MetaTier: "basic", MetaDays: 365},
	})

	// PayPal events carry no tier or days; both come from checkout metadata
	evt := WebhookEvent{TransactionID: "ORDER-1", PaymentID: "pay-y", Amount: 990, Currency: "USD"}
	require.True(t, p.ProcessWebhook(context.Background(), ProviderPayPal, "PAYMENT.CAPTURE.COMPLETED", evt))

	sub, err := CurrentSubscription(context.Background(), db, "u")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, plans.TierBasic, sub.Tier, "amount alone would have inferred pro")
}

func TestProcessWebhookFallsBackToAmount(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db, nil)

	evt := WebhookEvent{TransactionID: "cs_x", UserID: "u", Days: 30, Amount: 999, Currency: "USD", Paid: true}
	require.True(t, p.ProcessWebhook(context.Background(), ProviderStripe, "checkout.session.async_payment_succeeded", evt))

	sub, err := CurrentSubscription(context.Background(), db, "u")
	require.NoError(t, err)
	assert.Equal(t, plans.TierPremium, sub.Tier)
}

func TestProcessWebhookRejects(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db, nil)
	ctx := context.Background()

	good := WebhookEvent{TransactionID: "cs_1", UserID: "u", Days: 30, Amount: 299, Paid: true}

	assert.False(t, p.ProcessWebhook(ctx, ProviderStripe, "invoice.paid", good))
	assert.False(t, p.ProcessWebhook(ctx, ProviderPayPal, "checkout.session.completed", good))

	unpaid := good
	unpaid.Paid = false
	assert.False(t, p.ProcessWebhook(ctx, ProviderStripe, "checkout.session.completed", unpaid))

	noUser := good
	noUser.UserID = ""
	assert.False(t, p.ProcessWebhook(ctx, ProviderStripe, "checkout.session.completed", noUser))

	noDays := good
	noDays.Days = 0
	assert.False(t, p.ProcessWebhook(ctx, ProviderStripe, "checkout.session.completed", noDays))

	var n int64
	require.NoError(t, db.Model(&Subscription{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestProcessWebhookAcksSuccessForFailedPayment(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db, nil)
	ctx := context.Background()

	seedPayment(t, db, Payment{
		ID: "pay-f", UserID: "u", Amount: 299, Currency: "USD",
		Status: StatusFailed, PaymentMethod: ProviderStripe, TransactionID: strPtr("cs_f"),
	})
	evt := WebhookEvent{TransactionID: "cs_f", UserID: "u", Days: 30, Amount: 299, Paid: true}

	res, err := p.Apply(ctx, ProviderStripe, evt)
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Nil(t, res.Subscription)

	assert.True(t, p.ProcessWebhook(ctx, ProviderStripe, "checkout.session.completed", evt), "acked so the provider stops retrying")

	var n int64
	require.NoError(t, db.Model(&Subscription{}).Count(&n).Error)
	assert.Zero(t, n, "failed payment grants nothing")
	assert.EqualValues(t, 1, countPayments(t, db, "id = ? AND status = ?", "pay-f", StatusFailed))
}

func TestApplyReadsDaysFromStoredMetadata(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = fixedClock(now)

	seedPayment(t, db, Payment{
		ID: "pay-pp", UserID: "u", Amount: 2990, Currency: "USD",
		Status: StatusPending, PaymentMethod: ProviderPayPal, TransactionID: strPtr("ORDER-1"),
		Metadata: datatypes.JSONMap{MetaUserID: "u", MetaTier: plans.TierPro, MetaDays: 365},
	})

	var stored Payment
	require.NoError(t, db.First(&stored, "id = ?", "pay-pp").Error)
	assert.Equal(t, 365, stored.MetadataInt(MetaDays))

	// PayPal capture events carry no days; they come from the stored row
	res, err := p.Apply(context.Background(), ProviderPayPal, WebhookEvent{TransactionID: "ORDER-1", Amount: 2990, Paid: true})
	require.NoError(t, err)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, "u", res.Subscription.UserID)
	assert.True(t, res.Subscription.PeriodEnd.Equal(now.AddDate(0, 0, 365)))
}

func TestApplyRejectsForeignPayment(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db, nil)

	seedPayment(t, db, Payment{
		ID: "pay-b", UserID: "user-b", Amount: 299, Currency: "USD",
		Status: StatusPending, PaymentMethod: ProviderStripe, TransactionID: strPtr("cs_b"),
	})

	_, err := p.Apply(context.Background(), ProviderStripe, WebhookEvent{TransactionID: "cs_b", UserID: "user-a", Days: 30})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestMarkFailedAndRefund(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db, nil)
	ctx := context.Background()

	seedPayment(t, db, Payment{ID: "p1", UserID: "u", Amount: 99, Currency: "USD", Status: StatusPending, PaymentMethod: ProviderStripe, TransactionID: strPtr("cs_1")})
	seedPayment(t, db, Payment{ID: "p2", UserID: "u", Amount: 99, Currency: "USD", Status: StatusCompleted, PaymentMethod: ProviderStripe, TransactionID: strPtr("cs_2")})

	require.NoError(t, p.MarkFailed(ctx, ProviderStripe, "cs_1"))
	require.NoError(t, p.MarkFailed(ctx, ProviderStripe, "cs_2"))
	require.NoError(t, p.MarkFailed(ctx, ProviderStripe, "cs_unknown"))

	assert.EqualValues(t, 1, countPayments(t, db, "id = ? AND status = ?", "p1", StatusFailed))
	assert.EqualValues(t, 1, countPayments(t, db, "id = ? AND status = ?", "p2", StatusCompleted))

	refunded, err := p.Refund(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, refunded.Status)

	_, err = p.Refund(ctx, "p1")
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = p.Refund(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func newOrderService(t *testing.T, provider *fakeProvider) (*OrderService, *gorm.DB) {
	db := newTestDB(t)
	proc := NewProcessor(db, nil)
	return NewOrderService(db, NewProviders(provider), proc, nil), db
}

func TestCreateOrder(t *testing.T) {
	fp := &fakeProvider{name: ProviderStripe, checkout: CheckoutResult{Success: true, PaymentID: "cs_new", PaymentURL: "https://checkout.example/cs_new"}}
	svc, db := newOrderService(t, fp)

	out, err := svc.Create(context.Background(), CreateOrderInput{UserID: "u", Method: "stripe", BillingCycle: plans.CycleYearly})
	require.NoError(t, err)

	assert.NotEmpty(t, out.PaymentID)
	assert.Equal(t, "cs_new", out.SessionID)
	assert.Equal(t, "https://checkout.example/cs_new", out.PaymentURL)
	assert.EqualValues(t, 2990, out.Amount)
	assert.Equal(t, 365, out.Days)
	assert.Equal(t, plans.TierPro, out.Tier)

	require.Len(t, fp.orders, 1)
	assert.Equal(t, "365", fp.orders[0].Metadata[MetaDays])
	assert.Equal(t, plans.TierPro, fp.orders[0].Metadata[MetaTier])
	assert.Equal(t, out.PaymentID, fp.orders[0].Metadata[MetaPaymentID])

	var stored Payment
	require.NoError(t, db.First(&stored, "id = ?", out.PaymentID).Error)
	assert.Equal(t, StatusPending, stored.Status)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, "cs_new", *stored.TransactionID)
	assert.Equal(t, 365, stored.MetadataInt(MetaDays))
}

func TestCreateOrderDuplicateWindow(t *testing.T) {
	fp := &fakeProvider{name: ProviderStripe, checkout: CheckoutResult{Success: true, PaymentID: "cs_1", PaymentURL: "u"}}
	svc, db := newOrderService(t, fp)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = fixedClock(start)
	in := CreateOrderInput{UserID: "u", Method: "stripe", BillingCycle: plans.CycleMonthly}

	_, err := svc.Create(ctx, in)
	require.NoError(t, err)

	svc.now = fixedClock(start.Add(10 * time.Second))
	_, err = svc.Create(ctx, in)
	first, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, first.Kind)
	assert.Equal(t, DuplicateWindow-10*time.Second, first.RetryAfter)

	svc.now = fixedClock(start.Add(45 * time.Second))
	_, err = svc.Create(ctx, in)
	second, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, second.Kind)
	assert.Greater(t, second.RetryAfter, time.Duration(0))
	assert.Less(t, second.RetryAfter, first.RetryAfter, "wait shrinks as the window elapses")

	// a different cycle is a different amount, so it is not a duplicate
	_, err = svc.Create(ctx, CreateOrderInput{UserID: "u", Method: "stripe", BillingCycle: plans.CycleYearly})
	require.NoError(t, err)

	// another user is never blocked
	_, err = svc.Create(ctx, CreateOrderInput{UserID: "v", Method: "stripe", BillingCycle: plans.CycleMonthly})
	require.NoError(t, err)

	svc.now = fixedClock(start.Add(DuplicateWindow + time.Second))
	_, err = svc.Create(ctx, in)
	require.NoError(t, err)

	assert.EqualValues(t, 4, countPayments(t, db, "status = ?", StatusPending))
	assert.EqualValues(t, 1, countPayments(t, db, "transaction_id = ?", "cs_1"))
}

func TestCreateOrderProviderFailureAllowsRetry(t *testing.T) {
	fp := &fakeProvider{name: ProviderStripe, checkout: CheckoutResult{Success: false, Err: errors.New("card network down")}}
	svc, db := newOrderService(t, fp)
	ctx := context.Background()
	in := CreateOrderInput{UserID: "u", Method: "stripe", BillingCycle: plans.CycleMonthly}

	_, err := svc.Create(ctx, in)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.EqualValues(t, 1, countPayments(t, db, "status = ?", StatusFailed))

	fp.checkout = CheckoutResult{Success: true, PaymentID: "cs_ok", PaymentURL: "u"}
	_, err = svc.Create(ctx, in)
	require.NoError(t, err)
}

func TestCreateOrderValidation(t *testing.T) {
	fp := &fakeProvider{name: ProviderStripe}
	svc, _ := newOrderService(t, fp)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateOrderInput{UserID: "u", Method: "bitcoin", BillingCycle: "monthly"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = svc.Create(ctx, CreateOrderInput{UserID: "u", Method: "stripe", BillingCycle: "weekly"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = svc.Create(ctx, CreateOrderInput{UserID: "u", Method: "stripe", BillingCycle: "monthly", PlanType: "free"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	fp.usable = apperr.New(apperr.KindNotConfigured, "Stripe is not configured")
	_, err = svc.Create(ctx, CreateOrderInput{UserID: "u", Method: "stripe", BillingCycle: "monthly"})
	assert.True(t, apperr.Is(err, apperr.KindNotConfigured))
	assert.Empty(t, fp.orders)
}

func TestConfirm(t *testing.T) {
	fp := &fakeProvider{name: ProviderStripe, checkout: CheckoutResult{Success: true, PaymentID: "cs_c", PaymentURL: "u"}}
	svc, _ := newOrderService(t, fp)
	ctx := context.Background()

	out, err := svc.Create(ctx, CreateOrderInput{UserID: "u", Method: "stripe", BillingCycle: plans.CycleMonthly, PlanType: "basic"})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, "someone-else", out.PaymentID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	fp.confirm = Confirmation{Pending: true}
	res, err := svc.Confirm(ctx, "u", out.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)

	fp.confirm = Confirmation{Success: true, TransactionID: "cs_c", Amount: 99, Currency: "USD"}
	res, err = svc.Confirm(ctx, "u", out.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, plans.TierBasic, res.Subscription.Tier)

	// already completed short-circuits without asking the provider
	fp.confirm = Confirmation{Err: errors.New("should not be called")}
	res, err = svc.Confirm(ctx, "u", out.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	require.NotNil(t, res.Subscription)
}

func TestConfirmExpiredCheckoutMarksFailed(t *testing.T) {
	fp := &fakeProvider{name: ProviderStripe, checkout: CheckoutResult{Success: true, PaymentID: "cs_x", PaymentURL: "u"}}
	svc, db := newOrderService(t, fp)
	ctx := context.Background()

	out, err := svc.Create(ctx, CreateOrderInput{UserID: "u", Method: "stripe", BillingCycle: plans.CycleMonthly})
	require.NoError(t, err)

	fp.confirm = Confirmation{Failed: true, TransactionID: "cs_x"}
	res, err := svc.Confirm(ctx, "u", out.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Nil(t, res.Subscription)
	assert.EqualValues(t, 1, countPayments(t, db, "id = ? AND status = ?", out.PaymentID, StatusFailed))

	// the failed payment no longer holds the duplicate window
	_, err = svc.Create(ctx, CreateOrderInput{UserID: "u", Method: "stripe", BillingCycle: plans.CycleMonthly})
	require.NoError(t, err)
}

func TestPaymentHistory(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		seedPayment(t, db, Payment{UserID: "u", Amount: int64(i), Currency: "USD", Status: StatusPending, PaymentMethod: ProviderStripe, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	seedPayment(t, db, Payment{UserID: "other", Amount: 1, Currency: "USD", Status: StatusPending, PaymentMethod: ProviderStripe})

	page1, total, err := PaymentHistory(context.Background(), db, "u", 1, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 12, total)
	require.Len(t, page1, DefaultPageSize)
	assert.EqualValues(t, 11, page1[0].Amount, "newest first")

	page2, _, err := PaymentHistory(context.Background(), db, "u", 2, 10)
	require.NoError(t, err)
	assert.Len(t, page2, 2)
}
