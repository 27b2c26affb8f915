package webhook

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/billing"
	"codegen-app/internal/domain/billing/billingtest"
	stripeadapter "codegen-app/internal/infra/stripe"
	"codegen-app/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

type fixture struct {
	r      *gin.Engine
	db     *gorm.DB
	stripe *billingtest.Provider
	paypal *billingtest.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t, &billing.Payment{}, &billing.Subscription{})
	f := &fixture{
		db:     db,
		stripe: &billingtest.Provider{ProviderName: billing.ProviderStripe, ValidSig: true},
		paypal: &billingtest.Provider{ProviderName: billing.ProviderPayPal, ValidSig: true},
	}
	h := NewHandler(billing.NewProviders(f.stripe, f.paypal), billing.NewProcessor(db, nil))
	r := gin.New()
	r.POST("/api/payment/webhook/stripe", h.Handle(billing.ProviderStripe))
	r.POST("/api/payment/webhook/paypal", h.Handle(billing.ProviderPayPal))
	f.r = r
	return f
}

func (f *fixture) post(provider, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payment/webhook/"+provider, strings.NewReader(body)))
	return rec
}

func (f *fixture) seedPending(t *testing.T, id, method, txID string) {
	t.Helper()
	require.NoError(t, f.db.Create(&billing.Payment{
		ID:            id,
		UserID:        "u1",
		Amount:        2990,
		Currency:      "USD",
		Status:        billing.StatusPending,
		PaymentMethod: method,
		TransactionID: &txID,
		PlanType:      "pro",
		BillingCycle:  "yearly",
		Metadata:      datatypes.JSONMap{billing.MetaUserID: "u1", billing.MetaTier: "pro", billing.MetaDays: 365},
	}).Error)
}

func (f *fixture) status(t *testing.T, id string) string {
	t.Helper()
	var p billing.Payment
	require.NoError(t, f.db.First(&p, "id = ?", id).Error)
	return p.Status
}

func TestBadSignatureNeverProcesses(t *testing.T) {
	f := newFixture(t)
	f.stripe.ValidSig = false

	rec := f.post("stripe", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, f.stripe.Parsed)
}

func TestStripeCompletedGrantsTierOnce(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "pay-1", billing.ProviderStripe, "cs_1")
	f.stripe.Event = billing.WebhookEvent{
		Provider:      billing.ProviderStripe,
		EventID:       "evt_1",
		Type:          "checkout.session.completed",
		TransactionID: "cs_1",
		PaymentID:     "pay-1",
		UserID:        "u1",
		Tier:          "pro",
		Days:          365,
		Amount:        2990,
		Currency:      "USD",
		Paid:          true,
	}

	rec := f.post("stripe", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())
	assert.Equal(t, billing.StatusCompleted, f.status(t, "pay-1"))

	sub, err := billing.CurrentSubscription(t.Context(), f.db, "u1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	firstEnd := sub.PeriodEnd

	rec = f.post("stripe", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	sub, err = billing.CurrentSubscription(t.Context(), f.db, "u1")
	require.NoError(t, err)
	assert.True(t, sub.PeriodEnd.Equal(firstEnd))

	var n int64
	require.NoError(t, f.db.Model(&billing.Subscription{}).Where("user_id = ?", "u1").Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestUnpaidCompletionIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "pay-1", billing.ProviderStripe, "cs_1")
	f.stripe.Event = billing.WebhookEvent{Type: "checkout.session.completed", TransactionID: "cs_1", Paid: false}

	rec := f.post("stripe", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ignored"}`, rec.Body.String())
	assert.Equal(t, billing.StatusPending, f.status(t, "pay-1"))
}

func TestUnknownEventIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.paypal.Event = billing.WebhookEvent{Type: "CUSTOMER.DISPUTE.CREATED"}

	rec := f.post("paypal", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ignored"}`, rec.Body.String())
}

func TestFailureEventMarksPaymentFailed(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "pay-2", billing.ProviderPayPal, "ORDER-2")
	f.paypal.Event = billing.WebhookEvent{Type: "PAYMENT.CAPTURE.DENIED", TransactionID: "ORDER-2"}

	rec := f.post("paypal", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, billing.StatusFailed, f.status(t, "pay-2"))
}

func TestProcessingFailureIs500(t *testing.T) {
	f := newFixture(t)
	// no user anywhere: nothing to grant
	f.paypal.Event = billing.WebhookEvent{Type: "PAYMENT.CAPTURE.COMPLETED", TransactionID: "ORDER-X", Days: 30, Amount: 299}

	rec := f.post("paypal", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestParseErrors(t *testing.T) {
	f := newFixture(t)

	f.stripe.ParseErr = apperr.New(apperr.KindUnauthorized, "Invalid signature")
	assert.Equal(t, http.StatusUnauthorized, f.post("stripe", `{}`).Code)

	f.stripe.ParseErr = errors.New("bad json")
	assert.Equal(t, http.StatusBadRequest, f.post("stripe", `{}`).Code)
}

func TestUnconfiguredProvider(t *testing.T) {
	f := newFixture(t)
	f.stripe.UsableErr = apperr.New(apperr.KindNotConfigured, "Stripe is not configured")

	assert.Equal(t, http.StatusInternalServerError, f.post("stripe", `{}`).Code)
	assert.Equal(t, 0, f.stripe.Parsed)
}

func TestMissingWebhookSecretIs500(t *testing.T) {
	f := newFixture(t)
	f.stripe.WebhookErr = apperr.New(apperr.KindNotConfigured, "Stripe webhook secret is not configured")

	rec := f.post("stripe", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, f.stripe.Parsed)
}

func TestStripeWithoutWebhookSecretIs500(t *testing.T) {
	db := testutil.NewDB(t, &billing.Payment{}, &billing.Subscription{})
	a := stripeadapter.New(stripeadapter.Config{SecretKey: "sk_test_1"}, nil)
	require.NoError(t, a.Usable())

	h := NewHandler(billing.NewProviders(a), billing.NewProcessor(db, nil))
	r := gin.New()
	r.POST("/api/payment/webhook/stripe", h.Handle(billing.ProviderStripe))

	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSuccessForFailedPaymentIsAcked(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "pay-3", billing.ProviderStripe, "cs_3")
	require.NoError(t, f.db.Model(&billing.Payment{}).Where("id = ?", "pay-3").Update("status", billing.StatusFailed).Error)
	f.stripe.Event = billing.WebhookEvent{Type: "checkout.session.completed", TransactionID: "cs_3", Paid: true}

	rec := f.post("stripe", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, billing.StatusFailed, f.status(t, "pay-3"))

	var n int64
	require.NoError(t, f.db.Model(&billing.Subscription{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestOversizedBody(t *testing.T) {
	f := newFixture(t)
	rec := f.post("stripe", strings.Repeat("a", maxBodyBytes+1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, f.stripe.Parsed)
}
