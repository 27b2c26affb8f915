package billing

import (
	"context"
	"net/http"
	"strings"

	"codegen-app/internal/domain/apperr"
)

// Metadata keys written into every checkout and read back by webhooks.
const (
	MetaUserID    = "user_id"
	MetaPaymentID = "payment_id"
	MetaTier      = "tier"
	MetaDays      = "days"
	MetaCycle     = "billing_cycle"
)

// Order is what a provider needs to open a hosted checkout.
type Order struct {
	PaymentID    string
	UserID       string
	Email        string
	Amount       int64
	Currency     string
	Description  string
	PlanType     string
	BillingCycle string
	Metadata     map[string]string
}

type CheckoutResult struct {
	Success    bool
	PaymentID  string
	PaymentURL string
	Err        error
}

// Confirmation is the synchronous answer to "did this checkout get paid".
// Pending is set when the provider has not settled it yet; Failed when the
// checkout can no longer be paid.
type Confirmation struct {
	Success       bool
	Pending       bool
	Failed        bool
	TransactionID string
	Amount        int64
	Currency      string
	Metadata      map[string]string
	Err           error
}

// WebhookEvent is a verified provider event normalized to one shape.
type WebhookEvent struct {
	Provider      string
	EventID       string
	Type          string
	TransactionID string
	PaymentID     string
	UserID        string
	Tier          string
	Days          int
	Amount        int64
	Currency      string
	Paid          bool
}

// Provider is implemented once per payment processor. Implementations
// never return SDK errors directly; failures travel inside the results.
type Provider interface {
	Name() string
	Usable() error
	// WebhookConfigured reports a missing or malformed webhook secret.
	WebhookConfigured() error
	CreateOnetimePayment(ctx context.Context, order Order) CheckoutResult
	ConfirmPayment(ctx context.Context, sessionID string) Confirmation
	VerifyWebhookSignature(ctx context.Context, rawBody []byte, headers http.Header) bool
	// ParseWebhook normalizes a payload that already passed
	// VerifyWebhookSignature. It makes no remote calls.
	ParseWebhook(ctx context.Context, rawBody []byte, headers http.Header) (WebhookEvent, error)
}

type Providers struct {
	byName map[string]Provider
}

func NewProviders(ps ...Provider) *Providers {
	r := &Providers{byName: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		r.byName[p.Name()] = p
	}
	return r
}

func (r *Providers) Get(name string) (Provider, error) {
	p, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, apperr.New(apperr.KindInvalidInput, "Unsupported payment method")
	}
	return p, nil
}
