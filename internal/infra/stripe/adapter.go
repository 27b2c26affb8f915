// Package stripe adapts Stripe Checkout to billing.Provider.
package stripe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/billing"

	stripego "github.com/stripe/stripe-go/v75"
	checkoutsession "github.com/stripe/stripe-go/v75/checkout/session"
	"github.com/stripe/stripe-go/v75/webhook"
)

const SignatureHeader = "Stripe-Signature"

type Config struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	AppURL         string
}

type sessionAPI interface {
	New(params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error)
	Get(id string, params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error)
}

// Adapter is safe for concurrent use. Its key lives on the session client,
// never in the package-level stripe.Key.
type Adapter struct {
	cfg        Config
	sessions   sessionAPI
	configErr  error
	webhookErr error
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		cfg:        cfg,
		configErr:  validateSecretKey(cfg),
		webhookErr: validateWebhookSecret(cfg.WebhookSecret),
		logger:     logger.With("provider", billing.ProviderStripe),
	}
	if a.configErr == nil {
		a.sessions = &checkoutsession.Client{B: stripego.GetBackend(stripego.APIBackend), Key: cfg.SecretKey}
	} else {
		a.logger.Warn("stripe adapter disabled", "reason", a.configErr.Error())
	}
	return a
}

func validateSecretKey(cfg Config) error {
	key := strings.TrimSpace(cfg.SecretKey)
	switch {
	case key == "":
		return apperr.New(apperr.KindNotConfigured, "Stripe is not configured")
	case strings.HasPrefix(key, "pk_"), key == strings.TrimSpace(cfg.PublishableKey):
		return apperr.New(apperr.KindNotConfigured, "Stripe secret key is a publishable key")
	case !strings.HasPrefix(key, "sk_") && !strings.HasPrefix(key, "rk_"):
		return apperr.New(apperr.KindNotConfigured, "Stripe secret key is malformed")
	}
	return nil
}

func validateWebhookSecret(secret string) error {
	switch {
	case secret == "":
		return apperr.New(apperr.KindNotConfigured, "Stripe webhook secret is not configured")
	case !strings.HasPrefix(secret, "whsec_"):
		return apperr.New(apperr.KindNotConfigured, "Stripe webhook secret is malformed")
	}
	return nil
}

func (a *Adapter) Name() string { return billing.ProviderStripe }

func (a *Adapter) Usable() error { return a.configErr }

func (a *Adapter) WebhookConfigured() error { return a.webhookErr }

func (a *Adapter) PublishableKey() string { return a.cfg.PublishableKey }

func (a *Adapter) CreateOnetimePayment(ctx context.Context, order billing.Order) billing.CheckoutResult {
	if a.configErr != nil {
		return billing.CheckoutResult{Err: a.configErr}
	}

	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL:        stripego.String(a.cfg.AppURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}&payment_id=" + order.PaymentID),
		CancelURL:         stripego.String(a.cfg.AppURL + "/payment/cancel?payment_id=" + order.PaymentID),
		ClientReferenceID: stripego.String(order.UserID),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripego.String(strings.ToLower(order.Currency)),
					UnitAmount: stripego.Int64(order.Amount),
					ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripego.String(order.Description),
					},
				},
				Quantity: stripego.Int64(1),
			},
		},
	}
	if order.Email != "" {
		params.CustomerEmail = stripego.String(order.Email)
	}
	for k, v := range order.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := a.sessions.New(params)
	if err != nil {
		a.logger.Error("create checkout session failed", "payment_id", order.PaymentID, "error", err)
		return billing.CheckoutResult{Err: apperr.Wrap(apperr.KindUpstream, "Failed to create checkout session", err)}
	}
	return billing.CheckoutResult{Success: true, PaymentID: s.ID, PaymentURL: s.URL}
}

func (a *Adapter) ConfirmPayment(ctx context.Context, sessionID string) billing.Confirmation {
	if a.configErr != nil {
		return billing.Confirmation{Err: a.configErr}
	}

	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx
	s, err := a.sessions.Get(sessionID, params)
	if err != nil {
		return billing.Confirmation{Err: apperr.Wrap(apperr.KindUpstream, "Failed to load checkout session", err)}
	}

	switch PaymentStatusFromSession(s) {
	case billing.StatusCompleted:
		return billing.Confirmation{
			Success:       true,
			TransactionID: s.ID,
			Amount:        s.AmountTotal,
			Currency:      normalizeCurrency(s.Currency),
			Metadata:      s.Metadata,
		}
	case billing.StatusFailed:
		return billing.Confirmation{Failed: true, TransactionID: s.ID}
	default:
		return billing.Confirmation{Pending: true, TransactionID: s.ID}
	}
}

// VerifyWebhookSignature checks the Stripe-Signature header against the
// endpoint secret. A missing or malformed secret rejects everything.
func (a *Adapter) VerifyWebhookSignature(_ context.Context, rawBody []byte, headers http.Header) bool {
	if a.webhookErr != nil {
		return false
	}
	return webhook.ValidatePayload(rawBody, headers.Get(SignatureHeader), a.cfg.WebhookSecret) == nil
}

func (a *Adapter) ParseWebhook(ctx context.Context, rawBody []byte, headers http.Header) (billing.WebhookEvent, error) {
	if a.webhookErr != nil {
		return billing.WebhookEvent{}, a.webhookErr
	}

	// The SDK checks the HMAC again locally while decoding the event.
	event, err := webhook.ConstructEventWithOptions(
		rawBody,
		headers.Get(SignatureHeader),
		a.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return billing.WebhookEvent{}, apperr.Wrap(apperr.KindUnauthorized, "Signature verification failed", err)
	}

	evt := billing.WebhookEvent{
		Provider: billing.ProviderStripe,
		EventID:  event.ID,
		Type:     string(event.Type),
	}
	if !strings.HasPrefix(evt.Type, "checkout.session.") {
		return evt, nil
	}

	var session stripego.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return evt, apperr.Wrap(apperr.KindInvalidInput, "Failed to parse session", err)
	}
	return normalizeSession(evt, &session), nil
}

func normalizeSession(evt billing.WebhookEvent, s *stripego.CheckoutSession) billing.WebhookEvent {
	md := s.Metadata
	evt.TransactionID = s.ID
	evt.UserID = md[billing.MetaUserID]
	if evt.UserID == "" {
		evt.UserID = s.ClientReferenceID
	}
	evt.PaymentID = md[billing.MetaPaymentID]
	evt.Tier = md[billing.MetaTier]
	if days, err := strconv.Atoi(md[billing.MetaDays]); err == nil {
		evt.Days = days
	}
	evt.Amount = s.AmountTotal
	evt.Currency = normalizeCurrency(s.Currency)
	evt.Paid = PaymentStatusFromSession(s) == billing.StatusCompleted
	return evt
}

var _ billing.Provider = (*Adapter)(nil)
