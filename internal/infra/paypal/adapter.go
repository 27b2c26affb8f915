// Package paypal adapts PayPal Orders v2 to billing.Provider.
package paypal

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/billing"

	"github.com/plutov/paypal/v4"
)

const (
	ModeSandbox = "sandbox"
	ModeLive    = "live"
)

type Config struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	Mode         string
	AppURL       string
	BrandName    string
}

type api interface {
	CreateOrder(ctx context.Context, intent string, purchaseUnits []paypal.PurchaseUnitRequest, paymentSource *paypal.PaymentSource, appContext *paypal.ApplicationContext) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string, req paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
	VerifyWebhookSignature(ctx context.Context, httpReq *http.Request, webhookID string) (*paypal.VerifyWebhookResponse, error)
}

var _ api = (*paypal.Client)(nil)

type Adapter struct {
	cfg       Config
	client    api
	configErr error
	logger    *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{cfg: cfg, logger: logger.With("provider", billing.ProviderPayPal)}

	base, err := apiBase(cfg)
	if err == nil {
		var c *paypal.Client
		c, err = paypal.NewClient(cfg.ClientID, cfg.ClientSecret, base)
		if err != nil {
			err = apperr.Wrap(apperr.KindNotConfigured, "PayPal client could not be created", err)
		} else {
			a.client = c
		}
	}
	if err != nil {
		a.configErr = err
		a.logger.Warn("paypal adapter disabled", "reason", err.Error())
	}
	return a
}

func apiBase(cfg Config) (string, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return "", apperr.New(apperr.KindNotConfigured, "PayPal is not configured")
	}
	if cfg.ClientID == cfg.ClientSecret {
		return "", apperr.New(apperr.KindNotConfigured, "PayPal client secret equals client id")
	}
	switch strings.ToLower(cfg.Mode) {
	case "", ModeSandbox:
		return paypal.APIBaseSandBox, nil
	case ModeLive:
		return paypal.APIBaseLive, nil
	}
	return "", apperr.New(apperr.KindNotConfigured, "PayPal mode must be sandbox or live")
}

func (a *Adapter) Name() string { return billing.ProviderPayPal }

func (a *Adapter) Usable() error { return a.configErr }

func (a *Adapter) WebhookConfigured() error {
	if a.configErr != nil {
		return a.configErr
	}
	if strings.TrimSpace(a.cfg.WebhookID) == "" {
		return apperr.New(apperr.KindNotConfigured, "PayPal webhook id is not configured")
	}
	return nil
}

func (a *Adapter) CreateOnetimePayment(ctx context.Context, order billing.Order) billing.CheckoutResult {
	if a.configErr != nil {
		return billing.CheckoutResult{Err: a.configErr}
	}

	units := []paypal.PurchaseUnitRequest{
		{
			ReferenceID: order.PaymentID,
			CustomID:    order.PaymentID,
			Description: order.Description,
			Amount: &paypal.PurchaseUnitAmount{
				Currency: strings.ToUpper(order.Currency),
				Value:    FormatAmount(order.Amount),
			},
		},
	}
	appCtx := &paypal.ApplicationContext{
		BrandName: a.cfg.BrandName,
		ReturnURL: a.cfg.AppURL + "/payment/success?payment_id=" + order.PaymentID,
		CancelURL: a.cfg.AppURL + "/payment/cancel?payment_id=" + order.PaymentID,
	}

	o, err := a.client.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		a.logger.Error("create order failed", "payment_id", order.PaymentID, "error", err)
		return billing.CheckoutResult{Err: apperr.Wrap(apperr.KindUpstream, "Failed to create PayPal order", err)}
	}

	approve := approvalURL(o.Links)
	if approve == "" {
		return billing.CheckoutResult{Err: apperr.New(apperr.KindUpstream, "PayPal order has no approval link")}
	}
	return billing.CheckoutResult{Success: true, PaymentID: o.ID, PaymentURL: approve}
}

func approvalURL(links []paypal.Link) string {
	for _, l := range links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

// ConfirmPayment captures an approved order. An order the buyer has not
// approved yet is reported as pending.
func (a *Adapter) ConfirmPayment(ctx context.Context, orderID string) billing.Confirmation {
	if a.configErr != nil {
		return billing.Confirmation{Err: a.configErr}
	}

	resp, err := a.client.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		switch issueOf(err) {
		case "ORDER_NOT_APPROVED", "PAYER_ACTION_REQUIRED":
			return billing.Confirmation{Pending: true, TransactionID: orderID}
		case "ORDER_ALREADY_CAPTURED":
			return billing.Confirmation{Success: true, TransactionID: orderID}
		}
		return billing.Confirmation{Err: apperr.Wrap(apperr.KindUpstream, "Failed to capture PayPal order", err)}
	}

	if resp.Status != "COMPLETED" {
		return billing.Confirmation{Pending: true, TransactionID: orderID}
	}

	conf := billing.Confirmation{Success: true, TransactionID: orderID}
	for _, pu := range resp.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for _, c := range pu.Payments.Captures {
			if c.Amount == nil {
				continue
			}
			amount, err := ParseAmount(c.Amount.Value)
			if err != nil {
				continue
			}
			conf.Amount += amount
			conf.Currency = strings.ToUpper(c.Amount.Currency)
		}
	}
	return conf
}

func issueOf(err error) string {
	var resp *paypal.ErrorResponse
	if !errors.As(err, &resp) {
		return ""
	}
	for _, d := range resp.Details {
		if d.Issue != "" {
			return d.Issue
		}
	}
	return ""
}

// VerifyWebhookSignature asks PayPal to verify the transmission signature
// for our webhook id. Missing configuration or headers reject the event.
func (a *Adapter) VerifyWebhookSignature(ctx context.Context, rawBody []byte, headers http.Header) bool {
	if a.WebhookConfigured() != nil {
		return false
	}
	if headers.Get("Paypal-Transmission-Sig") == "" || headers.Get("Paypal-Transmission-Id") == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(rawBody))
	if err != nil {
		return false
	}
	req.Header = headers.Clone()

	resp, err := a.client.VerifyWebhookSignature(ctx, req, a.cfg.WebhookID)
	if err != nil {
		a.logger.Error("verify webhook signature failed", "error", err)
		return false
	}
	return resp.VerificationStatus == "SUCCESS"
}

func (a *Adapter) ParseWebhook(_ context.Context, rawBody []byte, _ http.Header) (billing.WebhookEvent, error) {
	if err := a.WebhookConfigured(); err != nil {
		return billing.WebhookEvent{}, err
	}
	return parseEvent(rawBody)
}

var _ billing.Provider = (*Adapter)(nil)
