// Package billingtest provides a scriptable billing.Provider for handler tests.
package billingtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"codegen-app/internal/domain/billing"
)

type Provider struct {
	ProviderName string
	UsableErr    error
	WebhookErr   error
	Checkout     billing.CheckoutResult
	Confirmation billing.Confirmation
	ValidSig     bool
	Event        billing.WebhookEvent
	ParseErr     error

	mu     sync.Mutex
	Orders []billing.Order
	Parsed int
}

func (p *Provider) Name() string  { return p.ProviderName }
func (p *Provider) Usable() error { return p.UsableErr }

func (p *Provider) WebhookConfigured() error { return p.WebhookErr }

func (p *Provider) CreateOnetimePayment(_ context.Context, order billing.Order) billing.CheckoutResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Orders = append(p.Orders, order)
	res := p.Checkout
	if res.Success && len(p.Orders) > 1 {
		res.PaymentID = fmt.Sprintf("%s_%d", res.PaymentID, len(p.Orders))
	}
	return res
}

func (p *Provider) ConfirmPayment(context.Context, string) billing.Confirmation {
	return p.Confirmation
}

func (p *Provider) VerifyWebhookSignature(context.Context, []byte, http.Header) bool {
	return p.ValidSig
}

func (p *Provider) ParseWebhook(context.Context, []byte, http.Header) (billing.WebhookEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Parsed++
	return p.Event, p.ParseErr
}
