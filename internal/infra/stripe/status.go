package stripe

import (
	"strings"

	"codegen-app/internal/domain/billing"

	stripego "github.com/stripe/stripe-go/v75"
)

// PaymentStatusFromSession maps a checkout session onto a payment status.
func PaymentStatusFromSession(s *stripego.CheckoutSession) string {
	if s == nil {
		return billing.StatusPending
	}
	switch s.PaymentStatus {
	case stripego.CheckoutSessionPaymentStatusPaid, stripego.CheckoutSessionPaymentStatusNoPaymentRequired:
		return billing.StatusCompleted
	}
	if s.Status == stripego.CheckoutSessionStatusExpired {
		return billing.StatusFailed
	}
	return billing.StatusPending
}

func normalizeCurrency(c stripego.Currency) string {
	return strings.ToUpper(strings.TrimSpace(string(c)))
}
