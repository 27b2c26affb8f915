package paypal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/domain/billing"
)

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type eventResource struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CustomID          string `json:"custom_id"`
	Amount            *money `json:"amount"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Amount   *money `json:"amount"`
	} `json:"purchase_units"`
}

type event struct {
	ID           string        `json:"id"`
	EventType    string        `json:"event_type"`
	ResourceType string        `json:"resource_type"`
	Resource     eventResource `json:"resource"`
}

// parseEvent normalizes capture and order events. The order id is the
// transaction id, matching what checkout stored; custom_id is our payment id.
func parseEvent(raw []byte) (billing.WebhookEvent, error) {
	var e event
	if err := json.Unmarshal(raw, &e); err != nil {
		return billing.WebhookEvent{}, apperr.Wrap(apperr.KindInvalidInput, "Failed to parse PayPal event", err)
	}

	evt := billing.WebhookEvent{
		Provider: billing.ProviderPayPal,
		EventID:  e.ID,
		Type:     e.EventType,
	}

	r := e.Resource
	var amt *money
	switch {
	case strings.HasPrefix(e.EventType, "PAYMENT.CAPTURE."):
		evt.TransactionID = r.SupplementaryData.RelatedIDs.OrderID
		evt.PaymentID = r.CustomID
		evt.Paid = r.Status == "COMPLETED"
		amt = r.Amount
	case strings.HasPrefix(e.EventType, "CHECKOUT.ORDER."):
		evt.TransactionID = r.ID
		evt.Paid = r.Status == "COMPLETED"
		if len(r.PurchaseUnits) > 0 {
			evt.PaymentID = r.PurchaseUnits[0].CustomID
			amt = r.PurchaseUnits[0].Amount
		}
	default:
		return evt, nil
	}

	if amt != nil {
		v, err := ParseAmount(amt.Value)
		if err != nil {
			return evt, apperr.Wrap(apperr.KindInvalidInput, "Invalid PayPal amount", err)
		}
		evt.Amount = v
		evt.Currency = strings.ToUpper(amt.CurrencyCode)
	}
	return evt, nil
}

// FormatAmount renders minor units as PayPal's decimal string.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// ParseAmount turns "12.34" into 1234. At most two decimals are accepted.
func ParseAmount(value string) (int64, error) {
	value = strings.TrimSpace(value)
	whole, frac, _ := strings.Cut(value, ".")
	if whole == "" || len(frac) > 2 {
		return 0, fmt.Errorf("malformed amount %q", value)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed amount %q: %w", value, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("malformed amount %q", value)
	}
	if w < 0 {
		return w*100 - f, nil
	}
	return w*100 + f, nil
}
