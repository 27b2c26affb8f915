package plans

import (
	"strings"

	"codegen-app/internal/domain/apperr"
)

const (
	MethodStripe = "stripe"
	MethodPayPal = "paypal"

	CycleMonthly = "monthly"
	CycleYearly  = "yearly"

	// DefaultPaidTier is sold when a checkout request names no plan.
	DefaultPaidTier = TierPro
)

type Pricing struct {
	Currency string `json:"currency"`
	Monthly  int64  `json:"monthly"`
	Yearly   int64  `json:"yearly"`
}

var methodCurrency = map[string]string{
	MethodStripe: "USD",
	MethodPayPal: "USD",
}

func CurrencyFor(method string) (string, error) {
	cur, ok := methodCurrency[strings.ToLower(method)]
	if !ok {
		return "", apperr.New(apperr.KindInvalidInput, "Unsupported payment method")
	}
	return cur, nil
}

// PricingFor returns the default plan's prices for a payment method.
func PricingFor(method string) (Pricing, error) {
	return PlanPricing(DefaultPaidTier, method)
}

func PlanPricing(tier, method string) (Pricing, error) {
	cur, err := CurrencyFor(method)
	if err != nil {
		return Pricing{}, err
	}
	if !IsPaidTier(tier) {
		return Pricing{}, apperr.New(apperr.KindInvalidInput, "Unknown plan type")
	}
	p := Lookup(tier)
	return Pricing{Currency: cur, Monthly: p.MonthlyAmount, Yearly: p.YearlyAmount}, nil
}

// Amount picks the monthly or yearly price.
func (p Pricing) Amount(cycle string) (int64, error) {
	switch cycle {
	case CycleMonthly:
		return p.Monthly, nil
	case CycleYearly:
		return p.Yearly, nil
	}
	return 0, apperr.New(apperr.KindInvalidInput, "Unsupported billing cycle")
}

// CycleDays is the entitlement length of a billing cycle.
func CycleDays(cycle string) (int, error) {
	switch cycle {
	case CycleMonthly:
		return 30, nil
	case CycleYearly:
		return 365, nil
	}
	return 0, apperr.New(apperr.KindInvalidInput, "Unsupported billing cycle")
}
