package plans

// Limits are per-tier usage ceilings. -1 means unlimited.
type Limits struct {
	RequestsPerDay      int `json:"requestsPerDay"`
	RequestsPerMonth    int `json:"requestsPerMonth"`
	MaxTokensPerRequest int `json:"maxTokensPerRequest"`
}

// Plan is one row of the static tier catalog. Prices are in minor units.
type Plan struct {
	Tier          string   `json:"tier"`
	Name          string   `json:"name"`
	MonthlyAmount int64    `json:"monthly"`
	YearlyAmount  int64    `json:"yearly"`
	Limits        Limits   `json:"limits"`
	Models        []string `json:"models"`
	Features      []string `json:"features"`
}

const Unlimited = -1

var catalog = map[string]Plan{
	TierFree: {
		Tier:     TierFree,
		Name:     "Free",
		Limits:   Limits{RequestsPerDay: 10, RequestsPerMonth: 100, MaxTokensPerRequest: 2000},
		Models:   []string{"gpt-4o-mini"},
		Features: []string{"generate", "preview"},
	},
	TierBasic: {
		Tier:          TierBasic,
		Name:          "Basic",
		MonthlyAmount: 99,
		YearlyAmount:  990,
		Limits:        Limits{RequestsPerDay: 50, RequestsPerMonth: 1000, MaxTokensPerRequest: 4000},
		Models:        []string{"gpt-4o-mini", "deepseek-chat"},
		Features:      []string{"generate", "preview", "modify", "history"},
	},
	TierPro: {
		Tier:          TierPro,
		Name:          "Pro",
		MonthlyAmount: 299,
		YearlyAmount:  2990,
		Limits:        Limits{RequestsPerDay: 200, RequestsPerMonth: 5000, MaxTokensPerRequest: 8000},
		Models:        []string{"gpt-4o-mini", "deepseek-chat", "gpt-4o"},
		Features:      []string{"generate", "preview", "modify", "history", "github"},
	},
	TierPremium: {
		Tier:          TierPremium,
		Name:          "Premium",
		MonthlyAmount: 999,
		YearlyAmount:  9990,
		Limits:        Limits{RequestsPerDay: Unlimited, RequestsPerMonth: Unlimited, MaxTokensPerRequest: 16000},
		Models:        []string{"gpt-4o-mini", "deepseek-chat", "gpt-4o", "deepseek-reasoner"},
		Features:      []string{"generate", "preview", "modify", "history", "github", "priority"},
	},
}

// Lookup returns the catalog entry for tier, or the free plan for unknown input.
func Lookup(tier string) Plan {
	if p, ok := catalog[Normalize(tier)]; ok {
		return p
	}
	return catalog[TierFree]
}

// Paid returns the purchasable plans in ascending price order.
func Paid() []Plan {
	return []Plan{catalog[TierBasic], catalog[TierPro], catalog[TierPremium]}
}

func LimitsFor(tier string) Limits { return Lookup(tier).Limits }

func ModelsFor(tier string) []string {
	src := Lookup(tier).Models
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// AllowsModel reports whether tier may use model. An empty model always passes.
func AllowsModel(tier, model string) bool {
	if model == "" {
		return true
	}
	for _, m := range Lookup(tier).Models {
		if m == model {
			return true
		}
	}
	return false
}
