package access

import (
	"time"

	"codegen-app/internal/domain/billing"
	"codegen-app/internal/domain/plans"
)

// ComputePolicy grants the subscription's tier while its period runs and
// falls back to free otherwise. A nil subscription is a free user.
func ComputePolicy(now time.Time, sub *billing.Subscription) Policy {
	tier := plans.TierFree
	state := StateInactive
	if sub.ActiveAt(now) {
		tier = plans.Normalize(sub.Tier)
		state = StateActive
	}
	return Policy{
		Tier:   tier,
		State:  state,
		Limits: plans.LimitsFor(tier),
		Models: plans.ModelsFor(tier),
	}
}

// ModelFor picks the model to run. An empty request gets the tier's first
// model; a model outside the tier is refused.
func (p Policy) ModelFor(requested string) (string, bool) {
	if requested == "" {
		if len(p.Models) == 0 {
			return "", false
		}
		return p.Models[0], true
	}
	return requested, plans.AllowsModel(p.Tier, requested)
}

// MaxTokens clamps a token budget to the tier's per-request ceiling.
func (p Policy) MaxTokens(requested int) int {
	ceiling := p.Limits.MaxTokensPerRequest
	if ceiling == plans.Unlimited {
		return requested
	}
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}
