package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	billingScope  = "codegen-app/billing"
	generateScope = "codegen-app/generate"
)

type instruments struct {
	webhookEvents metric.Int64Counter
	checkouts     metric.Int64Counter
	generations   metric.Int64Counter
	tokens        metric.Int64Counter
}

var (
	mu    sync.RWMutex
	insts *instruments
)

// bind creates the counters against mp. Creation errors leave that counter
// nil and recording through it is skipped.
func bind(mp metric.MeterProvider) {
	billing := mp.Meter(billingScope)
	generate := mp.Meter(generateScope)

	i := &instruments{}
	i.webhookEvents, _ = billing.Int64Counter("codegen.billing.webhook_events",
		metric.WithDescription("Payment provider notifications by provider and outcome"))
	i.checkouts, _ = billing.Int64Counter("codegen.billing.checkouts",
		metric.WithDescription("Checkout sessions opened by provider and outcome"))
	i.generations, _ = generate.Int64Counter("codegen.generate.requests",
		metric.WithDescription("Code generation calls by operation and outcome"))
	i.tokens, _ = generate.Int64Counter("codegen.generate.tokens",
		metric.WithDescription("Completion tokens billed by model"))

	mu.Lock()
	insts = i
	mu.Unlock()
}

func get() *instruments {
	mu.RLock()
	i := insts
	mu.RUnlock()
	if i == nil {
		bind(otel.GetMeterProvider())
		mu.RLock()
		i = insts
		mu.RUnlock()
	}
	return i
}

// RecordWebhook counts one success notification by what became of it:
// applied, duplicate, settled, rejected or failed.
func RecordWebhook(ctx context.Context, provider, outcome string) {
	if c := get().webhookEvents; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordCheckout(ctx context.Context, provider, outcome string) {
	if c := get().checkouts; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("outcome", outcome),
		))
	}
}

// RecordLLM counts a generation call and the tokens it consumed.
func RecordLLM(ctx context.Context, op, model, outcome string, tokens int) {
	i := get()
	if i.generations != nil {
		i.generations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		))
	}
	if i.tokens != nil && tokens > 0 {
		i.tokens.Add(ctx, int64(tokens), metric.WithAttributes(attribute.String("model", model)))
	}
}

func Tracer() trace.Tracer {
	return otel.Tracer(billingScope)
}
