package mutation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type mutationMetricsCollection struct {
	outcomeCount metric.Int64Counter
}

var metrics mutationMetricsCollection

func init() {
	const name = "riskview/mutation"
	meter := otel.Meter(name)

	outcomeCount, err := meter.Int64Counter(
		"mutation/outcome_count",
		metric.WithDescription("Mutations by outcome (committed, rolled_back)"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create mutation outcome metric: %w", err))
	}

	metrics = mutationMetricsCollection{
		outcomeCount: outcomeCount,
	}
}

func recordOutcome(ctx context.Context, outcome string) {
	metrics.outcomeCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
