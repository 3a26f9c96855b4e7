package querystore

import (
	"context"
	"fmt"

	"github.com/mkleiva/riskview/internal/querykey"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type storeMetricsCollection struct {
	lookupCount        metric.Int64Counter
	invalidatedEntries metric.Int64Counter
}

var metrics storeMetricsCollection

func init() {
	const name = "riskview/querystore"
	meter := otel.Meter(name)

	lookupCount, err := meter.Int64Counter(
		"querystore/lookup_count",
		metric.WithDescription("Cache lookups by outcome (hit, miss, join)"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lookup count metric: %w", err))
	}

	invalidatedEntries, err := meter.Int64Counter(
		"querystore/invalidated_entries",
		metric.WithDescription("Entries marked stale by invalidation cascades"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create invalidated entries metric: %w", err))
	}

	metrics = storeMetricsCollection{
		lookupCount:        lookupCount,
		invalidatedEntries: invalidatedEntries,
	}
}

func resourceAttribute(key querykey.Key) attribute.KeyValue {
	segments := key.Segments()
	resource := "<none>"
	if len(segments) > 0 {
		resource = segments[0]
	}
	return attribute.String("resource", resource)
}

func recordLookup(key querykey.Key, outcome string) {
	metrics.lookupCount.Add(context.Background(), 1, metric.WithAttributes(
		resourceAttribute(key),
		attribute.String("outcome", outcome),
	))
}

func recordInvalidations(prefix querykey.Key, count int) {
	if count == 0 {
		return
	}
	metrics.invalidatedEntries.Add(context.Background(), int64(count), metric.WithAttributes(
		resourceAttribute(prefix),
	))
}
