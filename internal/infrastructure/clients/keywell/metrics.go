package keywell

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type consultMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
	rateLimitWait   metric.Float64Histogram
}

var consultMetricsOnce sync.Once
var consultMetricsReady bool
var consultMetricsState consultMetrics

// ensureConsultMetrics registers the instruments exactly once. Consults run
// concurrently, so initialization must be race-free.
func ensureConsultMetrics() {
	consultMetricsOnce.Do(initConsultMetrics)
}

func initConsultMetrics() {
	meter := otel.Meter("github.com/clinsight/clinical-dashboard/keywell")

	requestCount, err := meter.Int64Counter(
		"ai.consult.request.count",
		metric.WithDescription("Number of consultation requests"),
	)
	if err != nil {
		return
	}
	requestDuration, err := meter.Float64Histogram(
		"ai.consult.request.duration",
		metric.WithDescription("Consultation request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	requestErrors, err := meter.Int64Counter(
		"ai.consult.request.errors",
		metric.WithDescription("Number of consultation request errors"),
	)
	if err != nil {
		return
	}
	rateLimitWait, err := meter.Float64Histogram(
		"ai.consult.rate_limit.wait",
		metric.WithDescription("Time spent waiting for the consultation rate limiter in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}

	consultMetricsState = consultMetrics{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		requestErrors:   requestErrors,
		rateLimitWait:   rateLimitWait,
	}
	consultMetricsReady = true
}

func recordConsultMetric(ctx context.Context, model string, statusCode int, duration time.Duration, err error) {
	ensureConsultMetrics()
	if !consultMetricsReady {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", "keywell"),
		attribute.String("ai.model", model),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}

	consultMetricsState.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	consultMetricsState.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		consultMetricsState.requestErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func recordConsultRateLimitWait(ctx context.Context, model string, wait time.Duration) {
	ensureConsultMetrics()
	if !consultMetricsReady {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", "keywell"),
		attribute.String("ai.model", model),
	}
	consultMetricsState.rateLimitWait.Record(ctx, float64(wait.Milliseconds()), metric.WithAttributes(attrs...))
}
