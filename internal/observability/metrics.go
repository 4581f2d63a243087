// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// Metrics bundles the instruments recorded across the services.
type Metrics struct {
	JobsProcessed     metric.Int64Counter
	JobsFailed        metric.Int64Counter
	SessionsCreated   metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter
}

// NewMetrics creates the instrument set on the global meter provider.
// InitMetrics must have been called first for the values to be exported.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("runbox")

	jobsProcessed, err := meter.Int64Counter("runbox.jobs.processed",
		metric.WithDescription("Execution jobs that reached a terminal status"))
	if err != nil {
		return nil, err
	}

	jobsFailed, err := meter.Int64Counter("runbox.jobs.failed",
		metric.WithDescription("Execution jobs that finished in FAILED"))
	if err != nil {
		return nil, err
	}

	sessionsCreated, err := meter.Int64Counter("runbox.sessions.created",
		metric.WithDescription("Interactive sessions created"))
	if err != nil {
		return nil, err
	}

	activeConnections, err := meter.Int64UpDownCounter("runbox.gateway.connections",
		metric.WithDescription("Currently open gateway connections"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		JobsProcessed:     jobsProcessed,
		JobsFailed:        jobsFailed,
		SessionsCreated:   sessionsCreated,
		ActiveConnections: activeConnections,
	}, nil
}
