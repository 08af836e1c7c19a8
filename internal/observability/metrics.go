package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds publisher metrics:
// - Portal calls: latency, traffic and errors per operation
// - Watches: polls, tolerated poll errors, outcomes, duration and active sessions
//
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	meter metric.Meter

	PortalRequestDuration metric.Float64Histogram
	PortalRequestsTotal   metric.Int64Counter
	PortalErrorsTotal     metric.Int64Counter

	PollsTotal         metric.Int64Counter
	PollErrorsTotal    metric.Int64Counter
	DeploymentsTotal   metric.Int64Counter
	DeploymentDuration metric.Float64Histogram
	DeploymentsActive  metric.Int64UpDownCounter
}

// NewMetrics creates all metrics on a Prometheus exporter with its own
// registry and returns the handler serving that registry.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("centralpublisher")
	m := &Metrics{meter: meter}

	m.PortalRequestDuration, err = meter.Float64Histogram(
		"portal_request_duration_seconds",
		metric.WithDescription("Publisher Portal request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PortalRequestsTotal, err = meter.Int64Counter(
		"portal_requests_total",
		metric.WithDescription("Total number of Publisher Portal requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PortalErrorsTotal, err = meter.Int64Counter(
		"portal_errors_total",
		metric.WithDescription("Total number of failed Publisher Portal requests (transport errors and unexpected codes)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollsTotal, err = meter.Int64Counter(
		"deployment_polls_total",
		metric.WithDescription("Total number of deployment states observed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollErrorsTotal, err = meter.Int64Counter(
		"deployment_poll_errors_total",
		metric.WithDescription("Total number of status polls that failed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DeploymentsTotal, err = meter.Int64Counter(
		"deployments_total",
		metric.WithDescription("Total number of finished deployment watches"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DeploymentDuration, err = meter.Float64Histogram(
		"deployment_duration_seconds",
		metric.WithDescription("Time from watch start to terminal outcome in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DeploymentsActive, err = meter.Int64UpDownCounter(
		"deployments_active",
		metric.WithDescription("Number of deployments currently being watched"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// RecordPortalRequest records one portal call. statusCode is 0 when no response arrived.
func (m *Metrics) RecordPortalRequest(ctx context.Context, op string, statusCode int, failed bool, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(operationAttr(op), statusAttr(statusCode))

	m.PortalRequestDuration.Record(ctx, durationSeconds, attrs)
	m.PortalRequestsTotal.Add(ctx, 1, attrs)

	if failed {
		m.PortalErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordPoll records an observed deployment state.
func (m *Metrics) RecordPoll(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.PollsTotal.Add(ctx, 1, metric.WithAttributes(stateAttr(state)))
}

// RecordPollError records a failed status poll.
func (m *Metrics) RecordPollError(ctx context.Context) {
	if m == nil {
		return
	}
	m.PollErrorsTotal.Add(ctx, 1)
}

// RecordWatchStarted records a watch session starting.
func (m *Metrics) RecordWatchStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.DeploymentsActive.Add(ctx, 1)
}

// RecordWatchFinished records a watch session ending with the given outcome.
func (m *Metrics) RecordWatchFinished(ctx context.Context, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := WithOutcome(outcome)
	m.DeploymentsActive.Add(ctx, -1)
	m.DeploymentsTotal.Add(ctx, 1, attrs)
	m.DeploymentDuration.Record(ctx, durationSeconds, attrs)
}
