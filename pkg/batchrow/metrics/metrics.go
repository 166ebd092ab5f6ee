// Package metrics registers and records the application metrics through the OpenTelemetry metric API and exposes
// them in the Prometheus exposition format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	errMetricDoesNotExist = errors.New("metric does not exist")
	errMetricExists       = errors.New("metric already exists")
	errInvalidLabels      = errors.New("metric labels must be key value pairs")
)

// Manager registers and records metrics. Recording an unregistered metric logs an error and is otherwise a no-op.
type Manager interface {
	NewCounter(name, desc string)
	NewUpDownCounter(name, desc string)
	NewHistogram(name, desc string, buckets ...float64)
	NewGauge(name, desc string)

	IncrementCounter(ctx context.Context, name string, labels ...string)
	DeltaUpDownCounter(ctx context.Context, name string, value float64, labels ...string)
	RecordHistogram(ctx context.Context, name string, value float64, labels ...string)
	SetGauge(name string, value float64, labels ...string)
}

type logger interface {
	Error(args ...any)
	Errorf(format string, args ...any)
}

type metricsManager struct {
	meter    metric.Meter
	logger   logger
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	mu             sync.RWMutex
	counters       map[string]metric.Int64Counter
	upDownCounters map[string]metric.Float64UpDownCounter
	histograms     map[string]metric.Float64Histogram
	gauges         map[string]metric.Float64Gauge
}

// NewMetricsManager creates a Manager whose instruments are exported to a private Prometheus registry.
func NewMetricsManager(appName, appVersion string, logger logger) (Manager, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithoutTargetInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return &metricsManager{
		meter:          provider.Meter(appName, metric.WithInstrumentationVersion(appVersion)),
		logger:         logger,
		registry:       registry,
		provider:       provider,
		counters:       make(map[string]metric.Int64Counter),
		upDownCounters: make(map[string]metric.Float64UpDownCounter),
		histograms:     make(map[string]metric.Float64Histogram),
		gauges:         make(map[string]metric.Float64Gauge),
	}, nil
}

// GetHandler returns the Prometheus scrape handler for m, or a 404 handler when m was not built by this package.
func GetHandler(m Manager) http.Handler {
	mm, ok := m.(*metricsManager)
	if !ok {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider behind m.
func Shutdown(ctx context.Context, m Manager) error {
	mm, ok := m.(*metricsManager)
	if !ok {
		return nil
	}

	return mm.provider.Shutdown(ctx)
}

func (m *metricsManager) NewCounter(name, desc string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.counters[name]; ok {
		m.logger.Error(fmt.Errorf("%w: %s", errMetricExists, name))

		return
	}

	c, err := m.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		m.logger.Errorf("error creating counter %s: %v", name, err)

		return
	}

	m.counters[name] = c
}

func (m *metricsManager) NewUpDownCounter(name, desc string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.upDownCounters[name]; ok {
		m.logger.Error(fmt.Errorf("%w: %s", errMetricExists, name))

		return
	}

	c, err := m.meter.Float64UpDownCounter(name, metric.WithDescription(desc))
	if err != nil {
		m.logger.Errorf("error creating up-down counter %s: %v", name, err)

		return
	}

	m.upDownCounters[name] = c
}

func (m *metricsManager) NewHistogram(name, desc string, buckets ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.histograms[name]; ok {
		m.logger.Error(fmt.Errorf("%w: %s", errMetricExists, name))

		return
	}

	opts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}

	h, err := m.meter.Float64Histogram(name, opts...)
	if err != nil {
		m.logger.Errorf("error creating histogram %s: %v", name, err)

		return
	}

	m.histograms[name] = h
}

func (m *metricsManager) NewGauge(name, desc string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.gauges[name]; ok {
		m.logger.Error(fmt.Errorf("%w: %s", errMetricExists, name))

		return
	}

	g, err := m.meter.Float64Gauge(name, metric.WithDescription(desc))
	if err != nil {
		m.logger.Errorf("error creating gauge %s: %v", name, err)

		return
	}

	m.gauges[name] = g
}

func (m *metricsManager) IncrementCounter(ctx context.Context, name string, labels ...string) {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()

	if !ok {
		m.logger.Error(fmt.Errorf("%w: %s", errMetricDoesNotExist, name))

		return
	}

	attrs, err := getAttributes(labels)
	if err != nil {
		m.logger.Errorf("metric %s: %v", name, err)

		return
	}

	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metricsManager) DeltaUpDownCounter(ctx context.Context, name string, value float64, labels ...string) {
	m.mu.RLock()
	c, ok := m.upDownCounters[name]
	m.mu.RUnlock()

	if !ok {
		m.logger.Error(fmt.Errorf("%w: %s", errMetricDoesNotExist, name))

		return
	}

	attrs, err := getAttributes(labels)
	if err != nil {
		m.logger.Errorf("metric %s: %v", name, err)

		return
	}

	c.Add(ctx, value, metric.WithAttributes(attrs...))
}

func (m *metricsManager) RecordHistogram(ctx context.Context, name string, value float64, labels ...string) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()

	if !ok {
		m.logger.Error(fmt.Errorf("%w: %s", errMetricDoesNotExist, name))

		return
	}

	attrs, err := getAttributes(labels)
	if err != nil {
		m.logger.Errorf("metric %s: %v", name, err)

		return
	}

	h.Record(ctx, value, metric.WithAttributes(attrs...))
}

func (m *metricsManager) SetGauge(name string, value float64, labels ...string) {
	m.mu.RLock()
	g, ok := m.gauges[name]
	m.mu.RUnlock()

	if !ok {
		m.logger.Error(fmt.Errorf("%w: %s", errMetricDoesNotExist, name))

		return
	}

	attrs, err := getAttributes(labels)
	if err != nil {
		m.logger.Errorf("metric %s: %v", name, err)

		return
	}

	g.Record(context.Background(), value, metric.WithAttributes(attrs...))
}

func getAttributes(labels []string) ([]attribute.KeyValue, error) {
	if len(labels)%2 != 0 {
		return nil, errInvalidLabels
	}

	attrs := make([]attribute.KeyValue, 0, len(labels)/2)

	for i := 0; i < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}

	return attrs, nil
}
