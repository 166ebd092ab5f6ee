package batchrow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/sllt/batchrow/pkg/batchrow/config"
	"github.com/sllt/batchrow/pkg/batchrow/logging"
)

var errUnsupportedExporter = errors.New("unsupported trace exporter")

// initTracer installs a global tracer provider for TRACE_EXPORTER. It returns nil, and leaves the no-op provider
// in place, when no exporter is configured.
func initTracer(ctx context.Context, cfg config.Config, logger logging.Logger, appName, appVersion string) (*sdktrace.TracerProvider, error) {
	name := strings.ToLower(cfg.Get("TRACE_EXPORTER"))
	if name == "" {
		return nil, nil
	}

	exporter, err := newSpanExporter(ctx, name, cfg.Get("TRACER_URL"))
	if err != nil {
		return nil, err
	}

	ratio := defaultTracerRatio

	if v := cfg.Get("TRACER_RATIO"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 || r > 1 {
			logger.Warnf("invalid TRACER_RATIO %q, using %v", v, defaultTracerRatio)
		} else {
			ratio = r
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", appName),
			attribute.String("service.version", appVersion),
		)),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Logf("exporting traces to %s with sample ratio %v", name, ratio)

	return tp, nil
}

func newSpanExporter(ctx context.Context, name, url string) (sdktrace.SpanExporter, error) {
	switch name {
	case "zipkin":
		if url == "" {
			url = defaultZipkinURL
		}

		return zipkin.New(url)
	case "otlp":
		if url == "" {
			url = defaultOTLPURL
		}

		return otlptracegrpc.New(ctx, otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(url))
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedExporter, name)
	}
}
