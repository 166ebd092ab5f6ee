// Package batchrow wires configuration, logging, metrics and tracing around the batch row transfer package and
// hands out connections to the configured database.
package batchrow

import (
	"context"
	"errors"
	"strconv"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/sllt/batchrow/pkg/batchrow/batch"
	"github.com/sllt/batchrow/pkg/batchrow/config"
	ksql "github.com/sllt/batchrow/pkg/batchrow/datasource/sql"
	"github.com/sllt/batchrow/pkg/batchrow/logging"
	"github.com/sllt/batchrow/pkg/batchrow/metrics"
)

// App is the root of a batchrow program.
type App struct {
	// Config can be used by applications to fetch custom configurations from environment or file.
	Config config.Config

	name    string
	version string

	logger         logging.Logger
	metricsManager metrics.Manager
	tracerProvider *sdktrace.TracerProvider
	env            *batch.Environment
	metricServer   *metricServer
}

// New creates an App from the .env files in ./configs and the process environment.
func New() (*App, error) {
	logger := logging.NewLogger(logging.INFO)

	return NewWithConfig(config.NewEnvFile(defaultConfigDir, logger))
}

// NewWithConfig creates an App from cfg. The metrics server is started when METRICS_PORT is not 0.
func NewWithConfig(cfg config.Config) (*App, error) {
	a := &App{
		Config:  cfg,
		name:    cfg.GetOrDefault("APP_NAME", defaultAppName),
		version: cfg.GetOrDefault("APP_VERSION", defaultAppVersion),
		logger:  logging.NewLogger(logging.GetLevelFromString(cfg.Get("LOG_LEVEL"))),
	}

	m, err := metrics.NewMetricsManager(a.name, a.version, a.logger)
	if err != nil {
		return nil, err
	}

	a.metricsManager = m
	registerMetrics(m, a.name, a.version)

	a.tracerProvider, err = initTracer(context.Background(), cfg, a.logger, a.name, a.version)
	if err != nil {
		return nil, err
	}

	a.env = batch.NewEnvironment()
	a.env.UseLogger(a.logger)
	a.env.UseMetrics(a.metricsManager)
	a.env.UseTracer(otel.GetTracerProvider().Tracer("batchrow-batch"))

	port, err := strconv.Atoi(cfg.GetOrDefault("METRICS_PORT", strconv.Itoa(defaultMetricsPort)))
	if err != nil || port < 0 {
		a.logger.Warnf("invalid METRICS_PORT, using %d", defaultMetricsPort)

		port = defaultMetricsPort
	}

	if port != 0 {
		a.metricServer = newMetricServer(port, a.logger, a.metricsManager)

		go a.metricServer.Run()
	}

	return a, nil
}

func registerMetrics(m metrics.Manager, appName, appVersion string) {
	m.NewGauge("app_info", "Info for app_name and app_version.")
	m.SetGauge("app_info", 1, "app_name", appName, "app_version", appVersion)

	m.NewHistogram("app_sql_stats", "Response time of SQL queries in milliseconds.",
		.05, .075, .1, .125, .15, .2, .3, .5, .75, 1, 2, 3, 4, 5, 7.5, 10)

	m.NewCounter(batch.MetricRounds, "Number of batch execute and fetch rounds by outcome.")
	m.NewHistogram(batch.MetricRows, "Rows moved per batch round.", 0, 1, 2, 5, 10, 20, 50, 100, 500, 1000)
	m.NewUpDownCounter(batch.MetricOpenStatements, "Number of open batch statements.")
}

func (a *App) Logger() logging.Logger { return a.logger }

func (a *App) Metrics() metrics.Manager { return a.metricsManager }

// Environment returns the batch environment every connection of the App belongs to.
func (a *App) Environment() *batch.Environment { return a.env }

// Connect opens a connection to the database described by the DB_* configuration keys.
func (a *App) Connect(ctx context.Context) (*batch.Connection, error) {
	return a.env.Connect(ctx, ksql.NewDBConfig(a.Config))
}

// BatchSize returns BATCH_SIZE, or def when it is unset or not a positive number.
func (a *App) BatchSize(def int) int {
	v := a.Config.Get("BATCH_SIZE")
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		a.logger.Warnf("invalid BATCH_SIZE %q, using %d", v, def)

		return def
	}

	return n
}

// Shutdown closes every open connection, then stops the metrics server and flushes traces and metrics.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutDownTimeout)
	defer cancel()

	err := a.env.Close()

	err = errors.Join(err, a.metricServer.Shutdown(ctx))

	if a.tracerProvider != nil {
		err = errors.Join(err, a.tracerProvider.Shutdown(ctx))
	}

	err = errors.Join(err, metrics.Shutdown(ctx, a.metricsManager))

	if err != nil {
		a.logger.Errorf("error while shutting down: %v", err)
	}

	return err
}
