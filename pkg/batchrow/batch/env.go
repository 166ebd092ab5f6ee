// Package batch moves rows between a database and caller owned, fixed capacity column buffers, N rows per round.
//
// Handles form a tree: an Environment owns Connections and a Connection owns Statements. Closing a handle closes
// its children first.
package batch

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sllt/batchrow/pkg/batchrow/datasource"
	ksql "github.com/sllt/batchrow/pkg/batchrow/datasource/sql"
)

// Metric names recorded by the package. They must be registered on the metrics manager before use.
const (
	MetricRounds         = "app_batch_rounds_total"
	MetricRows           = "app_batch_rows"
	MetricOpenStatements = "app_batch_open_statements"
)

// Metrics is the subset of the metrics manager the package records to.
type Metrics interface {
	IncrementCounter(ctx context.Context, name string, labels ...string)
	DeltaUpDownCounter(ctx context.Context, name string, value float64, labels ...string)
	RecordHistogram(ctx context.Context, name string, value float64, labels ...string)
}

// Environment is the root handle. It is safe for concurrent use.
type Environment struct {
	mu     sync.Mutex
	conns  map[uint64]*Connection
	nextID uint64
	closed bool

	logger  datasource.Logger
	metrics Metrics
	tracer  trace.Tracer
}

// NewEnvironment returns an Environment that logs and records nothing until UseLogger and UseMetrics are called.
func NewEnvironment() *Environment {
	return &Environment{
		conns:  make(map[uint64]*Connection),
		tracer: otel.GetTracerProvider().Tracer("batchrow-batch"),
	}
}

// UseLogger sets the logger. Values not implementing datasource.Logger are ignored.
func (e *Environment) UseLogger(logger any) {
	if l, ok := logger.(datasource.Logger); ok {
		e.logger = l
	}
}

// UseMetrics sets the metrics recorder. Values not implementing Metrics are ignored.
func (e *Environment) UseMetrics(metrics any) {
	if m, ok := metrics.(Metrics); ok {
		e.metrics = m
	}
}

// UseTracer sets the tracer used for prepare, execute and fetch spans.
func (e *Environment) UseTracer(tracer any) {
	if t, ok := tracer.(trace.Tracer); ok {
		e.tracer = t
	}
}

// Connect opens a database from config and returns a Connection owning it.
func (e *Environment) Connect(ctx context.Context, config *ksql.DBConfig) (*Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(KindSetup, "connect", err)
	}

	if e.isClosed() {
		return nil, localError(KindSetup, "connect", StateSequence, ErrClosed, "environment")
	}

	var sqlMetrics ksql.Metrics
	if e.metrics != nil {
		sqlMetrics = e.metrics
	}

	db, err := ksql.NewSQL(config, e.logger, sqlMetrics)
	if err != nil {
		return nil, newError(KindSetup, "connect", err)
	}

	conn, err := e.NewConnection(db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return conn, nil
}

// NewConnection adopts an already open database. The Connection closes db when it is closed.
func (e *Environment) NewConnection(db *ksql.DB) (*Connection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, localError(KindSetup, "connect", StateSequence, ErrClosed, "environment")
	}

	e.nextID++

	conn := &Connection{
		id:    e.nextID,
		env:   e,
		db:    db,
		stmts: make(map[uint64]*Statement),
	}

	e.conns[conn.id] = conn

	return conn, nil
}

// Connections returns the number of open connections.
func (e *Environment) Connections() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.conns)
}

// Close closes every open connection, then the environment. The first error met is returned.
func (e *Environment) Close() error {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()

		return nil
	}

	e.closed = true

	conns := make([]*Connection, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}

	e.mu.Unlock()

	var first error

	for _, c := range conns {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

func (e *Environment) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.closed
}

func (e *Environment) release(id uint64) {
	e.mu.Lock()
	delete(e.conns, id)
	e.mu.Unlock()
}
