// Package sql wraps database/sql for batchrow. DB and Tx log every statement they run and record its duration in
// the app_sql_stats histogram.
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/sllt/batchrow/pkg/batchrow/datasource"
)

// DB is a wrapper around sql.DB which provides query logging, metrics and dialect aware placeholders.
type DB struct {
	// contains unexported or private fields
	*sql.DB
	logger  datasource.Logger
	config  *DBConfig
	metrics Metrics
}

type Log struct {
	Type     string `json:"type"`
	Query    string `json:"query"`
	Duration int64  `json:"duration"`
	Args     []any  `json:"args,omitempty"`
}

var whitespace = regexp.MustCompile(`\s+`)

func (l *Log) PrettyPrint(writer io.Writer) {
	fmt.Fprintf(writer, "\u001B[38;5;8m%-32s \u001B[38;5;24m%-6s\u001B[0m %8d\u001B[38;5;8mµs\u001B[0m %s\n",
		l.Type, "SQL", l.Duration, clean(l.Query))
}

func clean(query string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(query, " "))
}

// Wrap returns a DB around an already opened sql.DB. It is how tests and callers with their own driver setup get
// the batchrow instrumentation.
func Wrap(db *sql.DB, config *DBConfig, logger datasource.Logger, metrics Metrics) *DB {
	if config == nil {
		config = &DBConfig{}
	}

	return &DB{DB: db, config: config, logger: logger, metrics: metrics}
}

func sendStats(logger datasource.Logger, metrics Metrics, config *DBConfig, start time.Time, queryType, query string, args ...any) {
	duration := time.Since(start).Microseconds()

	if logger != nil {
		logger.Debug(&Log{
			Type:     queryType,
			Query:    query,
			Duration: duration,
			Args:     args,
		})
	}

	if metrics != nil {
		metrics.RecordHistogram(context.Background(), "app_sql_stats", float64(duration)/1e3, "hostname", config.HostName,
			"database", config.Database, "type", getOperationType(query))
	}
}

func (d *DB) sendOperationStats(start time.Time, queryType, query string, args ...any) {
	sendStats(d.logger, d.metrics, d.config, start, queryType, query, args...)
}

func getOperationType(query string) string {
	query = strings.TrimSpace(query)
	words := strings.Split(query, " ")

	return strings.ToUpper(words[0])
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer d.sendOperationStats(time.Now(), "QueryContext", query, args...)
	return d.DB.QueryContext(ctx, query, args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer d.sendOperationStats(time.Now(), "QueryRowContext", query, args...)
	return d.DB.QueryRowContext(ctx, query, args...)
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer d.sendOperationStats(time.Now(), "ExecContext", query, args...)
	return d.DB.ExecContext(ctx, query, args...)
}

func (d *DB) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	defer d.sendOperationStats(time.Now(), "PrepareContext", query)
	return d.DB.PrepareContext(ctx, query)
}

// Dialect returns the normalised dialect name: mysql, postgres or sqlite.
func (d *DB) Dialect() string {
	return d.config.Dialect
}

// Rebind rewrites the ? placeholders of query into the form the dialect expects.
func (d *DB) Rebind(query string) string {
	return Rebind(d.config.Dialect, query)
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	defer d.sendOperationStats(time.Now(), "BeginTx", "BEGIN")

	tx, err := d.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}

	return &Tx{Tx: tx, config: d.config, logger: d.logger, metrics: d.metrics}, nil
}

func (d *DB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}

	return nil
}

type Tx struct {
	*sql.Tx
	config  *DBConfig
	logger  datasource.Logger
	metrics Metrics
}

func (t *Tx) sendOperationStats(start time.Time, queryType, query string, args ...any) {
	sendStats(t.logger, t.metrics, t.config, start, queryType, query, args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer t.sendOperationStats(time.Now(), "TxQueryContext", query, args...)
	return t.Tx.QueryContext(ctx, query, args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer t.sendOperationStats(time.Now(), "TxQueryRowContext", query, args...)
	return t.Tx.QueryRowContext(ctx, query, args...)
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer t.sendOperationStats(time.Now(), "TxExecContext", query, args...)
	return t.Tx.ExecContext(ctx, query, args...)
}

func (t *Tx) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	defer t.sendOperationStats(time.Now(), "TxPrepareContext", query)
	return t.Tx.PrepareContext(ctx, query)
}

func (t *Tx) Commit() error {
	defer t.sendOperationStats(time.Now(), "TxCommit", "COMMIT")
	return t.Tx.Commit()
}

func (t *Tx) Rollback() error {
	defer t.sendOperationStats(time.Now(), "TxRollback", "ROLLBACK")
	return t.Tx.Rollback()
}
