package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq" // registers the postgres driver
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite" // registers the sqlite driver

	"github.com/sllt/batchrow/pkg/batchrow/datasource"
)

const pingTimeout = 5 * time.Second

var errConnect = errors.New("could not connect to database")

// NewSQL validates config, opens the driver through otelsql so every driver call is traced, applies the pool
// limits and pings the server. Nothing is retried: a failure here is a setup error for the caller.
func NewSQL(config *DBConfig, logger datasource.Logger, metrics Metrics) (*DB, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dsn, err := config.DSN()
	if err != nil {
		return nil, err
	}

	db, err := otelsql.Open(config.driverName(), dsn,
		otelsql.WithAttributes(attribute.String("db.system", config.Dialect)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConnect, err)
	}

	if config.MaxIdleConn > 0 {
		db.SetMaxIdleConns(config.MaxIdleConn)
	}

	if config.MaxOpenConn > 0 {
		db.SetMaxOpenConns(config.MaxOpenConn)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %w", errConnect, err)
	}

	if logger != nil {
		logger.Infof("connected to '%s' database '%s' at '%s'", config.Dialect, config.Database, config.HostName)
	}

	return Wrap(db, config, logger, metrics), nil
}
