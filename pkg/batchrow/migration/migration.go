// Package migration applies versioned schema changes to the batchrow database. Applied versions are recorded in
// the batchrow_migrations table so each one runs once.
package migration

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/sllt/batchrow/pkg/batchrow/datasource"
	ksql "github.com/sllt/batchrow/pkg/batchrow/datasource/sql"
)

// MigrateFunc runs one schema change. d.SQL is the transaction the change runs in.
type MigrateFunc func(d Datasource) error

// Migrate is one versioned change.
type Migrate struct {
	UP MigrateFunc
}

// Logger is what migrations log through.
type Logger = datasource.Logger

// Datasource is handed to every MigrateFunc.
type Datasource struct {
	Logger

	SQL ksql.Executor
}

var (
	errMissingUP     = errors.New("migration has no UP function")
	errNoDatabase    = errors.New("no database to migrate")
	errMigrateFailed = errors.New("migration failed")
)

// Run applies, in ascending version order, every migration newer than the last recorded one. Each migration and
// its record are committed together; the first failure is rolled back and returned and later versions are not
// attempted.
func Run(ctx context.Context, migrations map[int64]Migrate, db *ksql.DB, logger Logger) error {
	if db == nil {
		return errNoDatabase
	}

	versions := make([]int64, 0, len(migrations))

	for v, m := range migrations {
		if m.UP == nil {
			return errors.Wrapf(errMissingUP, "version %d", v)
		}

		versions = append(versions, v)
	}

	slices.Sort(versions)

	s := &sqlMigrator{db: db, logger: logger}

	if err := s.checkAndCreateMigrationTable(ctx); err != nil {
		return errors.Wrap(err, "creating migration table")
	}

	last, err := s.getLastMigration(ctx)
	if err != nil {
		return err
	}

	for _, v := range versions {
		if v <= last {
			continue
		}

		logger.Debugf("running migration %v", v)

		if err := s.run(ctx, v, migrations[v].UP); err != nil {
			return err
		}

		logger.Infof("migration %v ran successfully", v)
	}

	return nil
}

func (s *sqlMigrator) run(ctx context.Context, version int64, up MigrateFunc) error {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "migration %d: begin", version)
	}

	if err := up(Datasource{Logger: s.logger, SQL: tx}); err != nil {
		s.rollback(tx, version)

		return errors.WithStack(&failedError{version: version, err: err})
	}

	if err := s.commitMigration(ctx, tx, version, start); err != nil {
		s.rollback(tx, version)

		return errors.WithStack(&failedError{version: version, err: err})
	}

	return nil
}

// failedError is a migration that ran and was rolled back. It matches errMigrateFailed and unwraps to the cause.
type failedError struct {
	version int64
	err     error
}

func (e *failedError) Error() string {
	return fmt.Sprintf("%v: version %d: %v", errMigrateFailed, e.version, e.err)
}

func (e *failedError) Unwrap() error { return e.err }

func (*failedError) Is(target error) bool { return target == errMigrateFailed }
