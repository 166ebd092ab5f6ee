package migration

import (
	"context"
	"time"

	"github.com/pkg/errors"

	ksql "github.com/sllt/batchrow/pkg/batchrow/datasource/sql"
)

const (
	createSQLMigrationsTable = `CREATE TABLE IF NOT EXISTS batchrow_migrations (
    version BIGINT not null ,
    method VARCHAR(4) not null ,
    start_time TIMESTAMP not null ,
    duration BIGINT,
    constraint primary_key primary key (version, method)
);`

	getLastSQLMigration = `SELECT COALESCE(MAX(version), 0) FROM batchrow_migrations;`

	insertMigrationRow = `INSERT INTO batchrow_migrations (version, method, start_time, duration) VALUES (?, ?, ?, ?);`
)

type sqlMigrator struct {
	db     *ksql.DB
	logger Logger
}

func (s *sqlMigrator) checkAndCreateMigrationTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createSQLMigrationsTable)

	return err
}

func (s *sqlMigrator) getLastMigration(ctx context.Context) (int64, error) {
	var lastMigration int64

	err := s.db.QueryRowContext(ctx, getLastSQLMigration).Scan(&lastMigration)
	if err != nil {
		return -1, errors.Wrap(err, "sql")
	}

	s.logger.Debugf("SQL last migration fetched value is: %v", lastMigration)

	return lastMigration, nil
}

func (s *sqlMigrator) commitMigration(ctx context.Context, tx *ksql.Tx, version int64, start time.Time) error {
	_, err := tx.ExecContext(ctx, s.db.Rebind(insertMigrationRow), version, "UP", start.UTC(),
		time.Since(start).Milliseconds())
	if err != nil {
		return err
	}

	s.logger.Debugf("inserted record for migration %v in batchrow_migrations table", version)

	return tx.Commit()
}

func (s *sqlMigrator) rollback(tx *ksql.Tx, version int64) {
	if err := tx.Rollback(); err != nil {
		s.logger.Errorf("unable to rollback migration %v: %v", version, err)

		return
	}

	s.logger.Errorf("migration %v failed and rolled back", version)
}
