package migrations

import (
	"context"

	"github.com/sllt/batchrow/pkg/batchrow/migration"
)

const createTable = `CREATE TABLE IF NOT EXISTS pnr_info (
    pnr_id INTEGER PRIMARY KEY,
    principle INTEGER,
    si_total INTEGER
);`

func createPNRInfo() migration.Migrate {
	return migration.Migrate{
		UP: func(d migration.Datasource) error {
			_, err := d.SQL.ExecContext(context.Background(), createTable)

			return err
		},
	}
}
