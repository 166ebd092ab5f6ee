package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/sllt/batchrow/pkg/batchrow/migration"
)

// SeedRows is the number of demo rows, pnr_id 101 up to 100+SeedRows.
const SeedRows = 12

func seedPNRInfo() migration.Migrate {
	return migration.Migrate{
		UP: func(d migration.Datasource) error {
			values := make([]string, 0, SeedRows)

			for i := 1; i <= SeedRows; i++ {
				values = append(values, fmt.Sprintf("(%d, %d, %d)", 100+i, i*100, i*10))
			}

			_, err := d.SQL.ExecContext(context.Background(),
				"INSERT INTO pnr_info (pnr_id, principle, si_total) VALUES "+strings.Join(values, ", "))
			if err != nil {
				return err
			}

			d.Infof("seeded %d rows into pnr_info", SeedRows)

			return nil
		},
	}
}
