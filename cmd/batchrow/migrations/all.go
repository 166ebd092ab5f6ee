// Package migrations holds the schema of the demo pnr_info table.
package migrations

import "github.com/sllt/batchrow/pkg/batchrow/migration"

func All() map[int64]migration.Migrate {
	return map[int64]migration.Migrate{
		20240101000000: createPNRInfo(),
		20240101000100: seedPNRInfo(),
	}
}
