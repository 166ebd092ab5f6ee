package testutil

import (
	"path/filepath"
	"testing"
)

// SQLiteConfig returns configuration keys that point at a new sqlite database file inside t's temp dir. Entries
// in extra are added on top.
func SQLiteConfig(t *testing.T, extra map[string]string) map[string]string {
	t.Helper()

	conf := map[string]string{
		"APP_NAME":     "batchrow-test",
		"LOG_LEVEL":    "ERROR",
		"DB_DIALECT":   "sqlite",
		"DB_NAME":      filepath.Join(t.TempDir(), "batchrow.db"),
		"METRICS_PORT": "0",
	}

	for k, v := range extra {
		conf[k] = v
	}

	return conf
}
