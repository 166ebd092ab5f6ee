package sql

import (
	"net/url"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sllt/batchrow/pkg/batchrow/config"
)

func TestNewDBConfig(t *testing.T) {
	cfg := NewDBConfig(config.NewMockConfig(map[string]string{
		"DB_DIALECT":             "PostgreSQL",
		"DB_HOST":                "db",
		"DB_USER":                "scott",
		"DB_PASSWORD":            "tiger",
		"DB_NAME":                "pnr",
		"DB_MAX_OPEN_CONNECTION": "8",
	}))

	assert.Equal(t, DialectPostgres, cfg.Dialect)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 2, cfg.MaxIdleConn)
	assert.Equal(t, 8, cfg.MaxOpenConn)
	assert.NoError(t, cfg.Validate())
}

func TestDBConfig_Validate(t *testing.T) {
	testCases := []struct {
		desc     string
		cfg      DBConfig
		contains []string
	}{
		{
			desc:     "empty config",
			cfg:      DBConfig{},
			contains: []string{"DB_DIALECT", "DB_NAME"},
		},
		{
			desc:     "unknown dialect",
			cfg:      DBConfig{Dialect: "oracle", HostName: "h", User: "u", Database: "d"},
			contains: []string{"DB_DIALECT"},
		},
		{
			desc:     "mysql without host and user",
			cfg:      DBConfig{Dialect: DialectMySQL, Database: "pnr"},
			contains: []string{"DB_HOST", "DB_USER"},
		},
		{
			desc:     "port is not a number",
			cfg:      DBConfig{Dialect: DialectMySQL, HostName: "h", User: "u", Database: "d", Port: "abc"},
			contains: []string{"DB_PORT"},
		},
	}

	for i, tc := range testCases {
		err := tc.cfg.Validate()

		require.Error(t, err, "TEST[%d], Failed.\n%s", i, tc.desc)
		require.ErrorIs(t, err, errInvalidDBConfig, "TEST[%d], Failed.\n%s", i, tc.desc)

		for _, c := range tc.contains {
			assert.Contains(t, err.Error(), c, "TEST[%d], Failed.\n%s", i, tc.desc)
		}
	}
}

func TestDBConfig_ValidateSQLiteNeedsOnlyFile(t *testing.T) {
	cfg := DBConfig{Dialect: DialectSQLite, Database: "pnr.db"}

	assert.NoError(t, cfg.Validate())
}

func TestDBConfig_DSN(t *testing.T) {
	mysqlDSN, err := (&DBConfig{Dialect: DialectMySQL, HostName: "db", User: "u", Password: "p", Database: "pnr"}).DSN()
	require.NoError(t, err)
	assert.Contains(t, mysqlDSN, "u:p@tcp(db:3306)/pnr")
	assert.Contains(t, mysqlDSN, "parseTime=true")
	assert.Contains(t, mysqlDSN, "clientFoundRows=true")

	pgDSN, err := (&DBConfig{Dialect: DialectPostgres, HostName: "db", User: "u", Password: "p", Database: "pnr",
		Port: "6543"}).DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:6543/pnr?sslmode=disable", pgDSN)

	liteDSN, err := (&DBConfig{Dialect: DialectSQLite, Database: "file:/tmp/pnr.db"}).DSN()
	require.NoError(t, err)
	assert.Equal(t, "file:/tmp/pnr.db?_pragma=busy_timeout(5000)", liteDSN)

	_, err = (&DBConfig{Dialect: "oracle"}).DSN()
	require.ErrorIs(t, err, errUnsupportedDialect)
}

func TestDBConfig_PostgresDSNEscapesValues(t *testing.T) {
	tests := []struct {
		desc     string
		user     string
		password string
	}{
		{"space", "u", "my secret"},
		{"quote and backslash", "u", `it's a \ secret`},
		{"url delimiters", "user@corp", "p@ss:w/rd?#%"},
	}

	for i, tc := range tests {
		dsn, err := (&DBConfig{Dialect: DialectPostgres, HostName: "localhost", User: tc.user, Password: tc.password,
			Database: "pnr"}).DSN()
		require.NoError(t, err, "TEST[%d], Failed.\n%s", i, tc.desc)

		_, err = pq.NewConnector(dsn)
		require.NoError(t, err, "TEST[%d], Failed.\n%s", i, tc.desc)

		u, err := url.Parse(dsn)
		require.NoError(t, err, "TEST[%d], Failed.\n%s", i, tc.desc)

		password, _ := u.User.Password()

		assert.Equal(t, tc.user, u.User.Username(), "TEST[%d], Failed.\n%s", i, tc.desc)
		assert.Equal(t, tc.password, password, "TEST[%d], Failed.\n%s", i, tc.desc)
		assert.Equal(t, "/pnr", u.Path, "TEST[%d], Failed.\n%s", i, tc.desc)
	}
}
