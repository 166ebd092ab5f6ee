package sql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

var errUnsupportedDialect = errors.New("unsupported dialect")

// NormalizeDialect maps the accepted aliases onto mysql, postgres or sqlite.
//
// Supported values include:
//   - mysql, mariadb
//   - postgres, postgresql, cockroachdb
//   - sqlite, sqlite3
func NormalizeDialect(dialect string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectMySQL, "mariadb":
		return DialectMySQL, nil
	case DialectPostgres, "postgresql", "cockroachdb":
		return DialectPostgres, nil
	case DialectSQLite, "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedDialect, dialect)
	}
}

// Rebind turns positional ? placeholders into $1, $2, ... for postgres. Question marks inside single quoted
// literals are left alone. Other dialects get query back unchanged.
func Rebind(dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}

	var (
		counter = 1
		quoted  bool
		out     strings.Builder
	)

	out.Grow(len(query) + 8)

	for i := 0; i < len(query); i++ {
		c := query[i]

		switch {
		case c == '\'':
			quoted = !quoted
		case c == '?' && !quoted:
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(counter))
			counter++

			continue
		}

		out.WriteByte(c)
	}

	return out.String()
}

// CountPlaceholders returns how many positional ? markers query contains outside single quoted literals.
func CountPlaceholders(query string) int {
	var (
		n      int
		quoted bool
	)

	for i := 0; i < len(query); i++ {
		switch query[i] {
		case '\'':
			quoted = !quoted
		case '?':
			if !quoted {
				n++
			}
		}
	}

	return n
}
