package batch

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLSTATE values produced locally, without a round trip to the server.
const (
	StateGeneral          = "HY000"
	StateTruncated        = "01004"
	StateCountMismatch    = "07002"
	StateInvalidIndex     = "07009"
	StateNotConnected     = "08003"
	StateConnectFailed    = "08001"
	StateConversion       = "22018"
	StateOutOfRange       = "22003"
	StateConstraint       = "23000"
	StateInvalidTxState   = "25000"
	StateCanceled         = "HY008"
	StateSequence         = "HY010"
	StateAttributeValue   = "HY024"
	StateBufferLength     = "HY090"
	StateTimeout          = "HYT00"
	StateStringTruncation = "22001"
	StateSerialization    = "40001"
)

// Diagnostic is one status record: a five character SQLSTATE, the driver native code and a message. Row and
// Column are 1-based and zero when the record is not tied to a row or column.
type Diagnostic struct {
	State       string `json:"state"`
	NativeError int    `json:"native_error,omitempty"`
	Message     string `json:"message"`
	Row         int    `json:"row,omitempty"`
	Column      int    `json:"column,omitempty"`
}

func (d Diagnostic) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s]", d.State)

	if d.NativeError != 0 {
		fmt.Fprintf(&b, " (%d)", d.NativeError)
	}

	b.WriteString(" ")
	b.WriteString(d.Message)

	if d.Row > 0 {
		fmt.Fprintf(&b, " (row %d", d.Row)

		if d.Column > 0 {
			fmt.Fprintf(&b, ", column %d", d.Column)
		}

		b.WriteString(")")
	}

	return b.String()
}

// diagnose turns err into a status record using whatever the driver exposes.
func diagnose(err error) Diagnostic {
	var (
		berr     *Error
		myErr    *mysql.MySQLError
		pqErr    *pq.Error
		sqlitErr *sqlite.Error
	)

	switch {
	case errors.As(err, &berr):
		return berr.Diag
	case errors.As(err, &myErr):
		state := string(myErr.SQLState[:])
		if strings.Trim(state, "\x00") == "" {
			state = StateGeneral
		}

		return Diagnostic{State: state, NativeError: int(myErr.Number), Message: myErr.Message}
	case errors.As(err, &pqErr):
		return Diagnostic{State: string(pqErr.Code), Message: pqErr.Message}
	case errors.As(err, &sqlitErr):
		return Diagnostic{State: sqliteState(sqlitErr.Code()), NativeError: sqlitErr.Code(), Message: sqlitErr.Error()}
	case errors.Is(err, context.Canceled):
		return Diagnostic{State: StateCanceled, Message: "operation canceled"}
	case errors.Is(err, context.DeadlineExceeded):
		return Diagnostic{State: StateTimeout, Message: "timeout expired"}
	case errors.Is(err, sql.ErrConnDone):
		return Diagnostic{State: StateNotConnected, Message: err.Error()}
	case errors.Is(err, sql.ErrTxDone):
		return Diagnostic{State: StateInvalidTxState, Message: err.Error()}
	default:
		return Diagnostic{State: StateGeneral, Message: err.Error()}
	}
}

// sqliteState maps the primary sqlite result code onto the closest SQLSTATE class.
func sqliteState(code int) string {
	switch code & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return StateConstraint
	case sqlite3.SQLITE_MISMATCH:
		return StateConversion
	case sqlite3.SQLITE_TOOBIG:
		return StateStringTruncation
	case sqlite3.SQLITE_RANGE:
		return StateInvalidIndex
	case sqlite3.SQLITE_INTERRUPT:
		return StateCanceled
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return StateSerialization
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB:
		return StateConnectFailed
	default:
		return StateGeneral
	}
}

// conversionDiag classifies an error returned while assigning a fetched value to a column buffer.
func conversionDiag(err error, row, column int) Diagnostic {
	state := StateConversion
	if strings.Contains(err.Error(), "out of range") {
		state = StateOutOfRange
	}

	return Diagnostic{State: state, Message: err.Error(), Row: row, Column: column}
}
