package batch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	ksql "github.com/sllt/batchrow/pkg/batchrow/datasource/sql"
)

const (
	createPNR = "CREATE TABLE pnr_info (pnr_id INTEGER PRIMARY KEY, principle INTEGER, si_total INTEGER)"
	selectPNR = "SELECT pnr_id, principle, si_total FROM pnr_info WHERE pnr_id > ? AND pnr_id < ? ORDER BY pnr_id"
	insertPNR = "INSERT INTO pnr_info (pnr_id, principle, si_total) VALUES (?, ?, ?)"
	updatePNR = "UPDATE pnr_info SET principle = ?, si_total = ? WHERE pnr_id = ?"
)

// newTestConnection connects to a fresh sqlite file holding rows pnr_id 101..100+rows.
func newTestConnection(t *testing.T, rows int) (*Environment, *Connection) {
	t.Helper()

	env := NewEnvironment()

	conn, err := env.Connect(context.Background(), &ksql.DBConfig{
		Dialect:  ksql.DialectSQLite,
		Database: filepath.Join(t.TempDir(), "pnr.db"),
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = env.Close() })

	ctx := context.Background()

	_, err = conn.DB().ExecContext(ctx, createPNR)
	require.NoError(t, err)

	for i := 1; i <= rows; i++ {
		_, err = conn.DB().ExecContext(ctx, insertPNR, 100+i, i*100, i*10)
		require.NoError(t, err)
	}

	return env, conn
}

type pnrColumns struct {
	id, principle, total *Column[int32]
}

func newPNRColumns(t *testing.T, n int) pnrColumns {
	t.Helper()

	var (
		c   pnrColumns
		err error
	)

	c.id, err = NewColumn[int32](n)
	require.NoError(t, err)

	c.principle, err = NewColumn[int32](n)
	require.NoError(t, err)

	c.total, err = NewColumn[int32](n)
	require.NoError(t, err)

	return c
}

// openFetch binds the three pnr_info columns plus the range parameters and executes selectPNR.
func openFetch(t *testing.T, conn *Connection, n int, minID, maxID int32, opts ...Option) (*Statement, pnrColumns) {
	t.Helper()

	stmt, err := conn.NewStatement(append([]Option{WithRowArraySize(n)}, opts...)...)
	require.NoError(t, err)

	cols := newPNRColumns(t, n)

	require.NoError(t, stmt.BindCol(1, cols.id))
	require.NoError(t, stmt.BindCol(2, cols.principle))
	require.NoError(t, stmt.BindCol(3, cols.total))

	lo, err := NewColumn[int32](n)
	require.NoError(t, err)
	require.NoError(t, lo.Set(0, minID))

	hi, err := NewColumn[int32](n)
	require.NoError(t, err)
	require.NoError(t, hi.Set(0, maxID))

	require.NoError(t, stmt.BindParam(1, lo))
	require.NoError(t, stmt.BindParam(2, hi))

	require.NoError(t, stmt.Prepare(context.Background(), selectPNR))
	require.NoError(t, stmt.Execute(context.Background()))

	return stmt, cols
}

// drain fetches until exhaustion and returns the round counts and every valid pnr_id in order.
func drain(t *testing.T, stmt *Statement, cols pnrColumns) (counts []int, ids []int32) {
	t.Helper()

	for {
		round, err := stmt.Fetch(context.Background())
		require.NoError(t, err)

		counts = append(counts, round.Count)

		for i := 0; i < round.Count; i++ {
			if !round.Valid(i) {
				continue
			}

			id, ok, err := cols.id.Get(i)
			require.NoError(t, err)
			require.True(t, ok)

			ids = append(ids, id)
		}

		if round.Count == 0 {
			return counts, ids
		}
	}
}

func TestFetch_RoundsOfFive(t *testing.T) {
	_, conn := newTestConnection(t, 12)

	stmt, cols := openFetch(t, conn, 5, 100, 1600)

	var counts []int

	for {
		round, err := stmt.Fetch(context.Background())
		require.NoError(t, err)

		counts = append(counts, round.Count)

		if round.Count == 2 {
			for i := 2; i < 5; i++ {
				_, _, err = cols.id.Get(i)
				require.ErrorIs(t, err, ErrRowIndex, "row %d is stale", i)
			}
		}

		if round.Count == 0 {
			break
		}
	}

	assert.Equal(t, []int{5, 5, 2, 0}, counts)
	assert.Equal(t, StateExhausted, stmt.State())

	round, err := stmt.Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, round.Count)

	n, err := stmt.RowCount()
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestFetch_RoundCountProperty(t *testing.T) {
	const rows = 12

	_, conn := newTestConnection(t, rows)

	want := make([]int32, rows)
	for i := range want {
		want[i] = int32(101 + i)
	}

	for _, n := range []int{1, 2, 3, 5, 7, 12, 13, 20} {
		stmt, cols := openFetch(t, conn, n, 100, 1600)

		counts, ids := drain(t, stmt, cols)

		assert.Len(t, counts, (rows+n-1)/n+1, "N=%d", n)
		assert.Equal(t, want, ids, "N=%d", n)

		require.NoError(t, stmt.Close())
	}
}

func TestFetch_ReExecuteIsIdempotent(t *testing.T) {
	_, conn := newTestConnection(t, 7)

	stmt, cols := openFetch(t, conn, 3, 102, 106)

	firstCounts, first := drain(t, stmt, cols)

	require.NoError(t, stmt.Execute(context.Background()))

	secondCounts, second := drain(t, stmt, cols)

	assert.Equal(t, []int32{103, 104, 105}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, firstCounts, secondCounts)
}

func TestFetch_NullsAreNotExposed(t *testing.T) {
	_, conn := newTestConnection(t, 2)

	_, err := conn.DB().ExecContext(context.Background(), "UPDATE pnr_info SET si_total = NULL WHERE pnr_id = 102")
	require.NoError(t, err)

	stmt, cols := openFetch(t, conn, 5, 100, 200)

	round, err := stmt.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, round.Count)

	v, ok, err := cols.total.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, v)

	ind, err := cols.total.Indicator(1)
	require.NoError(t, err)
	assert.Equal(t, NullData, ind)

	v, ok, err = cols.total.Get(0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(10), v)
}

func TestFetch_RowLevelProblemsKeepTheRound(t *testing.T) {
	_, conn := newTestConnection(t, 0)
	ctx := context.Background()

	_, err := conn.DB().ExecContext(ctx, "CREATE TABLE notes (id INTEGER, body TEXT)")
	require.NoError(t, err)

	_, err = conn.DB().ExecContext(ctx, "INSERT INTO notes VALUES (1, 'ok'), ('x', 'short'), (3, 'much too long')")
	require.NoError(t, err)

	stmt, err := conn.NewStatement(WithRowArraySize(4))
	require.NoError(t, err)

	id, err := NewColumn[int32](4)
	require.NoError(t, err)

	body, err := NewStringColumn(4, 5)
	require.NoError(t, err)

	require.NoError(t, stmt.BindCol(1, id))
	require.NoError(t, stmt.BindCol(2, body))
	require.NoError(t, stmt.Prepare(ctx, "SELECT id, body FROM notes ORDER BY rowid"))
	require.NoError(t, stmt.Execute(ctx))

	round, err := stmt.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, round.Count)

	assert.Equal(t, []RowStatus{RowSuccess, RowError, RowSuccessWithInfo}, round.Status)

	diags := stmt.Diagnostics()
	require.Len(t, diags, 2)
	assert.Equal(t, StateConversion, diags[0].State)
	assert.Equal(t, 2, diags[0].Row)
	assert.Equal(t, 1, diags[0].Column)
	assert.Equal(t, StateTruncated, diags[1].State)
	assert.Equal(t, 3, diags[1].Row)
	assert.Equal(t, 2, diags[1].Column)

	v, ok, err := body.Get(2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "much ", v)

	ind, err := body.Indicator(2)
	require.NoError(t, err)
	assert.Equal(t, Indicator(len("much too long")), ind)
}

func TestFetch_CanceledContextFailsTheTransfer(t *testing.T) {
	_, conn := newTestConnection(t, 3)

	stmt, cols := openFetch(t, conn, 2, 100, 200)

	round, err := stmt.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, round.Count)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = stmt.Fetch(ctx)

	var berr *Error

	require.ErrorAs(t, err, &berr)
	assert.Equal(t, KindRound, berr.Kind)
	assert.Equal(t, StateCanceled, berr.State())
	assert.Equal(t, StateFailed, stmt.State())
	assert.Zero(t, cols.id.Len())

	_, err = stmt.Fetch(context.Background())
	require.ErrorIs(t, err, ErrSequence)
}

func TestFetch_WithRoundLimiter(t *testing.T) {
	_, conn := newTestConnection(t, 4)

	stmt, cols := openFetch(t, conn, 2, 100, 200, WithRoundLimiter(rate.NewLimiter(rate.Inf, 1)))

	counts, ids := drain(t, stmt, cols)

	assert.Equal(t, []int{2, 2, 0}, counts)
	assert.Equal(t, []int32{101, 102, 103, 104}, ids)
}

func TestFetch_ConcurrentStatements(t *testing.T) {
	_, conn := newTestConnection(t, 40)

	const partitions = 4

	results := make([][]int32, partitions)

	var g errgroup.Group

	for p := 0; p < partitions; p++ {
		g.Go(func() error {
			lo := int32(100 + p*10)

			stmt, cols := openFetch(t, conn, 3, lo, lo+11)
			defer stmt.Close()

			_, results[p] = drain(t, stmt, cols)

			return nil
		})
	}

	require.NoError(t, g.Wait())

	for p := 0; p < partitions; p++ {
		lo := int32(100 + p*10)

		assert.Len(t, results[p], 10, "partition %d", p)
		assert.Equal(t, lo+1, results[p][0])
	}
}

type pnrParams struct {
	first, second, third *Column[int32]
}

func newWriteStatement(t *testing.T, conn *Connection, query string, rows [][3]int32, opts ...Option) *Statement {
	t.Helper()

	stmt, err := conn.NewStatement(append([]Option{WithRowArraySize(5)}, opts...)...)
	require.NoError(t, err)

	p := pnrParams{}
	cols := newPNRColumns(t, 5)
	p.first, p.second, p.third = cols.id, cols.principle, cols.total

	for i, r := range rows {
		require.NoError(t, p.first.Set(i, r[0]))
		require.NoError(t, p.second.Set(i, r[1]))
		require.NoError(t, p.third.Set(i, r[2]))
	}

	require.NoError(t, stmt.BindParam(1, p.first))
	require.NoError(t, stmt.BindParam(2, p.second))
	require.NoError(t, stmt.BindParam(3, p.third))
	require.NoError(t, stmt.SetParamsetSize(len(rows)))
	require.NoError(t, stmt.Prepare(context.Background(), query))

	return stmt
}

func countRows(t *testing.T, conn *Connection) int {
	t.Helper()

	var n int

	require.NoError(t, conn.DB().QueryRowContext(context.Background(), "SELECT COUNT(*) FROM pnr_info").Scan(&n))

	return n
}

var insertRows = [][3]int32{
	{13, 123, 1000}, {14, 456, 2000}, {15, 789, 3000}, {16, 1011, 4000}, {17, 1213, 5000},
}

func TestExecute_InsertThenDuplicateFailsWholeBatch(t *testing.T) {
	_, conn := newTestConnection(t, 0)
	ctx := context.Background()

	stmt := newWriteStatement(t, conn, insertPNR, insertRows)

	require.NoError(t, stmt.Execute(ctx))

	n, err := stmt.RowCount()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, StateExhausted, stmt.State())
	assert.Equal(t, []ParamStatus{ParamSuccess, ParamSuccess, ParamSuccess, ParamSuccess, ParamSuccess},
		stmt.ParamStatus())

	dup := newWriteStatement(t, conn, insertPNR, [][3]int32{
		{18, 1, 1}, {19, 1, 1}, {13, 1, 1}, {20, 1, 1}, {21, 1, 1},
	})

	err = dup.Execute(ctx)

	var berr *Error

	require.ErrorAs(t, err, &berr)
	assert.Equal(t, KindRound, berr.Kind)
	assert.Equal(t, StateConstraint, berr.State())
	assert.Equal(t, 3, berr.Diag.Row)
	assert.Equal(t, StateFailed, dup.State())

	n, err = dup.RowCount()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []ParamStatus{ParamUnused, ParamUnused, ParamError, ParamUnused, ParamUnused}, dup.ParamStatus())
	assert.Equal(t, 5, countRows(t, conn), "nothing from the failed batch is kept")
}

func TestExecute_NonAtomicReportsPerRow(t *testing.T) {
	_, conn := newTestConnection(t, 0)
	ctx := context.Background()

	_, err := conn.DB().ExecContext(ctx, insertPNR, 15, 1, 1)
	require.NoError(t, err)

	stmt := newWriteStatement(t, conn, insertPNR, insertRows, WithAtomicBatch(false))

	require.NoError(t, stmt.Execute(ctx))

	n, err := stmt.RowCount()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, []ParamStatus{ParamSuccess, ParamSuccess, ParamError, ParamSuccess, ParamSuccess}, stmt.ParamStatus())

	diags := stmt.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, StateConstraint, diags[0].State)
	assert.Equal(t, 3, diags[0].Row)
	assert.Equal(t, 5, countRows(t, conn))
}

func TestExecute_UpdateWithUnknownKey(t *testing.T) {
	_, conn := newTestConnection(t, 4)

	stmt := newWriteStatement(t, conn, updatePNR, [][3]int32{
		{1500, 15, 101}, {2500, 25, 102}, {3500, 35, 103}, {4500, 45, 104}, {5500, 55, 105},
	})

	require.NoError(t, stmt.Execute(context.Background()))

	n, err := stmt.RowCount()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	var principle int

	require.NoError(t, conn.DB().QueryRowContext(context.Background(),
		"SELECT principle FROM pnr_info WHERE pnr_id = 103").Scan(&principle))
	assert.Equal(t, 3500, principle)
}

func TestExecute_PartialParamset(t *testing.T) {
	_, conn := newTestConnection(t, 0)

	stmt := newWriteStatement(t, conn, insertPNR, insertRows[:3])

	require.NoError(t, stmt.Execute(context.Background()))

	n, err := stmt.RowCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []ParamStatus{ParamSuccess, ParamSuccess, ParamSuccess, ParamUnused, ParamUnused}, stmt.ParamStatus())
	assert.Equal(t, 3, countRows(t, conn))
}

func TestExecute_NullParameter(t *testing.T) {
	_, conn := newTestConnection(t, 0)
	ctx := context.Background()

	stmt, err := conn.NewStatement(WithRowArraySize(2))
	require.NoError(t, err)

	id, err := NewColumn[int64](2)
	require.NoError(t, err)

	total, err := NewColumn[int64](2)
	require.NoError(t, err)

	require.NoError(t, id.Set(0, 1))
	require.NoError(t, id.Set(1, 2))
	require.NoError(t, total.Set(0, 10))
	require.NoError(t, total.SetNull(1))

	require.NoError(t, stmt.BindParam(1, id))
	require.NoError(t, stmt.BindParam(2, total))
	require.NoError(t, stmt.SetParamsetSize(2))
	require.NoError(t, stmt.Prepare(ctx, "INSERT INTO pnr_info (pnr_id, si_total) VALUES (?, ?)"))
	require.NoError(t, stmt.Execute(ctx))

	var nulls int

	require.NoError(t, conn.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM pnr_info WHERE si_total IS NULL").Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

func TestStatement_SequenceErrors(t *testing.T) {
	_, conn := newTestConnection(t, 0)
	ctx := context.Background()

	stmt, err := conn.NewStatement(WithRowArraySize(5))
	require.NoError(t, err)

	assertSequence := func(err error, msg string) {
		t.Helper()

		var berr *Error

		require.ErrorAs(t, err, &berr, msg)
		assert.Equal(t, StateSequence, berr.State(), msg)
		assert.Equal(t, KindSequence, berr.Kind, msg)
	}

	assertSequence(stmt.Prepare(ctx, insertPNR), "prepare without bindings")
	assertSequence(stmt.Execute(ctx), "execute while unbound")

	_, err = stmt.Fetch(ctx)
	assertSequence(err, "fetch while unbound")

	stmt = newWriteStatement(t, conn, insertPNR, insertRows)

	_, err = stmt.Fetch(ctx)
	assertSequence(err, "fetch on a prepared write")
	assertSequence(stmt.Prepare(ctx, insertPNR), "prepare twice")
	assertSequence(stmt.SetRowArraySize(3), "resize after binding")

	require.NoError(t, stmt.Execute(ctx))

	c, err := NewColumn[int32](5)
	require.NoError(t, err)

	_, err = stmt.Fetch(ctx)
	assertSequence(err, "fetch on an exhausted write")
	assertSequence(stmt.BindParam(1, c), "bind after execute")

	require.NoError(t, stmt.Close())
	require.NoError(t, stmt.Close())
	assert.Equal(t, StateClosed, stmt.State())

	require.ErrorIs(t, stmt.Execute(ctx), ErrClosed)
	require.ErrorIs(t, stmt.BindParam(1, c), ErrClosed)

	_, err = stmt.RowCount()
	require.ErrorIs(t, err, ErrClosed)
}

func TestStatement_BindErrors(t *testing.T) {
	_, conn := newTestConnection(t, 0)
	ctx := context.Background()

	stmt, err := conn.NewStatement(WithRowArraySize(5))
	require.NoError(t, err)

	small, err := NewColumn[int32](4)
	require.NoError(t, err)

	full, err := NewColumn[int32](5)
	require.NoError(t, err)

	require.ErrorIs(t, stmt.BindParam(0, full), ErrOrdinal)
	require.ErrorIs(t, stmt.BindParam(1, small), ErrCapacity)
	require.ErrorIs(t, stmt.BindParam(1, nil), ErrCapacity)
	assert.Equal(t, StateUnbound, stmt.State())

	require.NoError(t, stmt.BindParam(1, full))
	require.NoError(t, stmt.BindParam(3, full))
	require.NoError(t, stmt.Prepare(ctx, "INSERT INTO pnr_info (pnr_id, principle) VALUES (?, ?)"))

	err = stmt.Execute(ctx)
	require.ErrorIs(t, err, ErrOrdinal, "ordinal 2 is missing")

	require.NoError(t, stmt.BindParam(2, full))

	err = stmt.Execute(ctx)
	require.ErrorIs(t, err, ErrParamCount, "three parameters for two placeholders")

	var berr *Error

	require.ErrorAs(t, err, &berr)
	assert.Equal(t, KindBind, berr.Kind)
	assert.Equal(t, StatePrepared, stmt.State(), "bind errors abort before execution")

	require.ErrorIs(t, stmt.SetParamsetSize(6), ErrAttribute)
	require.ErrorIs(t, stmt.SetParamsetSize(0), ErrAttribute)
}

func TestStatement_ParamCountMismatch(t *testing.T) {
	_, conn := newTestConnection(t, 0)
	ctx := context.Background()

	stmt, err := conn.NewStatement(WithRowArraySize(2))
	require.NoError(t, err)

	c, err := NewColumn[int32](2)
	require.NoError(t, err)

	require.NoError(t, stmt.BindParam(1, c))
	require.NoError(t, stmt.Prepare(ctx, insertPNR))

	err = stmt.Execute(ctx)
	require.ErrorIs(t, err, ErrParamCount)

	var berr *Error

	require.ErrorAs(t, err, &berr)
	assert.Equal(t, StateCountMismatch, berr.State())
}

func TestStatement_PrepareError(t *testing.T) {
	_, conn := newTestConnection(t, 0)

	stmt, err := conn.NewStatement()
	require.NoError(t, err)

	c, err := NewColumn[int32](1)
	require.NoError(t, err)

	require.NoError(t, stmt.BindCol(1, c))

	err = stmt.Prepare(context.Background(), "SELECT nope FROM missing_table")

	var berr *Error

	require.ErrorAs(t, err, &berr)
	assert.Equal(t, KindSetup, berr.Kind)
	assert.Equal(t, StateBound, stmt.State())
}

func TestEnvironment_CloseReleasesChildrenFirst(t *testing.T) {
	env, conn := newTestConnection(t, 3)

	fetch, _ := openFetch(t, conn, 2, 100, 200)

	idle, err := conn.NewStatement()
	require.NoError(t, err)

	assert.Equal(t, 1, env.Connections())
	assert.Equal(t, 2, conn.Statements())

	require.NoError(t, env.Close())

	assert.Equal(t, StateClosed, fetch.State())
	assert.Equal(t, StateClosed, idle.State())
	assert.Zero(t, conn.Statements())
	assert.Zero(t, env.Connections())

	_, err = conn.NewStatement()
	require.ErrorIs(t, err, ErrClosed)

	_, err = env.Connect(context.Background(), &ksql.DBConfig{Dialect: ksql.DialectSQLite, Database: "x.db"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestEnvironment_ConnectErrors(t *testing.T) {
	env := NewEnvironment()

	_, err := env.Connect(context.Background(), &ksql.DBConfig{Dialect: "oracle"})

	var berr *Error

	require.ErrorAs(t, err, &berr)
	assert.Equal(t, KindSetup, berr.Kind)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = env.Connect(ctx, &ksql.DBConfig{Dialect: ksql.DialectSQLite, Database: "x.db"})
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, StateCanceled, berr.State())
}

func TestNewStatement_InvalidRowArraySize(t *testing.T) {
	_, conn := newTestConnection(t, 0)

	_, err := conn.NewStatement(WithRowArraySize(0))
	require.ErrorIs(t, err, ErrCapacity)

	stmt, err := conn.NewStatement()
	require.NoError(t, err)
	assert.Equal(t, 1, stmt.RowArraySize())

	require.NoError(t, stmt.SetRowArraySize(10))
	assert.Equal(t, 10, stmt.RowArraySize())
	require.ErrorIs(t, stmt.SetRowArraySize(0), ErrCapacity)
	assert.Equal(t, StateUnbound, stmt.State())
}
