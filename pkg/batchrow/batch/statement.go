package batch

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	ksql "github.com/sllt/batchrow/pkg/batchrow/datasource/sql"
)

const (
	outcomeOK        = "ok"
	outcomeExhausted = "exhausted"
	outcomeFailed    = "failed"
)

// Statement binds caller owned buffers to one SQL statement and moves up to N rows per round through them.
//
// A statement with bound columns is a fetch: Execute opens the result set and every Fetch fills the column
// buffers with the next rows. A statement with only bound parameters is a batch write: Execute runs the statement
// once per parameter set, in index order.
//
// A Statement must be used by one goroutine at a time. Close may be called from anywhere and waits for a running
// round to finish.
type Statement struct {
	mu sync.Mutex

	id           uint64
	conn         *Connection
	size         int
	paramsetSize int
	atomic       bool
	limiter      *rate.Limiter

	state State
	query string
	stmt  *sql.Stmt

	rows    *sql.Rows
	vals    []any
	dest    []any
	drained bool

	cols   map[int]Buffer
	params map[int]Buffer

	rowStatus   []RowStatus
	paramStatus []ParamStatus
	diags       []Diagnostic
	rowCount    int64
}

func (s *Statement) ID() uint64 { return s.id }

// State returns the current lifecycle state.
func (s *Statement) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// RowArraySize returns N.
func (s *Statement) RowArraySize() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.size
}

// SetRowArraySize changes N. It is only allowed before the first binding.
func (s *Statement) SetRowArraySize(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("set row array size", StateUnbound); err != nil {
		return err
	}

	if n < 1 {
		return localError(KindSetup, "set row array size", StateAttributeValue, ErrCapacity, "row array size %d", n)
	}

	s.size = n
	s.rowStatus = make([]RowStatus, n)
	s.paramStatus = make([]ParamStatus, n)

	if s.paramsetSize > n {
		s.paramsetSize = n
	}

	return nil
}

// ParamsetSize returns K, the number of parameter sets the next batch execute runs.
func (s *Statement) ParamsetSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.paramsetSize
}

// SetParamsetSize sets K, 1 <= K <= N. A partial final batch uses K < N; slots from K on are left untouched.
func (s *Statement) SetParamsetSize(k int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "set paramset size"

	if err := s.check(op, StateUnbound, StateBound, StatePrepared, StateExhausted); err != nil {
		return err
	}

	if k < 1 || k > s.size {
		return localError(KindSetup, op, StateAttributeValue, ErrAttribute, "paramset size %d, row array size %d",
			k, s.size)
	}

	s.paramsetSize = k

	return nil
}

// BindCol binds buf as the destination of result column ordinal (1-based). Binding an ordinal again replaces the
// earlier buffer.
func (s *Statement) BindCol(ordinal int, buf Buffer) error {
	return s.bind("bind column", s.cols, ordinal, buf)
}

// BindParam binds buf as the source of parameter ordinal (1-based). Slot i of every parameter buffer forms
// parameter set i.
func (s *Statement) BindParam(ordinal int, buf Buffer) error {
	return s.bind("bind parameter", s.params, ordinal, buf)
}

func (s *Statement) bind(op string, to map[int]Buffer, ordinal int, buf Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(op, s.state.bindable()); err != nil {
		return err
	}

	if ordinal < 1 {
		return localError(KindBind, op, StateInvalidIndex, ErrOrdinal, "ordinal %d", ordinal)
	}

	if buf == nil || buf.Cap() < s.size {
		capacity := 0
		if buf != nil {
			capacity = buf.Cap()
		}

		return localError(KindBind, op, StateBufferLength, ErrCapacity, "ordinal %d: capacity %d, row array size %d",
			ordinal, capacity, s.size)
	}

	to[ordinal] = buf

	if s.state == StateUnbound {
		s.state = StateBound
	}

	return nil
}

// Prepare prepares query. Placeholders are written as ? for every dialect. At least one column or parameter must
// be bound first.
func (s *Statement) Prepare(ctx context.Context, query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "prepare"

	if err := s.guard(op, s.state.canTransition(StatePrepared)); err != nil {
		return err
	}

	s.diags = s.diags[:0]

	ctx, span := s.startSpan(ctx, op)
	defer span.End()

	start := time.Now()

	stmt, err := s.conn.db.PrepareContext(ctx, s.conn.db.Rebind(query))
	if err != nil {
		return s.recordError(span, newError(KindSetup, op, err))
	}

	s.stmt = stmt
	s.query = query
	s.state = StatePrepared

	s.logRound(op, start, 0)

	return nil
}

// Execute runs the prepared statement. A fetch opens the result set and leaves the statement Executing; a batch
// write runs every parameter set and leaves it Exhausted. An Exhausted statement may be executed again with the
// current buffer contents.
func (s *Statement) Execute(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "execute"

	if err := s.guard(op, s.state.canTransition(StateExecuting)); err != nil {
		return err
	}

	s.diags = s.diags[:0]

	if err := s.checkBindings(); err != nil {
		return err
	}

	ctx, span := s.startSpan(ctx, op)
	defer span.End()

	s.state = StateExecuting

	var err error

	if len(s.cols) > 0 {
		err = s.open(ctx)
	} else {
		err = s.runBatch(ctx)
	}

	if err != nil {
		return s.recordError(span, err)
	}

	return nil
}

func (s *Statement) checkBindings() error {
	const op = "execute"

	if n := ksql.CountPlaceholders(s.query); n != len(s.params) {
		return localError(KindBind, op, StateCountMismatch, ErrParamCount, "%d parameters bound, %d placeholders",
			len(s.params), n)
	}

	for _, m := range []map[int]Buffer{s.params, s.cols} {
		for o := 1; o <= len(m); o++ {
			if _, ok := m[o]; !ok {
				return localError(KindBind, op, StateInvalidIndex, ErrOrdinal, "ordinals must be contiguous from 1, %d is missing", o)
			}
		}
	}

	if len(s.cols) > 0 && s.paramsetSize != 1 {
		return localError(KindBind, op, StateAttributeValue, ErrAttribute, "a fetch runs one parameter set, paramset size is %d",
			s.paramsetSize)
	}

	return nil
}

func (s *Statement) open(ctx context.Context) error {
	start := time.Now()

	rows, err := s.stmt.QueryContext(ctx, s.args(0)...)
	if err != nil {
		s.state = StateFailed

		return newError(KindRound, "execute", err)
	}

	names, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		s.state = StateFailed

		return newError(KindRound, "execute", err)
	}

	if len(names) < len(s.cols) {
		_ = rows.Close()
		s.state = StateFailed

		return localError(KindBind, "execute", StateInvalidIndex, ErrOrdinal, "%d columns bound, result has %d",
			len(s.cols), len(names))
	}

	s.rows = rows
	s.drained = false
	s.rowCount = 0
	s.vals = make([]any, len(names))
	s.dest = make([]any, len(names))

	for i := range s.vals {
		s.dest[i] = &s.vals[i]
	}

	for _, c := range s.cols {
		c.setLen(0)
	}

	s.logRound("execute", start, 0)
	s.countRound(ctx, "execute", outcomeOK)

	return nil
}

// runBatch applies the statement once per parameter set. In atomic mode all sets share one transaction and the
// first failure rolls everything back.
func (s *Statement) runBatch(ctx context.Context) error {
	start := time.Now()
	k := s.paramsetSize

	for i := range s.paramStatus {
		s.paramStatus[i] = ParamUnused
	}

	s.rowCount = 0

	var err error

	if s.atomic {
		err = s.runAtomic(ctx, k)
	} else {
		err = s.runEach(ctx, k)
	}

	if err != nil {
		s.state = StateFailed
		s.countRound(ctx, "execute", outcomeFailed)

		return err
	}

	s.state = StateExhausted

	s.logRound("execute", start, s.rowCount)
	s.countRound(ctx, "execute", outcomeOK)
	s.recordRows(ctx, "execute", s.rowCount)

	return nil
}

func (s *Statement) runAtomic(ctx context.Context, k int) error {
	tx, err := s.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return newError(KindRound, "execute", err)
	}

	stmt := tx.StmtContext(ctx, s.stmt)

	var affected int64

	for i := 0; i < k; i++ {
		n, err := execAffected(ctx, stmt, s.args(i))
		if err != nil {
			_ = tx.Rollback()

			for j := 0; j < i; j++ {
				s.paramStatus[j] = ParamUnused
			}

			s.paramStatus[i] = ParamError

			return s.rowError("execute", i, err)
		}

		affected += n
		s.paramStatus[i] = ParamSuccess
	}

	if err := tx.Commit(); err != nil {
		for i := 0; i < k; i++ {
			s.paramStatus[i] = ParamError
		}

		return newError(KindRound, "execute", err)
	}

	s.rowCount = affected

	return nil
}

func (s *Statement) runEach(ctx context.Context, k int) error {
	var (
		affected int64
		failed   int
		first    error
	)

	for i := 0; i < k; i++ {
		if err := ctx.Err(); err != nil {
			s.rowCount = affected

			return newError(KindRound, "execute", err)
		}

		n, err := execAffected(ctx, s.stmt, s.args(i))
		if err != nil {
			s.paramStatus[i] = ParamError
			failed++

			rerr := s.rowError("execute", i, err)
			if first == nil {
				first = rerr
			}

			continue
		}

		affected += n
		s.paramStatus[i] = ParamSuccess
	}

	s.rowCount = affected

	if failed == k {
		return first
	}

	return nil
}

func execAffected(ctx context.Context, stmt *sql.Stmt, args []any) (int64, error) {
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// rowError records a diagnostic for parameter set i and returns it as a round error.
func (s *Statement) rowError(op string, i int, err error) *Error {
	d := diagnose(err)
	d.Row = i + 1

	s.diags = append(s.diags, d)

	return &Error{Kind: KindRound, Op: op, Diag: d, Err: err}
}

func (s *Statement) args(i int) []any {
	args := make([]any, len(s.params))

	for o, p := range s.params {
		args[o-1] = p.value(i)
	}

	return args
}

// Fetch moves the next up to N rows into the bound column buffers. A round with Count zero means the result set
// is exhausted; further calls keep returning empty rounds. If the round fails the statement is Failed and the
// rows of the failing round are discarded. Rows with conversion problems are reported through their RowStatus and
// Diagnostics without failing the round.
func (s *Statement) Fetch(ctx context.Context) (Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "fetch"

	if s.state == StateExhausted && len(s.cols) > 0 {
		return Round{Status: []RowStatus{}}, nil
	}

	if err := s.check(op, StateExecuting); err != nil {
		return Round{}, err
	}

	s.diags = s.diags[:0]

	if err := s.wait(ctx); err != nil {
		return Round{}, s.failFetch(nil, newError(KindRound, op, err))
	}

	ctx, span := s.startSpan(ctx, op)
	defer span.End()

	start := time.Now()
	count := 0

	for !s.drained && count < s.size {
		if !s.rows.Next() {
			s.drained = true

			break
		}

		s.scanRow(count)
		count++
	}

	if s.drained {
		if err := s.rows.Err(); err != nil {
			return Round{}, s.failFetch(span, newError(KindRound, op, err))
		}
	}

	for _, c := range s.cols {
		c.setLen(count)
	}

	for i := count; i < s.size; i++ {
		s.rowStatus[i] = RowNoRow
	}

	s.rowCount += int64(count)

	outcome := outcomeOK

	if count == 0 {
		outcome = outcomeExhausted
		s.state = StateExhausted

		if err := s.rows.Close(); err != nil {
			s.diags = append(s.diags, diagnose(err))
		}

		s.rows = nil
	}

	span.SetAttributes(attribute.Int("batch.rows", count))

	s.logRound(op, start, int64(count))
	s.countRound(ctx, op, outcome)
	s.recordRows(ctx, op, int64(count))

	status := make([]RowStatus, count)
	copy(status, s.rowStatus)

	return Round{Count: count, Status: status}, nil
}

func (s *Statement) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.limiter != nil {
		return s.limiter.Wait(ctx)
	}

	return nil
}

func (s *Statement) failFetch(span trace.Span, err error) error {
	for _, c := range s.cols {
		c.setLen(0)
	}

	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}

	s.state = StateFailed
	s.countRound(context.Background(), "fetch", outcomeFailed)

	if span != nil {
		return s.recordError(span, err)
	}

	return err
}

func (s *Statement) scanRow(i int) {
	for j := range s.vals {
		s.vals[j] = nil
	}

	if err := s.rows.Scan(s.dest...); err != nil {
		for _, c := range s.cols {
			c.null(i)
		}

		d := diagnose(err)
		d.Row = i + 1

		s.diags = append(s.diags, d)
		s.rowStatus[i] = RowError

		return
	}

	status := RowSuccess

	for o := 1; o <= len(s.cols); o++ {
		truncated, err := s.cols[o].scan(i, s.vals[o-1])

		switch {
		case err != nil:
			status = RowError
			s.diags = append(s.diags, conversionDiag(err, i+1, o))
		case truncated:
			if status == RowSuccess {
				status = RowSuccessWithInfo
			}

			s.diags = append(s.diags, Diagnostic{State: StateTruncated, Message: "string data, right truncated",
				Row: i + 1, Column: o})
		}
	}

	s.rowStatus[i] = status
}

// RowCount returns the rows affected by the last batch write, or the rows fetched so far by a fetch.
func (s *Statement) RowCount() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return 0, localError(KindSequence, "row count", StateSequence, ErrClosed, "statement")
	}

	return s.rowCount, nil
}

// ParamStatus returns the status of every parameter set of the last batch write, N entries long.
func (s *Statement) ParamStatus() []ParamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ParamStatus, len(s.paramStatus))
	copy(out, s.paramStatus)

	return out
}

// Diagnostics returns the status records of the last prepare, execute or fetch call.
func (s *Statement) Diagnostics() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Diagnostic, len(s.diags))
	copy(out, s.diags)

	return out
}

// Close releases the result set and prepared statement. It is allowed in every state and calling it again is a
// no-op. Bound buffers are not touched.
func (s *Statement) Close() error {
	s.mu.Lock()

	if s.state == StateClosed {
		s.mu.Unlock()

		return nil
	}

	var first error

	if s.rows != nil {
		if err := s.rows.Close(); err != nil {
			first = newError(KindSetup, "close", err)
		}

		s.rows = nil
	}

	if s.stmt != nil {
		if err := s.stmt.Close(); err != nil && first == nil {
			first = newError(KindSetup, "close", err)
		}

		s.stmt = nil
	}

	s.state = StateClosed

	s.mu.Unlock()

	s.conn.release(s.id)

	if m := s.conn.env.metrics; m != nil {
		m.DeltaUpDownCounter(context.Background(), MetricOpenStatements, -1)
	}

	return first
}

// check returns a sequence error unless the statement is in one of allowed.
func (s *Statement) check(op string, allowed ...State) error {
	for _, st := range allowed {
		if s.state == st {
			return s.guard(op, true)
		}
	}

	return s.guard(op, false)
}

func (s *Statement) guard(op string, ok bool) error {
	if s.state == StateClosed {
		return localError(KindSequence, op, StateSequence, ErrClosed, "statement %d", s.id)
	}

	if !ok {
		return localError(KindSequence, op, StateSequence, ErrSequence, "statement %d is %s", s.id, s.state)
	}

	return nil
}

func (s *Statement) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.conn.env.tracer.Start(ctx, "batch-"+op, trace.WithAttributes(
		attribute.Int64("batch.statement", int64(s.id)),
		attribute.Int("batch.size", s.size),
	))
}

func (*Statement) recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}

func (s *Statement) logRound(op string, start time.Time, rows int64) {
	if l := s.conn.env.logger; l != nil {
		l.Debug(&Log{
			Op:        op,
			Statement: s.id,
			State:     s.state.String(),
			Rows:      rows,
			Duration:  time.Since(start).Microseconds(),
			Query:     s.query,
		})
	}
}

func (s *Statement) countRound(ctx context.Context, op, outcome string) {
	if m := s.conn.env.metrics; m != nil {
		m.IncrementCounter(ctx, MetricRounds, "op", op, "outcome", outcome)
	}
}

func (s *Statement) recordRows(ctx context.Context, op string, rows int64) {
	if m := s.conn.env.metrics; m != nil {
		m.RecordHistogram(ctx, MetricRows, float64(rows), "op", op)
	}
}
