package pool

import (
	"context"
	"database/sql/driver"
	"time"

	"github.com/karolsteve/libzdb/zerr"
)

// PreparedStatement is a parsed, parameterized statement bound to its
// owning Connection. Parameters are 1-based and positional. A statement
// prepared with N placeholders requires exactly N bound values before
// Execute or ExecuteQuery; bind_values either binds all of them or none
// (spec §4.4).
type PreparedStatement struct {
	conn       *Connection
	stmt       driver.Stmt
	numInput   int
	args       []driver.Value
	bound      []bool
	lastResult *ResultSet
	closed     bool
}

func newPreparedStatement(conn *Connection, stmt driver.Stmt) *PreparedStatement {
	n := stmt.NumInput()
	if n < 0 {
		n = 0
	}
	return &PreparedStatement{
		conn:     conn,
		stmt:     stmt,
		numInput: n,
		args:     make([]driver.Value, n),
		bound:    make([]bool, n),
	}
}

func (s *PreparedStatement) checkOpen() {
	zerr.Assertf(!s.closed, "use of a closed prepared statement")
}

// ParameterCount returns the number of bindable placeholders.
func (s *PreparedStatement) ParameterCount() int {
	return s.numInput
}

func (s *PreparedStatement) checkIndex(index int) error {
	if index < 1 || index > s.numInput {
		return zerr.New("parameter index %d out of range 1..%d", index, s.numInput)
	}
	return nil
}

func (s *PreparedStatement) bind(index int, v driver.Value) error {
	s.checkOpen()
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.args[index-1] = v
	s.bound[index-1] = true
	s.invalidateResult()
	return nil
}

// BindInt binds a signed integer at a 1-based index.
func (s *PreparedStatement) BindInt(index int, v int) error { return s.bind(index, int64(v)) }

// BindLong binds a 64-bit integer at a 1-based index.
func (s *PreparedStatement) BindLong(index int, v int64) error { return s.bind(index, v) }

// BindDouble binds a float64 at a 1-based index.
func (s *PreparedStatement) BindDouble(index int, v float64) error { return s.bind(index, v) }

// BindString binds a string at a 1-based index.
func (s *PreparedStatement) BindString(index int, v string) error { return s.bind(index, v) }

// BindBlob binds a byte slice at a 1-based index. An empty byte sequence
// binds SQL null, not a zero-length blob.
func (s *PreparedStatement) BindBlob(index int, v []byte) error {
	if len(v) == 0 {
		return s.bind(index, nil)
	}
	return s.bind(index, v)
}

// BindTimestamp binds a Unix timestamp (seconds since epoch, UTC) at a
// 1-based index.
func (s *PreparedStatement) BindTimestamp(index int, v int64) error {
	return s.bind(index, time.Unix(v, 0).UTC())
}

// BindNull binds SQL null at a 1-based index.
func (s *PreparedStatement) BindNull(index int) error { return s.bind(index, nil) }

// BindValues binds every parameter atomically: on a count mismatch no
// parameter is bound and an error is returned (spec §4.4, "bind_values
// either succeeds entirely or fails without side effects").
func (s *PreparedStatement) BindValues(values ...any) error {
	s.checkOpen()
	if len(values) != s.numInput {
		return zerr.New("bind_values: expected %d parameters, got %d", s.numInput, len(values))
	}
	converted := make([]driver.Value, s.numInput)
	for i, v := range values {
		dv, err := driver.DefaultParameterConverter.ConvertValue(v)
		if err != nil {
			return zerr.Wrap(err, "bind_values: parameter %d has an unsupported type", i+1)
		}
		converted[i] = dv
	}
	copy(s.args, converted)
	for i := range s.bound {
		s.bound[i] = true
	}
	s.invalidateResult()
	return nil
}

func (s *PreparedStatement) checkFullyBound() error {
	for i, b := range s.bound {
		if !b {
			return zerr.New("parameter %d was never bound", i+1)
		}
	}
	return nil
}

func (s *PreparedStatement) invalidateResult() {
	if s.lastResult != nil {
		s.lastResult.invalidate()
		s.lastResult = nil
	}
}

func namedValues(args []driver.Value) []driver.NamedValue {
	nv := make([]driver.NamedValue, len(args))
	for i, v := range args {
		nv[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return nv
}

// Execute runs an INSERT/UPDATE/DELETE/DDL statement and reports the
// affected row count. It invalidates any ResultSet from a prior
// ExecuteQuery on this statement.
func (s *PreparedStatement) Execute(ctx context.Context) (int64, error) {
	s.checkOpen()
	if err := s.checkFullyBound(); err != nil {
		return 0, err
	}
	s.invalidateResult()

	var result driver.Result
	var err error
	if execer, ok := s.stmt.(driver.StmtExecContext); ok {
		result, err = execer.ExecContext(ctx, namedValues(s.args))
	} else {
		result, err = s.stmt.Exec(s.args) //nolint:staticcheck // fallback for drivers without context support
	}
	if err != nil {
		return 0, zerr.Wrap(err, "statement execution failed")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, zerr.Wrap(err, "driver did not report rows affected")
	}
	s.conn.noteExecuted(result)
	return n, nil
}

// ExecuteQuery runs a SELECT and returns the resulting cursor. The
// returned ResultSet is invalidated by the statement's next Execute,
// ExecuteQuery, or Close call, and by the owning Connection's return to
// the pool.
func (s *PreparedStatement) ExecuteQuery(ctx context.Context) (*ResultSet, error) {
	s.checkOpen()
	if err := s.checkFullyBound(); err != nil {
		return nil, err
	}
	s.invalidateResult()

	var rows driver.Rows
	var err error
	if queryer, ok := s.stmt.(driver.StmtQueryContext); ok {
		rows, err = queryer.QueryContext(ctx, namedValues(s.args))
	} else {
		rows, err = s.stmt.Query(s.args) //nolint:staticcheck // fallback for drivers without context support
	}
	if err != nil {
		return nil, zerr.Wrap(err, "statement query failed")
	}
	rs := newResultSet(s.conn, rows, s.conn.fetchSize, s.conn.maxRows)
	s.lastResult = rs
	s.conn.trackResultSet(rs)
	return rs, nil
}

// Close releases the underlying driver statement. Safe to call more than
// once.
func (s *PreparedStatement) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.invalidateResult()
	if err := s.stmt.Close(); err != nil {
		return zerr.Wrap(err, "failed to close prepared statement")
	}
	return nil
}
