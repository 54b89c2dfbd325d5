package pool

import (
	"context"
	"database/sql/driver"
	"time"

	"github.com/karolsteve/libzdb/logger"
	"github.com/karolsteve/libzdb/zerr"
)

// Connection is a single pooled backend connection (spec §4.3). It wraps
// a raw database/sql/driver.Conn obtained directly from a backend
// adapter, outside of database/sql's own pooling.
//
// A Connection is not safe for concurrent use: the pool hands out at
// most one goroutine's worth of work per connection at a time.
type Connection struct {
	pool   *ConnectionPool
	raw    driver.Conn
	logger logger.Logger

	available  bool
	lastAccess time.Time
	slowLogAt  time.Duration

	inTransaction bool
	txType        TransactionType
	tx            driver.Tx
	rawTx         bool

	queryTimeout time.Duration
	maxRows      int
	fetchSize    int

	lastRowID   int64
	rowsChanged int64

	liveStatement *PreparedStatement
	liveResult    *ResultSet

	closed bool
}

func newConnection(p *ConnectionPool, raw driver.Conn) *Connection {
	return &Connection{
		pool:       p,
		raw:        raw,
		logger:     p.logger,
		available:  true,
		lastAccess: time.Now(),
		slowLogAt:  p.slowOpThreshold,
		fetchSize:  p.url.FetchSizeOf(100),
	}
}

func (c *Connection) timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	if c.slowLogAt > 0 && d >= c.slowLogAt {
		c.logger.Warn("slow operation: %s took %v", op, d)
	}
	c.logger.Op(op, d, "")
	return err
}

func (c *Connection) touch() {
	c.lastAccess = time.Now()
}

func (c *Connection) checkOpen() {
	zerr.Assertf(!c.closed, "use of a closed connection")
}

// LastAccessed reports when this connection was last used successfully
// or returned to the pool. The reaper compares this against
// ConnectionTimeout.
func (c *Connection) LastAccessed() time.Time { return c.lastAccess }

// SetQueryTimeout bounds how long a single Execute/ExecuteQuery may run.
// Zero means no timeout.
func (c *Connection) SetQueryTimeout(d time.Duration) { c.queryTimeout = d }

// QueryTimeout returns the current per-query timeout.
func (c *Connection) QueryTimeout() time.Duration { return c.queryTimeout }

// SetMaxRows caps how many rows a subsequent ExecuteQuery's ResultSet
// will yield. Zero means unlimited.
func (c *Connection) SetMaxRows(n int) { c.maxRows = n }

// MaxRows returns the current row cap.
func (c *Connection) MaxRows() int { return c.maxRows }

// SetFetchSize sets the default prefetch batch size new ResultSets on
// this connection are created with. A size below 1 is a programmer
// error and panics with an Assert-kind error.
func (c *Connection) SetFetchSize(n int) error {
	zerr.Assertf(n >= 1, "fetch size must be >= 1, got %d", n)
	c.fetchSize = n
	return nil
}

// FetchSize returns the current default prefetch batch size.
func (c *Connection) FetchSize() int { return c.fetchSize }

// LastRowID returns the autoincrement id from the most recent Execute,
// if the backend reports one.
func (c *Connection) LastRowID() int64 { return c.lastRowID }

// RowsChanged returns the affected row count from the most recent
// Execute. It resets to zero after a Commit.
func (c *Connection) RowsChanged() int64 { return c.rowsChanged }

func (c *Connection) noteExecuted(result driver.Result) {
	if id, err := result.LastInsertId(); err == nil {
		c.lastRowID = id
	}
	if n, err := result.RowsAffected(); err == nil {
		c.rowsChanged = n
	}
}

func (c *Connection) trackResultSet(rs *ResultSet) {
	if c.liveResult != nil {
		c.liveResult.invalidate()
	}
	c.liveResult = rs
}

func (c *Connection) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.queryTimeout)
}

// Execute runs sql and reports the affected row count. With no args it
// execs the text directly against the driver; with args, it prepares
// internally, binds them positionally, and executes once -- the caller
// never has to manage the intermediate PreparedStatement (spec §4.3).
// Either way it invalidates the connection's live ResultSet.
func (c *Connection) Execute(ctx context.Context, sql string, args ...any) (n int64, err error) {
	c.trackResultSet(nil)
	if len(args) > 0 {
		return c.executeWithArgs(ctx, sql, args)
	}
	c.checkOpen()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	err = c.timed("execute", func() error {
		var result driver.Result
		var e error
		if execer, ok := c.raw.(driver.ExecerContext); ok {
			result, e = execer.ExecContext(ctx, sql, nil)
		} else if execer, ok := c.raw.(driver.Execer); ok { //nolint:staticcheck
			result, e = execer.Exec(sql, nil)
		} else {
			return zerr.New("driver does not support direct Exec -- use Prepare")
		}
		if e != nil {
			return zerr.Wrap(e, "execute failed: %s", sql)
		}
		c.noteExecuted(result)
		n = c.rowsChanged
		return nil
	})
	if err == nil {
		c.touch()
	}
	return n, err
}

func (c *Connection) executeWithArgs(ctx context.Context, sql string, args []any) (int64, error) {
	stmt, err := c.Prepare(ctx, sql)
	if err != nil {
		return 0, err
	}
	if err := stmt.BindValues(args...); err != nil {
		_ = stmt.Close()
		return 0, err
	}
	n, err := stmt.Execute(ctx)
	_ = stmt.Close()
	return n, err
}

// ExecuteQuery runs sql and returns the resulting cursor. With no args it
// queries the text directly against the driver; with args, it prepares
// internally, binds them positionally, and executes once, matching
// Execute's args handling (spec §4.3).
func (c *Connection) ExecuteQuery(ctx context.Context, sql string, args ...any) (rs *ResultSet, err error) {
	if len(args) > 0 {
		return c.executeQueryWithArgs(ctx, sql, args)
	}
	c.checkOpen()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	err = c.timed("executeQuery", func() error {
		var rows driver.Rows
		var e error
		if queryer, ok := c.raw.(driver.QueryerContext); ok {
			rows, e = queryer.QueryContext(ctx, sql, nil)
		} else if queryer, ok := c.raw.(driver.Queryer); ok { //nolint:staticcheck
			rows, e = queryer.Query(sql, nil)
		} else {
			return zerr.New("driver does not support direct Query -- use Prepare")
		}
		if e != nil {
			return zerr.Wrap(e, "query failed: %s", sql)
		}
		rs = newResultSet(c, rows, c.fetchSize, c.maxRows)
		c.trackResultSet(rs)
		return nil
	})
	if err == nil {
		c.touch()
	}
	return rs, err
}

func (c *Connection) executeQueryWithArgs(ctx context.Context, sql string, args []any) (*ResultSet, error) {
	stmt, err := c.Prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	if err := stmt.BindValues(args...); err != nil {
		_ = stmt.Close()
		return nil, err
	}
	return stmt.ExecuteQuery(ctx)
}

// Prepare parses sql into a reusable PreparedStatement bound to this
// connection.
func (c *Connection) Prepare(ctx context.Context, sql string) (ps *PreparedStatement, err error) {
	c.checkOpen()
	err = c.timed("prepare", func() error {
		var stmt driver.Stmt
		var e error
		if preparer, ok := c.raw.(driver.ConnPrepareContext); ok {
			stmt, e = preparer.PrepareContext(ctx, sql)
		} else {
			stmt, e = c.raw.Prepare(sql)
		}
		if e != nil {
			return zerr.Wrap(e, "prepare failed: %s", sql)
		}
		if c.liveStatement != nil {
			_ = c.liveStatement.Close()
		}
		ps = newPreparedStatement(c, stmt)
		c.liveStatement = ps
		return nil
	})
	if err == nil {
		c.touch()
	}
	return ps, err
}

// BeginTransaction opens a transaction of the given type. Beginning a
// transaction while one is already open is a programmer error (spec
// §4.3) and panics with an Assert-kind error.
//
// TxImmediate and TxExclusive are SQLite-specific locking modes with no
// slot in driver.IsolationLevel, so they bypass ConnBeginTx entirely and
// issue the corresponding raw "BEGIN IMMEDIATE"/"BEGIN EXCLUSIVE" against
// the connection directly, mirroring what the mattn/go-sqlite3 driver's
// own _txlock DSN parameter does at the SQL level. Commit/Rollback notice
// this (rawTx) and close out the transaction with raw "COMMIT"/"ROLLBACK"
// instead of a driver.Tx handle.
func (c *Connection) BeginTransaction(ctx context.Context, txType TransactionType) error {
	c.checkOpen()
	zerr.Assertf(!c.inTransaction, "connection already has an open transaction")
	return c.timed("beginTransaction", func() error {
		if beginStmt := rawBeginStatement(txType); beginStmt != "" {
			if e := c.execDirect(ctx, beginStmt); e != nil {
				return zerr.Wrap(e, "begin transaction failed")
			}
			c.inTransaction = true
			c.txType = txType
			c.rawTx = true
			return nil
		}
		var tx driver.Tx
		var e error
		if beginner, ok := c.raw.(driver.ConnBeginTx); ok {
			opts := driver.TxOptions{Isolation: isolationFor(txType)}
			tx, e = beginner.BeginTx(ctx, opts)
		} else {
			tx, e = c.raw.Begin() //nolint:staticcheck
		}
		if e != nil {
			return zerr.Wrap(e, "begin transaction failed")
		}
		c.tx = tx
		c.inTransaction = true
		c.txType = txType
		return nil
	})
}

// execDirect runs sql against the raw driver connection outside of the
// Execute/timed machinery, for internal bookkeeping statements (raw
// BEGIN/COMMIT/ROLLBACK) that aren't themselves user operations.
func (c *Connection) execDirect(ctx context.Context, sql string) error {
	if execer, ok := c.raw.(driver.ExecerContext); ok {
		_, err := execer.ExecContext(ctx, sql, nil)
		return err
	}
	if execer, ok := c.raw.(driver.Execer); ok { //nolint:staticcheck
		_, err := execer.Exec(sql, nil)
		return err
	}
	return zerr.New("driver does not support direct Exec -- use Prepare")
}

func rawBeginStatement(t TransactionType) string {
	switch t {
	case TxImmediate:
		return "BEGIN IMMEDIATE"
	case TxExclusive:
		return "BEGIN EXCLUSIVE"
	default:
		return ""
	}
}

func isolationFor(t TransactionType) driver.IsolationLevel {
	switch t {
	case TxReadUncommitted:
		return driver.IsolationLevel(1)
	case TxReadCommitted:
		return driver.IsolationLevel(2)
	case TxRepeatableRead:
		return driver.IsolationLevel(4)
	case TxSerializable:
		return driver.IsolationLevel(6)
	default:
		return driver.IsolationLevel(0)
	}
}

// InTransaction reports whether a transaction is currently open.
func (c *Connection) InTransaction() bool { return c.inTransaction }

// Commit commits the current transaction. rowsChanged is reset to zero
// afterward, matching the source's convention that it reflects the most
// recent statement, not the whole transaction.
func (c *Connection) Commit() error {
	c.checkOpen()
	zerr.Assertf(c.inTransaction, "commit called with no open transaction")
	return c.endTransaction("commit", true)
}

// Rollback rolls back the current transaction.
func (c *Connection) Rollback() error {
	c.checkOpen()
	zerr.Assertf(c.inTransaction, "rollback called with no open transaction")
	return c.endTransaction("rollback", false)
}

func (c *Connection) endTransaction(op string, commit bool) error {
	return c.timed(op, func() error {
		tx := c.tx
		rawTx := c.rawTx
		c.tx = nil
		c.rawTx = false
		c.inTransaction = false
		c.rowsChanged = 0
		if rawTx {
			stmt := "ROLLBACK"
			if commit {
				stmt = "COMMIT"
			}
			if e := c.execDirect(context.Background(), stmt); e != nil {
				return zerr.Wrap(e, "%s failed", op)
			}
			return nil
		}
		if tx == nil {
			return nil
		}
		var e error
		if commit {
			e = tx.Commit()
		} else {
			e = tx.Rollback()
		}
		if e != nil {
			return zerr.Wrap(e, "%s failed", op)
		}
		return nil
	})
}

// Clear drops any live prepared statement or result set and rolls back
// an open transaction, returning the connection to a clean reusable
// state. The pool calls this when a connection is returned.
func (c *Connection) Clear() {
	if c.liveResult != nil {
		c.liveResult.invalidate()
		c.liveResult = nil
	}
	if c.liveStatement != nil {
		_ = c.liveStatement.Close()
		c.liveStatement = nil
	}
	if c.inTransaction {
		if err := c.rollbackRaw(); err != nil {
			c.logger.Warn("rollback on return-to-pool failed: %v", err)
		}
		c.inTransaction = false
	}
	c.rowsChanged = 0
}

func (c *Connection) rollbackRaw() error {
	tx := c.tx
	rawTx := c.rawTx
	c.tx = nil
	c.rawTx = false
	if rawTx {
		return c.execDirect(context.Background(), "ROLLBACK")
	}
	if tx == nil {
		return nil
	}
	return tx.Rollback()
}

// Ping verifies the connection is still live, per database/sql/driver's
// optional Pinger interface. Connections whose driver doesn't implement
// Pinger are assumed live.
func (c *Connection) Ping(ctx context.Context) error {
	if pinger, ok := c.raw.(driver.Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			return zerr.Wrap(err, "ping failed")
		}
	}
	return nil
}

// Close returns the connection to its owning pool -- it is a synonym for
// pool.ReturnConnection(con), matching the source's documented
// Connection_close, which rolls back any open transaction, clears live
// statements and result sets, and makes the connection available for
// reuse rather than tearing it down. It does not close the underlying
// driver handle; only the pool does that, when GetConnection evicts a
// connection that failed its ping, when the reaper removes it, or when
// Stop drains the pool.
func (c *Connection) Close() error {
	c.pool.ReturnConnection(c)
	return nil
}

// destroy closes the underlying driver connection for good. Used
// internally by the pool when a connection is evicted (failed ping,
// reaped as idle-timed-out, or dropped during drain) rather than
// returned to circulation. Safe to call more than once.
func (c *Connection) destroy() error {
	if c.closed {
		return nil
	}
	c.Clear()
	c.closed = true
	if err := c.raw.Close(); err != nil {
		return zerr.Wrap(err, "failed to close connection")
	}
	return nil
}

// Available reports whether the pool considers this connection free to
// be handed out.
func (c *Connection) Available() bool { return c.available }
