package pool

import (
	"database/sql/driver"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/karolsteve/libzdb/zerr"
)

// DateTime is the broken-down calendar representation returned by
// ResultSet.GetDateTime — year is the literal year (not years-since-1900),
// Month is 0..11, Sec is 0..60, and UTCOffsetSeconds carries a timezone
// offset when the source value had one (spec §4.5).
type DateTime struct {
	Year             int
	Month            int
	Day              int
	Hour             int
	Min              int
	Sec              int
	HasOffset        bool
	UTCOffsetSeconds int
}

// ResultSet is a forward-only, single-pass row cursor (spec §4.5). It is
// invalidated by the next execute/executeQuery on the same Connection or
// by the Connection's return to the pool.
type ResultSet struct {
	conn      *Connection
	rows      driver.Rows
	columns   []string
	current   []driver.Value
	started   bool // true once Next has been called at least once
	hasRow    bool // true while current holds a valid row
	valid     bool
	fetchSize int
	maxRows   int
	rowCount  int
}

func newResultSet(conn *Connection, rows driver.Rows, fetchSize, maxRows int) *ResultSet {
	return &ResultSet{
		conn:      conn,
		rows:      rows,
		columns:   rows.Columns(),
		current:   make([]driver.Value, len(rows.Columns())),
		valid:     true,
		fetchSize: fetchSize,
		maxRows:   maxRows,
	}
}

func (r *ResultSet) checkValid() error {
	if !r.valid {
		return zerr.New("result set is no longer valid -- connection was returned or a new statement was executed")
	}
	return nil
}

// invalidate is called by the owning Connection when a new execute/
// executeQuery runs or the connection returns to the pool.
func (r *ResultSet) invalidate() {
	if r == nil || !r.valid {
		return
	}
	r.valid = false
	_ = r.rows.Close()
}

// Next advances the cursor and reports whether a row is now current.
// The initial state is before the first row.
func (r *ResultSet) Next() (bool, error) {
	if err := r.checkValid(); err != nil {
		return false, err
	}
	r.started = true
	if r.maxRows > 0 && r.rowCount >= r.maxRows {
		r.hasRow = false
		return false, nil
	}
	err := r.rows.Next(r.current)
	if err == io.EOF {
		r.hasRow = false
		return false, nil
	}
	if err != nil {
		r.hasRow = false
		return false, zerr.Wrap(err, "failed to fetch next row")
	}
	r.hasRow = true
	r.rowCount++
	return true, nil
}

// ColumnCount returns the number of columns in the result (>= 0).
func (r *ResultSet) ColumnCount() int {
	return len(r.columns)
}

// ColumnName returns the 1-based indexed column's name.
func (r *ResultSet) ColumnName(index int) (string, error) {
	if index < 1 || index > len(r.columns) {
		return "", zerr.New("column index %d out of range 1..%d", index, len(r.columns))
	}
	return r.columns[index-1], nil
}

func (r *ResultSet) columnIndex(name string) (int, error) {
	for i, c := range r.columns {
		if c == name {
			return i + 1, nil
		}
	}
	return 0, zerr.New("no such column %q", name)
}

func (r *ResultSet) checkPositioned() error {
	if err := r.checkValid(); err != nil {
		return err
	}
	if !r.started || !r.hasRow {
		return zerr.New("result set cursor is not positioned on a row -- call Next first")
	}
	return nil
}

func (r *ResultSet) valueAt(index int) (driver.Value, error) {
	if err := r.checkPositioned(); err != nil {
		return nil, err
	}
	if index < 1 || index > len(r.current) {
		return nil, zerr.New("column index %d out of range 1..%d", index, len(r.current))
	}
	return r.current[index-1], nil
}

// IsNull reports whether the value at index is SQL null.
func (r *ResultSet) IsNull(index int) (bool, error) {
	v, err := r.valueAt(index)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

// GetString returns the column value as a string. For SQL null it
// returns "" with a nil error — callers should check IsNull when the
// distinction between null and empty-string matters.
func (r *ResultSet) GetString(index int) (string, error) {
	v, err := r.valueAt(index)
	if err != nil {
		return "", err
	}
	return stringOf(v), nil
}

// GetStringByName is GetString looked up by column name.
func (r *ResultSet) GetStringByName(name string) (string, error) {
	i, err := r.columnIndex(name)
	if err != nil {
		return "", err
	}
	return r.GetString(i)
}

func stringOf(v driver.Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

// GetInt returns the column value coerced to int. Numeric getters return
// 0 for SQL null; use IsNull to distinguish null from a genuine zero.
// Non-numeric, non-null values fail with a SQL error.
func (r *ResultSet) GetInt(index int) (int, error) {
	n, err := r.GetLong(index)
	return int(n), err
}

// GetIntByName is GetInt looked up by column name.
func (r *ResultSet) GetIntByName(name string) (int, error) {
	n, err := r.GetLongByName(name)
	return int(n), err
}

// GetLong returns the column value coerced to int64.
func (r *ResultSet) GetLong(index int) (int64, error) {
	v, err := r.valueAt(index)
	if err != nil {
		return 0, err
	}
	return longOf(v)
}

// GetLongByName is GetLong looked up by column name.
func (r *ResultSet) GetLongByName(name string) (int64, error) {
	i, err := r.columnIndex(name)
	if err != nil {
		return 0, err
	}
	return r.GetLong(i)
}

func longOf(v driver.Value) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, zerr.New("column value %q is not a base-10 integer", t)
		}
		return n, nil
	case []byte:
		return longOf(string(t))
	case time.Time:
		return t.Unix(), nil
	default:
		return 0, zerr.New("column value of type %T is not numeric", v)
	}
}

// GetDouble returns the column value coerced to float64.
func (r *ResultSet) GetDouble(index int) (float64, error) {
	v, err := r.valueAt(index)
	if err != nil {
		return 0, err
	}
	return doubleOf(v)
}

// GetDoubleByName is GetDouble looked up by column name.
func (r *ResultSet) GetDoubleByName(name string) (float64, error) {
	i, err := r.columnIndex(name)
	if err != nil {
		return 0, err
	}
	return r.GetDouble(i)
}

func doubleOf(v driver.Value) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, zerr.New("column value %q is not numeric", t)
		}
		return f, nil
	case []byte:
		return doubleOf(string(t))
	default:
		return 0, zerr.New("column value of type %T is not numeric", v)
	}
}

// GetBlob returns the column value as a byte slice, valid only until the
// next call to Next. SQL null returns a nil slice, for which IsNull
// reports (true, nil).
func (r *ResultSet) GetBlob(index int) ([]byte, error) {
	v, err := r.valueAt(index)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return []byte(stringOf(v)), nil
	}
}

// GetBlobByName is GetBlob looked up by column name.
func (r *ResultSet) GetBlobByName(name string) ([]byte, error) {
	i, err := r.columnIndex(name)
	if err != nil {
		return nil, err
	}
	return r.GetBlob(i)
}

// GetTimestamp returns the column as seconds since epoch, UTC. Backends
// without a temporal SQL type (SQLite) store either a Unix integer or an
// ISO-8601 string; both are accepted.
func (r *ResultSet) GetTimestamp(index int) (int64, error) {
	v, err := r.valueAt(index)
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case nil:
		return 0, nil
	case time.Time:
		return t.UTC().Unix(), nil
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		parsed, err := parseISO8601(s)
		if err != nil {
			return 0, zerr.New("column value %q is neither a Unix timestamp nor ISO-8601", t)
		}
		return parsed.UTC().Unix(), nil
	case []byte:
		return r2Timestamp(string(t))
	default:
		return 0, zerr.New("column value of type %T is not a timestamp", v)
	}
}

func r2Timestamp(s string) (int64, error) {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return n, nil
	}
	t, err := parseISO8601(s)
	if err != nil {
		return 0, zerr.New("column value %q is neither a Unix timestamp nor ISO-8601", s)
	}
	return t.UTC().Unix(), nil
}

// GetTimestampByName is GetTimestamp looked up by column name.
func (r *ResultSet) GetTimestampByName(name string) (int64, error) {
	i, err := r.columnIndex(name)
	if err != nil {
		return 0, err
	}
	return r.GetTimestamp(i)
}

var iso8601Layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseISO8601(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range iso8601Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// GetDateTime returns the column as a broken-down calendar structure.
func (r *ResultSet) GetDateTime(index int) (DateTime, error) {
	v, err := r.valueAt(index)
	if err != nil {
		return DateTime{}, err
	}
	var t time.Time
	hasOffset := false
	offset := 0
	switch val := v.(type) {
	case nil:
		return DateTime{}, nil
	case time.Time:
		t = val.UTC()
		_, offsetSecs := val.Zone()
		hasOffset = offsetSecs != 0
		offset = offsetSecs
	case int64:
		t = time.Unix(val, 0).UTC()
	case string:
		parsed, err := parseISO8601(strings.TrimSpace(val))
		if err != nil {
			return DateTime{}, zerr.New("column value %q is not a parseable datetime", val)
		}
		_, offsetSecs := parsed.Zone()
		hasOffset = strings.ContainsAny(val, "Zz+") || strings.Count(val, "-") > 2
		offset = offsetSecs
		t = parsed.UTC()
	default:
		return DateTime{}, zerr.New("column value of type %T is not a datetime", v)
	}
	return DateTime{
		Year:             t.Year(),
		Month:            int(t.Month()) - 1,
		Day:              t.Day(),
		Hour:             t.Hour(),
		Min:              t.Minute(),
		Sec:              t.Second(),
		HasOffset:        hasOffset,
		UTCOffsetSeconds: offset,
	}, nil
}

// GetDateTimeByName is GetDateTime looked up by column name.
func (r *ResultSet) GetDateTimeByName(name string) (DateTime, error) {
	i, err := r.columnIndex(name)
	if err != nil {
		return DateTime{}, err
	}
	return r.GetDateTime(i)
}

// SetFetchSize hints the batch size backends that prefetch (MySQL,
// Oracle) should use for subsequent Next calls. n must be >= 1; a
// smaller n is a programmer error and panics with an Assert-kind error.
func (r *ResultSet) SetFetchSize(n int) error {
	zerr.Assertf(n >= 1, "fetch size must be >= 1, got %d", n)
	r.fetchSize = n
	if setter, ok := r.rows.(interface{ SetFetchSize(int) }); ok {
		setter.SetFetchSize(n)
	}
	return nil
}

// FetchSize returns the current prefetch batch size.
func (r *ResultSet) FetchSize() int {
	return r.fetchSize
}
