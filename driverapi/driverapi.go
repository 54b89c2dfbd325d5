// Package driverapi defines the narrow contract a SQL backend must
// implement to plug into the pool, and a small registry keyed by URL
// protocol. Each backend is a thin adapter over a real
// database/sql/driver implementation (go-sql-driver/mysql, lib/pq,
// mattn/go-sqlite3, microsoft/go-mssqldb) — the pool dials a raw
// driver.Conn directly rather than going through database/sql's own
// connection pool, since this module supplies its own.
package driverapi

import (
	"database/sql"
	"database/sql/driver"

	"github.com/karolsteve/libzdb/dburl"
	"github.com/karolsteve/libzdb/zerr"
)

// Backend opens raw driver connections for one URL protocol.
type Backend interface {
	// Protocol is the URL scheme this backend handles, e.g. "mysql".
	Protocol() string
	// Open dials a new connection for u and returns the raw driver
	// handle. The caller owns the returned Conn and is responsible for
	// closing it.
	Open(u *dburl.URL) (driver.Conn, error)
}

var registry = map[string]Backend{}

// Register adds a backend to the registry, keyed by its protocol. Later
// registrations for the same protocol replace earlier ones, so callers
// can override a built-in backend (or add support for a protocol this
// module ships no adapter for, such as Oracle) without modifying this
// package.
func Register(b Backend) {
	registry[b.Protocol()] = b
}

// Lookup returns the backend registered for protocol, if any.
func Lookup(protocol string) (Backend, bool) {
	b, ok := registry[protocol]
	return b, ok
}

// dialRaw is the shared mechanic every adapter uses: ask database/sql for
// the driver.Driver registered under driverName (sql.Open is lazy and
// never dials), then call its Open directly so the resulting connection
// is never tracked by database/sql's own pool.
func dialRaw(driverName, dsn string) (driver.Conn, error) {
	db, err := sql.Open(driverName, "")
	if err != nil {
		return nil, zerr.Wrap(err, "driver %q is not registered", driverName)
	}
	defer db.Close()
	conn, err := db.Driver().Open(dsn)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open %s connection", driverName)
	}
	return conn, nil
}
