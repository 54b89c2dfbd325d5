package pool

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/karolsteve/libzdb/dburl"
	"github.com/karolsteve/libzdb/driverapi"
)

// fakeConn is a minimal driver.Conn double that lets a test flip a
// backend live/dead, or count pings, without a real network database
// (spec §8 scenario 6 -- killing the database externally isn't
// reproducible in a unit test, so this stands in for it).
type fakeConn struct {
	alive *bool
	pings *int
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("fakeConn: Prepare not supported")
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) { //nolint:staticcheck
	return nil, errors.New("fakeConn: Begin not supported")
}

func (c *fakeConn) Ping(ctx context.Context) error {
	if c.pings != nil {
		*c.pings++
	}
	if c.alive != nil && !*c.alive {
		return errors.New("fakeConn: connection is dead")
	}
	return nil
}

// fakeBackend registers under its own protocol so a test can dial a
// pool against it without colliding with the real SQLite/MySQL/etc.
// backends also registered in this package's tests.
type fakeBackend struct {
	protocol string
	alive    *bool
	pings    *int
}

func (b fakeBackend) Protocol() string { return b.protocol }

func (b fakeBackend) Open(u *dburl.URL) (driver.Conn, error) {
	return &fakeConn{alive: b.alive, pings: b.pings}, nil
}

func registerFakeBackend(protocol string, alive *bool, pings *int) {
	driverapi.Register(fakeBackend{protocol: protocol, alive: alive, pings: pings})
}
