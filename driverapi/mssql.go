package driverapi

import (
	"database/sql/driver"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/karolsteve/libzdb/dburl"
)

func init() {
	Register(mssqlBackend{name: "mssql"})
	Register(mssqlBackend{name: "sqlserver"})
}

// mssqlBackend accepts both the "mssql" and "sqlserver" protocol
// spellings the ecosystem uses interchangeably.
type mssqlBackend struct{ name string }

func (b mssqlBackend) Protocol() string { return b.name }

func (b mssqlBackend) Open(u *dburl.URL) (driver.Conn, error) {
	return dialRaw("sqlserver", b.dsn(u))
}

func (b mssqlBackend) dsn(u *dburl.URL) string {
	out := url.URL{Scheme: "sqlserver", Host: u.Host()}
	if p := u.Port(); p >= 0 {
		out.Host = fmt.Sprintf("%s:%d", u.Host(), p)
	}
	if user, ok := u.User(); ok {
		if pass, ok := u.Password(); ok {
			out.User = url.UserPassword(user, pass)
		} else {
			out.User = url.User(user)
		}
	}
	q := url.Values{}
	if path := u.Path(); len(path) > 1 {
		q.Set("database", path[1:])
	}
	for _, name := range u.ParameterNames() {
		switch name {
		case "user", "password", "fetch-size":
			continue
		case "use-ssl":
			v, _ := u.Parameter(name)
			if v == "true" || v == "1" {
				q.Set("encrypt", "true")
			}
			continue
		case "sysdba":
			// Oracle-specific privilege, not applicable to SQL Server;
			// ignored rather than rejected so a shared URL works across
			// backends the caller tries in turn.
			continue
		}
		v, _ := u.Parameter(name)
		q.Set(name, v)
	}
	out.RawQuery = q.Encode()
	return out.String()
}
