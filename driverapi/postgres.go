package driverapi

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/karolsteve/libzdb/dburl"
)

func init() {
	Register(postgresBackend{})
	Register(postgresAliasBackend{})
}

type postgresBackend struct{}

func (postgresBackend) Protocol() string { return "postgres" }

func (b postgresBackend) Open(u *dburl.URL) (driver.Conn, error) {
	return dialRaw("postgres", buildPostgresDSN(u))
}

// postgresAliasBackend registers the "postgresql" spelling spec §6.1 and
// the wider ecosystem also accept, without duplicating the adapter.
type postgresAliasBackend struct{ postgresBackend }

func (postgresAliasBackend) Protocol() string { return "postgresql" }

func buildPostgresDSN(u *dburl.URL) string {
	var parts []string
	add := func(key, value string) {
		if value == "" {
			return
		}
		parts = append(parts, fmt.Sprintf("%s='%s'", key, strings.ReplaceAll(strings.ReplaceAll(value, `\`, `\\`), `'`, `\'`)))
	}
	if user, ok := u.User(); ok {
		add("user", user)
	}
	if pass, ok := u.Password(); ok {
		add("password", pass)
	}
	add("host", u.Host())
	if p := u.Port(); p >= 0 {
		add("port", strconv.Itoa(p))
	}
	if path := u.Path(); len(path) > 1 {
		add("dbname", path[1:])
	}
	sslmode := "disable"
	if v, ok := u.Parameter("use-ssl"); ok && (v == "true" || v == "1") {
		sslmode = "require"
	}
	add("sslmode", sslmode)
	for _, name := range u.ParameterNames() {
		switch name {
		case "user", "password", "use-ssl", "fetch-size":
			continue
		}
		v, _ := u.Parameter(name)
		add(name, v)
	}
	return strings.Join(parts, " ")
}
