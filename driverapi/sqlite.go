package driverapi

import (
	"database/sql/driver"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/karolsteve/libzdb/dburl"
)

func init() {
	Register(sqliteBackend{})
}

type sqliteBackend struct{}

func (sqliteBackend) Protocol() string { return "sqlite" }

func (b sqliteBackend) Open(u *dburl.URL) (driver.Conn, error) {
	return dialRaw("sqlite3", b.dsn(u))
}

// pragmaAliases maps the spec's backend-neutral parameter spelling to the
// mattn/go-sqlite3 driver's underscore-prefixed pragma query keys.
var pragmaAliases = map[string]string{
	"synchronous":  "_synchronous",
	"journal_mode": "_journal_mode",
}

func (b sqliteBackend) dsn(u *dburl.URL) string {
	path := u.Path()
	if path == "" {
		path = u.Host()
	}
	// sqlite3's special ":memory:" and "" (temporary on-disk) names are
	// never real filesystem paths, so the URL's leading '/' is stripped
	// rather than treated as an absolute-path root.
	if path == "/:memory:" || path == "/" {
		path = strings.TrimPrefix(path, "/")
	}
	var q []string
	for _, name := range u.ParameterNames() {
		switch name {
		case "user", "password", "use-ssl", "fetch-size":
			continue
		}
		v, _ := u.Parameter(name)
		key := name
		if alias, ok := pragmaAliases[name]; ok {
			key = alias
		}
		q = append(q, fmt.Sprintf("%s=%s", key, v))
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + strings.Join(q, "&")
}
