package driverapi

import (
	"database/sql/driver"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/karolsteve/libzdb/dburl"
)

func init() {
	Register(mysqlBackend{})
}

type mysqlBackend struct{}

func (mysqlBackend) Protocol() string { return "mysql" }

func (b mysqlBackend) Open(u *dburl.URL) (driver.Conn, error) {
	return dialRaw("mysql", b.dsn(u))
}

func (b mysqlBackend) dsn(u *dburl.URL) string {
	cfg := mysqldriver.NewConfig()
	if user, ok := u.User(); ok {
		cfg.User = user
	}
	if pass, ok := u.Password(); ok {
		cfg.Passwd = pass
	}
	cfg.Net = "tcp"
	host := u.Host()
	port := u.Port()
	if port < 0 {
		port = 3306
	}
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	if path := u.Path(); len(path) > 0 {
		cfg.DBName = path[1:]
	}
	if v, ok := u.Parameter("use-ssl"); ok && (v == "true" || v == "1") {
		cfg.TLSConfig = "true"
	}
	cfg.Params = make(map[string]string)
	for _, name := range u.ParameterNames() {
		switch name {
		case "user", "password", "use-ssl", "fetch-size":
			continue
		}
		v, _ := u.Parameter(name)
		cfg.Params[name] = v
	}
	return cfg.FormatDSN()
}
