package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

type dialect struct {
	defaultPort int
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// driver accepts read-only transaction options
	readOnlyTx bool
	dsn        func(c Config, password string) string
}

var dialects map[Driver]dialect

// Populated in init to break the initialization cycle through Config.port.
func init() {
	dialects = map[Driver]dialect{
		MySQL:      {defaultPort: 3306, readOnlyTx: true, dsn: mysqlDSN},
		Postgres:   {defaultPort: 5432, numbered: true, readOnlyTx: true, dsn: postgresDSN},
		ClickHouse: {defaultPort: 9000, dsn: clickhouseDSN},
	}
}

// DSN renders the connection string for c using password.
func (c Config) DSN(password string) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	return dialects[c.Driver].dsn(c, password), nil
}

func mysqlDSN(c Config, password string) string {
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.port()))
	mc.DBName = c.Database
	mc.Timeout = c.ConnectTimeout
	mc.ParseTime = true
	mc.AllowCleartextPasswords = c.Auth == AuthAAD
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range c.Params {
		mc.Params[k] = v
	}
	return mc.FormatDSN()
}

func postgresDSN(c Config, password string) string {
	q := url.Values{}
	q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	for k, v := range c.Params {
		q.Set(k, v)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.port())),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func clickhouseDSN(c Config, password string) string {
	q := url.Values{}
	q.Set("dial_timeout", c.ConnectTimeout.String())
	for k, v := range c.Params {
		q.Set(k, v)
	}
	u := url.URL{
		Scheme:   "clickhouse",
		User:     url.UserPassword(c.Username, password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.port())),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Redact hides the password in a DSN for logging.
func Redact(dsn, password string) string {
	if password == "" {
		return dsn
	}
	for _, p := range []string{password, url.UserPassword("", password).String()[1:]} {
		dsn = strings.ReplaceAll(dsn, p, "xxxxx")
	}
	return dsn
}

// rebind rewrites ? placeholders to $n for drivers that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
