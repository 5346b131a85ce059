package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ErrPoolTimeout is returned when no pooled connection became available within PoolTimeout.
var ErrPoolTimeout = errors.New("timed out waiting for a pooled connection")

// ErrClosed is returned by a Manager after Close.
var ErrClosed = errors.New("connection manager is closed")

// MySQL server error numbers worth retrying.
var mysqlTransient = map[uint16]bool{
	1040: true, // too many connections
	1053: true, // server shutdown in progress
	1205: true, // lock wait timeout
	1213: true, // deadlock
}

// PostgreSQL SQLSTATEs worth retrying besides classes 08 and 53.
var pqTransient = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// ClickHouse server exception codes worth retrying.
var clickhouseTransient = map[int32]bool{
	159: true, // TIMEOUT_EXCEEDED
	202: true, // TOO_MANY_SIMULTANEOUS_QUERIES
	209: true, // SOCKET_TIMEOUT
	210: true, // NETWORK_ERROR
}

// IsTransient reports whether err is a connection or capacity failure that may
// succeed when retried. Malformed queries and constraint failures are not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrPoolTimeout) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlTransient[myErr.Number]
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		return class == "08" || class == "53" || pqTransient[pqErr.Code]
	}
	var chErr *clickhouse.Exception
	if errors.As(err, &chErr) {
		return clickhouseTransient[chErr.Code]
	}
	return false
}
