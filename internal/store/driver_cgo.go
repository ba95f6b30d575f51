//go:build !purego_sqlite

package store

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const (
	driverName = "sqlite3"
	driverType = "cgo"
)

func dsn(path string, busyTimeoutMs int) string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMs)
}
