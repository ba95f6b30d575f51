//go:build purego_sqlite

// Pure Go SQLite driver, selected with -tags purego_sqlite for CGO_ENABLED=0
// builds.
package store

import (
	"fmt"

	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"
	driverType = "purego"
)

func dsn(path string, busyTimeoutMs int) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, busyTimeoutMs)
}
