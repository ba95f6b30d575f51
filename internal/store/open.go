package store

import (
	"fmt"
	"strings"

	"kvpedit/internal/logging"
)

// Options selects and configures a backend.
type Options struct {
	// Type is "sqlite", "memory" or "none".
	Type string
	// Path is the database file for sqlite.
	Path string
	// BusyTimeoutMs is the SQLite busy timeout.
	BusyTimeoutMs int
}

// Open returns the configured backend. A backend that cannot be opened
// degrades to Unavailable: the session keeps running on defaults and nothing
// is persisted. The returned error reports the degradation and may be ignored.
func Open(opts Options, log *logging.Logger) (KV, error) {
	switch strings.ToLower(opts.Type) {
	case "memory":
		return NewMemory(), nil
	case "none":
		return Unavailable{}, nil
	case "", "sqlite":
		s, err := OpenSQLite(opts.Path, opts.BusyTimeoutMs)
		if err != nil {
			if log != nil {
				log.Warn("preference store unavailable, continuing without persistence",
					"path", opts.Path, "driver", driverType, "error", err)
			}
			return Unavailable{Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}, err
		}
		return s, nil
	default:
		err := fmt.Errorf("unknown storage type %q", opts.Type)
		return Unavailable{Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}, err
	}
}
