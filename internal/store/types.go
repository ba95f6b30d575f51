// Package store provides the key/value persistence substrate for kvpedit.
//
// Every access is best-effort. Callers are expected to treat errors as
// "value absent" on read and to decide explicitly whether a failed write
// matters.
package store

import "errors"

// ErrUnavailable is returned by a store that cannot be used at all.
var ErrUnavailable = errors.New("store unavailable")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("store closed")

// KV is a string-keyed store with independent per-entry reads and writes.
type KV interface {
	// Get returns the value stored under key; ok is false when absent.
	Get(key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// Keys lists stored keys in lexical order.
	Keys() ([]string, error)
	Close() error
}
