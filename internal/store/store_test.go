package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvpedit/internal/logging"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "prefs.db"), 1000)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()

	_, ok, err := kv.Get("kvp_sanskritMode")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set("kvp_sanskritMode", "iast"))
	require.NoError(t, kv.Set("kvp_anusvaraStyle", "ṁ"))
	require.NoError(t, kv.Set("kvp_sanskritMode", "phonetics"))

	v, ok, err := kv.Get("kvp_sanskritMode")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "phonetics", v)

	// Empty string is a value, not absence.
	require.NoError(t, kv.Set("kvp_originalText", ""))
	v, ok, err = kv.Get("kvp_originalText")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", v)

	keys, err := kv.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"kvp_anusvaraStyle", "kvp_originalText", "kvp_sanskritMode"}, keys)

	require.NoError(t, kv.Delete("kvp_anusvaraStyle"))
	require.NoError(t, kv.Delete("missing"))
	_, ok, err = kv.Get("kvp_anusvaraStyle")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	exerciseKV(t, openTestSQLite(t))
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.db")

	s, err := OpenSQLite(path, 1000)
	require.NoError(t, err)
	require.NoError(t, s.Set("kvp_originalText", "ཀ་ཁ་\n\n"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, 1000)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get("kvp_originalText")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ཀ་ཁ་\n\n", v)
}

func TestClosedStores(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Set("k", "v"), ErrClosed)

	s := &SQLite{}
	_, _, err := s.Get("k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestSQLiteAfterClose(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "prefs.db"), 1000)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", "v"))
	require.NoError(t, s.Close())

	_, _, err = s.Get("k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set("k", "w"), ErrClosed)
	assert.ErrorIs(t, s.Delete("k"), ErrClosed)
	_, err = s.Keys()
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestUnavailable(t *testing.T) {
	var kv KV = Unavailable{}
	_, ok, err := kv.Get("k")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, kv.Set("k", "v"), ErrUnavailable)

	custom := errors.New("quota exceeded")
	assert.ErrorIs(t, Unavailable{Err: custom}.Set("k", "v"), custom)
}

func TestOpen(t *testing.T) {
	log := logging.Discard()

	kv, err := Open(Options{Type: "memory"}, log)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, kv)

	kv, err = Open(Options{Type: "sqlite", Path: filepath.Join(t.TempDir(), "p.db"), BusyTimeoutMs: 100}, log)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, kv)
	kv.Close()

	kv, err = Open(Options{Type: "none"}, log)
	require.NoError(t, err)
	assert.ErrorIs(t, kv.Set("k", "v"), ErrUnavailable)
}

func TestOpenDegradesToUnavailable(t *testing.T) {
	// A regular file where the parent directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	kv, err := Open(Options{Type: "sqlite", Path: filepath.Join(blocker, "prefs.db")}, logging.Discard())
	assert.Error(t, err)
	require.NotNil(t, kv)
	assert.ErrorIs(t, kv.Set("k", "v"), ErrUnavailable)

	kv, err = Open(Options{Type: "redis"}, nil)
	assert.Error(t, err)
	assert.ErrorIs(t, kv.Set("k", "v"), ErrUnavailable)
}
