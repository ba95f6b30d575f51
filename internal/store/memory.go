package store

import (
	"sort"
	"sync"
)

// Memory is an in-process KV. Its contents do not survive a restart.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Unavailable is a KV whose every operation fails, standing in for storage
// that is disabled, full, or could not be opened.
type Unavailable struct {
	Err error
}

func (u Unavailable) err() error {
	if u.Err != nil {
		return u.Err
	}
	return ErrUnavailable
}

func (u Unavailable) Get(string) (string, bool, error) { return "", false, u.err() }
func (u Unavailable) Set(string, string) error         { return u.err() }
func (u Unavailable) Delete(string) error              { return u.err() }
func (u Unavailable) Keys() ([]string, error)          { return nil, u.err() }
func (u Unavailable) Close() error                     { return nil }
