// Package debounce provides a keyed trailing-edge debouncer.
//
// Scheduling a task under a key cancels whatever was scheduled under that key
// before, so for a burst of triggers only the last one runs, one quiet period
// after the burst ends.
package debounce

import (
	"sync"
	"time"
)

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler runs at most one pending task per key.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	stopped bool
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{entries: make(map[string]*entry)}
}

// Schedule arms fn to run after delay under key, cancelling any task already
// pending under the same key. It returns false if the scheduler is stopped.
//
// fn runs on its own goroutine. A task whose timer fired concurrently with a
// newer Schedule or Cancel call is suppressed.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if e, ok := s.entries[key]; ok {
		e.timer.Stop()
	}

	s.gen++
	gen := s.gen
	e := &entry{gen: gen}
	e.timer = time.AfterFunc(delay, func() {
		if s.claim(key, gen) {
			fn()
		}
	})
	s.entries[key] = e
	return true
}

// claim removes the entry for key if it is still generation gen.
func (s *Scheduler) claim(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.gen != gen || s.stopped {
		return false
	}
	delete(s.entries, key)
	return true
}

// Cancel drops the task pending under key. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, key)
	return true
}

// Pending reports whether a task is waiting under key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Stop cancels every pending task. Later Schedule calls are refused.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, key)
	}
}
