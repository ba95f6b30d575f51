// Package watcher follows a source text file and reports each settled change
// of its content.
package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/blake3"

	"kvpedit/internal/debounce"
)

// DefaultDebounce is the quiet period applied to bursts of file events.
const DefaultDebounce = 100 * time.Millisecond

// Event carries the content of the watched file after a change.
type Event struct {
	Path      string
	Content   string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

// Watcher monitors a single file. Editors that save by writing a temporary
// file and renaming it over the original are handled by watching the parent
// directory.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
	sched     *debounce.Scheduler

	events chan Event
	errors chan error

	mu       sync.Mutex
	lastHash [32]byte
	seen     bool
	stopped  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for path. A non-positive debounce selects
// DefaultDebounce.
func New(path string, debounceDelay time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if debounceDelay <= 0 {
		debounceDelay = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		path:      abs,
		debounce:  debounceDelay,
		sched:     debounce.New(),
		events:    make(chan Event, 16),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Events returns the channel of content changes. It is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of read and watch errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start begins watching. If the file already exists its current content is
// delivered as the first event.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.eventLoop()

	if _, err := os.Stat(w.path); err == nil {
		w.emit()
	}
	return nil
}

// Stop shuts the watcher down and closes its channels.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.done)
	w.sched.Stop()
	err := w.fsWatcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	w.stopped = true
	close(w.events)
	close(w.errors)
	w.mu.Unlock()
	return err
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.sched.Schedule("change", w.debounce, w.emit)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

// emit reads the file and publishes its content if it differs from the last
// published content.
func (w *Watcher) emit() {
	content, err := os.ReadFile(w.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.report(err)
		}
		return
	}
	hash := Hash(content)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || (w.seen && hash == w.lastHash) {
		return
	}
	w.lastHash = hash
	w.seen = true

	select {
	case w.events <- Event{
		Path:      w.path,
		Content:   string(content),
		Hash:      hash,
		Size:      int64(len(content)),
		Timestamp: time.Now(),
	}:
	case <-w.done:
	}
}

func (w *Watcher) report(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Hash returns the BLAKE3 digest used to detect content changes.
func Hash(content []byte) [32]byte {
	return blake3.Sum256(content)
}
