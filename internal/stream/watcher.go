package stream

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/corefork/internal/errors"
	"github.com/Iron-Ham/corefork/internal/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of events on the
// same file to settle before reopening it.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reopens sinks whose files were renamed or removed under them, so an
// external logrotate does not leave a worker writing into an unlinked file.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *logging.Logger
	reporter errors.Reporter
	debounce time.Duration

	mu     sync.Mutex
	sets   map[*SinkSet]struct{}
	dirs   map[string]int
	onOpen func(set *SinkSet, path string)

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a Watcher. Call Start to begin processing events.
func NewWatcher(logger *logging.Logger, reporter errors.Reporter) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	if reporter == nil {
		reporter = errors.Discard
	}
	return &Watcher{
		watcher:  fw,
		logger:   logger,
		reporter: reporter,
		debounce: DefaultDebounce,
		sets:     make(map[*SinkSet]struct{}),
		dirs:     make(map[string]int),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// SetReopenCallback sets a function called after a sink was reopened.
func (w *Watcher) SetReopenCallback(cb func(set *SinkSet, path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onOpen = cb
}

// Add starts watching the directories of every sink in set.
func (w *Watcher) Add(set *SinkSet) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.sets[set]; ok {
		return nil
	}
	var added []string
	for _, path := range set.Paths().List() {
		dir := filepath.Dir(path)
		if w.dirs[dir] == 0 {
			if err := w.watcher.Add(dir); err != nil {
				for _, d := range added {
					w.release(d)
				}
				return err
			}
		}
		w.dirs[dir]++
		added = append(added, dir)
	}
	w.sets[set] = struct{}{}
	return nil
}

// Remove stops watching set.
func (w *Watcher) Remove(set *SinkSet) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.sets[set]; !ok {
		return
	}
	delete(w.sets, set)
	for _, path := range set.Paths().List() {
		w.release(filepath.Dir(path))
	}
}

// release drops one reference to dir. The caller must hold the mutex.
func (w *Watcher) release(dir string) {
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		_ = w.watcher.Remove(dir)
	}
}

// Start begins processing filesystem events.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops the watcher and waits for its loop to exit. It is safe to call
// more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
}

// Done is closed when the event loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) watchLoop() {
	defer close(w.doneCh)

	timer := time.NewTimer(0)
	<-timer.C

	pending := make(map[string]struct{})

	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[filepath.Clean(ev.Name)] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			for path := range pending {
				w.reopen(path)
			}
			pending = make(map[string]struct{})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("sink watcher error", "error", err)
		}
	}
}

// reopen reopens path in every watched set that owns it.
func (w *Watcher) reopen(path string) {
	w.mu.Lock()
	sets := make([]*SinkSet, 0, len(w.sets))
	for set := range w.sets {
		sets = append(sets, set)
	}
	cb := w.onOpen
	w.mu.Unlock()

	for _, set := range sets {
		owned, err := set.Reopen(path)
		if !owned {
			continue
		}
		if err != nil {
			w.reporter.Report(err)
			continue
		}
		w.logger.Info("reopened sink after external rotation", "path", path)
		if cb != nil {
			cb(set, path)
		}
	}
}
