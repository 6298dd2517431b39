package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// markerName is the sidecar file the store touches after every completed
// write. Other running instances watch it instead of the database file
// itself, which churns under WAL.
const markerName = "listsync.changed"

// SetMarkerPath enables cross-instance change signaling. dir is shared by
// all instances operating on the same database.
func (s *SQLiteStore) SetMarkerPath(dir string) {
	s.mu.Lock()
	s.markerPath = filepath.Join(dir, markerName)
	s.mu.Unlock()
}

// touchMarker bumps the marker file's timestamp. Failures only get logged;
// signaling sibling instances is best effort.
func (s *SQLiteStore) touchMarker() {
	s.mu.Lock()
	path := s.markerPath
	s.mu.Unlock()
	if path == "" {
		return
	}

	now := time.Now()
	s.mu.Lock()
	s.lastSave = now
	s.mu.Unlock()

	if err := os.Chtimes(path, now, now); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug("touching change marker failed", zap.Error(err))
			return
		}
		f, err := os.Create(path)
		if err != nil {
			s.logger.Debug("creating change marker failed", zap.Error(err))
			return
		}
		f.Close()
	}
}

// recentlySaved reports whether this instance wrote the store within the
// suppression window, so its own marker events can be ignored.
func (s *SQLiteStore) recentlySaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSave) < 2*time.Second
}

// Watcher observes the change marker and reports writes made by other
// instances of the app. The store's own writes are filtered out by a
// short suppression window after each local save.
type Watcher struct {
	store   *SQLiteStore
	watcher *fsnotify.Watcher
	changed chan struct{}
	done    chan struct{}
	logger  *zap.Logger
}

// NewWatcher starts watching the marker directory. The returned channel
// receives one signal per external change; signals are dropped when the
// consumer lags.
func NewWatcher(s *SQLiteStore, dir string, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		store:   s,
		watcher: fw,
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go w.run()
	return w, nil
}

// Changes delivers one signal per externally observed store change.
func (w *Watcher) Changes() <-chan struct{} { return w.changed }

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != markerName {
				continue
			}
			if w.store.recentlySaved() {
				// our own write
				continue
			}
			select {
			case w.changed <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("store watcher error", zap.Error(err))
		}
	}
}
