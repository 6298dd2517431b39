// Package sync orchestrates the bidirectional synchronization of the local
// list collection with the active storage provider: periodic down-sync of
// remote changes, debounced up-sync of local edits, and the unauthenticated
// sync channel for shared lists.
package sync

import (
	"context"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/drive"
	"github.com/styrit/listsync/internal/model"
	"github.com/styrit/listsync/internal/store"
)

// opTimeout bounds a single background sync cycle.
const opTimeout = 60 * time.Second

const (
	defaultPollInterval = 30 * time.Second
	defaultDebounce     = 10 * time.Second
)

// Engine owns the collection and settings and serializes all access to
// them. It implements model.Notifier so that local edits flow directly into
// the up-sync schedule.
type Engine struct {
	provider   *drive.Provider
	collection *model.Collection
	settings   *model.Settings
	store      *store.SQLiteStore
	saver      *store.Saver
	logger     *zap.Logger

	pollInterval time.Duration
	debounce     time.Duration

	mu              gosync.Mutex
	hasLocalChanges bool
	lastDownSync    time.Time
	visible         bool
	upTimer         *time.Timer
	running         bool

	triggerCh  chan struct{}
	stopCh     chan struct{}
	noticeCh   chan Notice
	externalCh <-chan struct{}
}

// New creates an engine for the given provider. The collection must report
// its changes to the engine (alongside the saver) for scheduling to work.
func New(provider *drive.Provider, collection *model.Collection, settings *model.Settings, st *store.SQLiteStore, saver *store.Saver, cfg model.SyncConfig, logger *zap.Logger) *Engine {
	poll := time.Duration(cfg.DownSyncPollSec) * time.Second
	if poll <= 0 {
		poll = defaultPollInterval
	}
	debounce := time.Duration(cfg.UpSyncDebounceSec) * time.Second
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	e := &Engine{
		provider:     provider,
		collection:   collection,
		settings:     settings,
		store:        st,
		saver:        saver,
		logger:       logger,
		pollInterval: poll,
		debounce:     debounce,
		visible:      true,
		triggerCh:    make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		noticeCh:     make(chan Notice, 16),
	}
	// The engine owns the state mutex, so the saver reads through it.
	saver.SetSource(e)
	return e
}

// SetExternalChanges wires the cross-instance change feed of the store
// watcher. Must be called before Start.
func (e *Engine) SetExternalChanges(ch <-chan struct{}) {
	e.externalCh = ch
}

// Start launches the background scheduling loop and triggers an immediate
// down-sync.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	go e.run()
	e.TriggerDownSync()
}

// Stop halts the scheduling loop and cancels any pending up-sync.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	close(e.stopCh)
	e.running = false
	if e.upTimer != nil {
		e.upTimer.Stop()
		e.upTimer = nil
	}
}

// TriggerDownSync requests an immediate down-sync cycle without blocking.
func (e *Engine) TriggerDownSync() {
	select {
	case e.triggerCh <- struct{}{}:
	default:
	}
}

func (e *Engine) run() {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if e.isVisible() {
				e.downSyncCycle()
			}
		case <-e.triggerCh:
			e.downSyncCycle()
			ticker.Reset(e.pollInterval)
		case <-e.externalCh:
			e.reloadFromStore()
		}
	}
}

func (e *Engine) downSyncCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	e.DownSync(ctx)
}

func (e *Engine) isVisible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible
}

// SetVisible informs the engine about UI visibility. A hidden app stops
// polling and opportunistically flushes pending local changes; becoming
// visible again re-arms both directions.
func (e *Engine) SetVisible(visible bool) {
	e.mu.Lock()
	e.visible = visible
	dirty := e.hasLocalChanges
	stale := time.Since(e.lastDownSync) >= e.pollInterval
	e.mu.Unlock()

	if visible {
		if stale {
			e.TriggerDownSync()
		}
		if dirty {
			e.ScheduleUpSync(true)
		}
		return
	}

	e.cancelUpSync()
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if dirty {
		if err := e.UpSync(ctx, true); err != nil {
			e.logger.Warn("up sync on hide failed", zap.Error(err))
		}
	}
	if err := e.saver.Flush(ctx); err != nil {
		e.logger.Warn("flush on hide failed", zap.Error(err))
	}
}

// ListChanged implements model.Notifier for direct list edits.
func (e *Engine) ListChanged(l *model.List) { e.markChanged(l) }

// ItemChanged implements model.Notifier for direct item edits.
func (e *Engine) ItemChanged(it *model.Item) {
	if it == nil {
		return
	}
	e.markChanged(it.List())
}

// ListUpdated implements model.Notifier. Remote applies originate from the
// engine itself and never feed back into the up-sync schedule.
func (e *Engine) ListUpdated(*model.List) {}

func (e *Engine) markChanged(l *model.List) {
	if l == nil {
		return
	}
	e.mu.Lock()
	relevant := e.settings.SyncData || l.Shared() != nil
	e.mu.Unlock()
	if !relevant {
		return
	}
	e.setHasLocalChanges(true)

	// Warm up the session in the background so the debounced upload can
	// run silently.
	if e.provider.SyncSupport && !e.provider.Auth.LoggedIn() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()
			if _, err := e.provider.Auth.Login(ctx, true); err != nil {
				e.logger.Debug("silent login failed", zap.Error(err))
			}
		}()
	}
}

func (e *Engine) setHasLocalChanges(v bool) {
	e.mu.Lock()
	e.hasLocalChanges = v
	e.mu.Unlock()
	if v {
		e.ScheduleUpSync(true)
	}
}

// ScheduleUpSync (re)arms the trailing debounce before uploading local
// changes. Every call restarts the quiet period.
func (e *Engine) ScheduleUpSync(silent bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.upTimer != nil {
		e.upTimer.Stop()
	}
	e.upTimer = time.AfterFunc(e.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := e.UpSync(ctx, silent); err != nil {
			e.logger.Warn("up sync failed", zap.Error(err))
			e.notify(noticeFromError(err))
		}
	})
}

func (e *Engine) cancelUpSync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.upTimer != nil {
		e.upTimer.Stop()
		e.upTimer = nil
	}
}

// Records returns a consistent snapshot of all lists in wire shape.
func (e *Engine) Records() []*model.ListRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collection.ToRecords()
}

// SettingsSnapshot returns a copy of the settings for persistence.
func (e *Engine) SettingsSnapshot() *model.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone()
}

// reloadFromStore picks up state written by another instance of the app.
// The data was already synchronized by whoever wrote it, so it must not be
// treated as local changes.
func (e *Engine) reloadFromStore() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	recs, ok, err := e.store.LoadLists(ctx)
	if err != nil {
		e.logger.Warn("reload lists failed", zap.Error(err))
		return
	}
	settings, err := e.store.LoadSettings(ctx)
	if err != nil {
		e.logger.Warn("reload settings failed", zap.Error(err))
		return
	}

	e.mu.Lock()
	if ok {
		e.collection.SetFromRecords(recs)
	}
	*e.settings = *settings
	e.mu.Unlock()
	e.logger.Debug("reloaded state written by another instance")
}
