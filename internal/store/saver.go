package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/history"
	"github.com/styrit/listsync/internal/model"
)

// Source provides point-in-time snapshots of the state to persist. The
// component that owns the state mutex implements it, so the saver never
// reads live lists or settings around that mutex from its timer goroutine.
type Source interface {
	Records() []*model.ListRecord
	SettingsSnapshot() *model.Settings
}

// Saver debounces persistence of the in-memory state. It implements
// model.Notifier so that every tracked mutation (and every applied remote
// update) schedules a write after a short quiet period, coalescing bursts
// of edits into one disk write.
type Saver struct {
	store   *SQLiteStore
	history *history.History
	quiet   time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	timer  *time.Timer
	source Source
}

// NewSaver creates a debounced saver. A state source must be installed via
// SetSource before anything is saved; the sync engine registers itself
// there. The history has a single owner and is read directly.
func NewSaver(s *SQLiteStore, hist *history.History, quiet time.Duration, logger *zap.Logger) *Saver {
	return &Saver{
		store:   s,
		history: hist,
		quiet:   quiet,
		logger:  logger,
	}
}

// SetSource installs the snapshot provider for lists and settings.
func (sv *Saver) SetSource(src Source) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.source = src
}

func (sv *Saver) getSource() (Source, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.source == nil {
		return nil, errors.New("saver has no state source")
	}
	return sv.source, nil
}

func (sv *Saver) ListChanged(*model.List) { sv.ScheduleSave() }
func (sv *Saver) ItemChanged(*model.Item) { sv.ScheduleSave() }
func (sv *Saver) ListUpdated(*model.List) { sv.ScheduleSave() }

// ScheduleSave (re)arms the save timer. Each call restarts the quiet
// period.
func (sv *Saver) ScheduleSave() {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if sv.timer != nil {
		sv.timer.Stop()
	}
	sv.timer = time.AfterFunc(sv.quiet, func() {
		if err := sv.SaveLists(context.Background()); err != nil {
			sv.logger.Error("scheduled save failed", zap.Error(err))
		}
	})
}

// SaveLists persists a snapshot of the list collection immediately.
func (sv *Saver) SaveLists(ctx context.Context) error {
	src, err := sv.getSource()
	if err != nil {
		return err
	}
	return sv.store.SaveLists(ctx, src.Records())
}

// SaveSettings persists a snapshot of the settings immediately.
func (sv *Saver) SaveSettings(ctx context.Context) error {
	src, err := sv.getSource()
	if err != nil {
		return err
	}
	return sv.store.SaveSettings(ctx, src.SettingsSnapshot())
}

// SaveHistory persists the item-name history immediately.
func (sv *Saver) SaveHistory(ctx context.Context) error {
	return sv.store.SaveHistory(ctx, sv.history.Names())
}

// Flush cancels any pending timer and persists everything, e.g. when the
// app goes to background or shuts down.
func (sv *Saver) Flush(ctx context.Context) error {
	sv.mu.Lock()
	if sv.timer != nil {
		sv.timer.Stop()
		sv.timer = nil
	}
	sv.mu.Unlock()

	if err := sv.SaveLists(ctx); err != nil {
		return err
	}
	if err := sv.SaveSettings(ctx); err != nil {
		return err
	}
	return sv.SaveHistory(ctx)
}
