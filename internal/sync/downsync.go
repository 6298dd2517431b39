package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/drive"
	"github.com/styrit/listsync/internal/model"
)

// DownSync runs one pull cycle: remote changes from the user's own drive
// (when data sync is enabled and a silent login succeeds) followed by the
// shared lists, which sync unauthenticated and therefore always.
func (e *Engine) DownSync(ctx context.Context) {
	e.mu.Lock()
	e.lastDownSync = time.Now()
	syncData := e.settings.SyncData
	e.mu.Unlock()

	if e.provider.SyncSupport && syncData {
		loggedIn, err := e.provider.Auth.Login(ctx, true)
		switch {
		case err != nil:
			e.logger.Warn("down sync login failed", zap.Error(err))
			e.notify(noticeFromError(err))
		case !loggedIn:
			e.logger.Info("down sync skipped, not logged in")
			e.notify(Notice{
				Title: "Login required",
				Text:  "Please log in to synchronize your data.",
			})
		default:
			if _, err := e.pullCloud(ctx, true); err != nil {
				e.logger.Warn("down sync failed", zap.Error(err))
				e.notify(noticeFromError(err))
			}
		}
	}

	if err := e.downSyncShared(ctx); err != nil {
		e.logger.Warn("shared down sync failed", zap.Error(err))
		e.notify(noticeFromError(err))
	}
}

// pullCloud pulls the delta feed and applies it. An invalidated delta token
// clears the cursor and retries the whole pull exactly once. It returns the
// ids of the lists that were created or overwritten.
func (e *Engine) pullCloud(ctx context.Context, allowDeletions bool) (map[string]struct{}, error) {
	applied, err := e.downSyncCloud(ctx, allowDeletions)
	if drive.IsResyncRequired(err) {
		e.logger.Info("delta token no longer valid, resyncing", zap.String("provider", e.provider.ID))
		e.mu.Lock()
		e.settings.SetDeltaToken(e.provider.ID, "")
		e.mu.Unlock()
		applied, err = e.downSyncCloud(ctx, allowDeletions)
	}
	return applied, err
}

func (e *Engine) downSyncCloud(ctx context.Context, allowDeletions bool) (map[string]struct{}, error) {
	e.mu.Lock()
	token := e.settings.DeltaToken(e.provider.ID)
	e.mu.Unlock()

	entries, next, err := e.provider.Service.Changes(ctx, token)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.settings.SetDeltaToken(e.provider.ID, next)
	e.mu.Unlock()
	if err := e.saver.SaveSettings(ctx); err != nil {
		e.logger.Warn("persisting delta token failed", zap.Error(err))
	}

	applied := map[string]struct{}{}
	var names []string
	removed := false
	for _, entry := range entries {
		if !entry.File || !strings.HasSuffix(entry.Name, model.FileExtension) {
			continue
		}
		if entry.Deleted {
			id := strings.TrimSuffix(entry.Name, model.FileExtension)
			e.mu.Lock()
			if l := e.collection.Find(id); l != nil {
				if allowDeletions {
					e.collection.Remove(id)
					removed = true
					e.logger.Info("list deleted remotely", zap.String("list", l.Name()))
				} else {
					e.logger.Debug("remote deletion ignored", zap.String("list", l.Name()))
				}
			}
			e.mu.Unlock()
			continue
		}
		names = append(names, entry.Name)
	}

	recs := make([]*model.ListRecord, len(names))
	errs := make([]error, len(names))
	var wg gosync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			data, err := e.provider.Service.Download(ctx, name, drive.FormatJSON)
			if err != nil {
				errs[i] = err
				return
			}
			rec := &model.ListRecord{}
			if err := json.Unmarshal(data, rec); err != nil {
				errs[i] = fmt.Errorf("decoding %s: %w", name, err)
				return
			}
			recs[i] = rec
		}(i, name)
	}
	wg.Wait()

	var failed []error
	e.mu.Lock()
	for i, rec := range recs {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		if e.applyRecord(rec) {
			applied[rec.ID] = struct{}{}
		}
	}
	e.mu.Unlock()

	if removed || len(applied) > 0 {
		e.saver.ScheduleSave()
	}
	return applied, errors.Join(failed...)
}

// applyRecord merges one remote record into the collection. The remote
// version only wins when it is strictly newer; on a tie the local version
// stands. Caller holds mu.
func (e *Engine) applyRecord(rec *model.ListRecord) bool {
	existing := e.collection.Find(rec.ID)
	if existing == nil {
		e.collection.AddOrUpdate(rec)
		return true
	}
	if !rec.EffectiveModified().After(existing.EffectiveModified()) {
		e.logger.Debug("local version is up to date", zap.String("list", existing.Name()))
		return false
	}
	existing.ApplyRemote(rec)
	return true
}

// downSyncShared refreshes every shared list through its share link. A
// vanished share is unshared locally and reported as a notice without
// failing the cycle; other failures are aggregated into the returned error.
func (e *Engine) downSyncShared(ctx context.Context) error {
	type target struct {
		list *model.List
		url  string
	}
	e.mu.Lock()
	var targets []target
	for _, l := range e.collection.Lists() {
		if s := l.Shared(); s != nil {
			targets = append(targets, target{list: l, url: s.URL})
		}
	}
	e.mu.Unlock()
	if len(targets) == 0 {
		return nil
	}

	recs := make([]*model.ListRecord, len(targets))
	errs := make([]error, len(targets))
	var wg gosync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			data, err := e.provider.Service.DownloadShared(ctx, t.url, drive.FormatJSON)
			if err != nil {
				errs[i] = err
				return
			}
			rec := &model.ListRecord{}
			if err := json.Unmarshal(data, rec); err != nil {
				errs[i] = fmt.Errorf("decoding shared list: %w", err)
				return
			}
			recs[i] = rec
		}(i, t)
	}
	wg.Wait()

	var failed []error
	changed := false
	e.mu.Lock()
	for i, t := range targets {
		switch {
		case errs[i] == nil:
			if recs[i].EffectiveModified().After(t.list.EffectiveModified()) {
				t.list.ApplyRemote(recs[i])
				changed = true
			}
		case drive.IsNotFound(errs[i]):
			t.list.SetShared(nil)
			changed = true
			e.logger.Info("shared list no longer accessible", zap.String("list", t.list.Name()))
			e.notify(Notice{
				Title: "Shared list",
				Text:  fmt.Sprintf("The shared list %q is no longer accessible and has been unshared.", t.list.Name()),
			})
		case drive.IsKind(errs[i], drive.KindUnsupported):
			// Provider cannot resolve share links; nothing to refresh.
		default:
			failed = append(failed, errs[i])
		}
	}
	e.mu.Unlock()

	if changed {
		e.saver.ScheduleSave()
	}
	return errors.Join(failed...)
}
