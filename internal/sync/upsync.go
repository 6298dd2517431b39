package sync

import (
	"context"
	"encoding/json"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/model"
)

// localChanges returns the lists that need uploading. With sinceUpSync set,
// a list also qualifies when its effective modification time postdates the
// last successful up-sync even if its dirty flag was already cleared. With
// data sync disabled, only shared lists are eligible. Caller holds mu.
func (e *Engine) localChanges(sinceUpSync bool) []*model.List {
	var out []*model.List
	for _, l := range e.collection.Lists() {
		changed := l.HasUserChanges()
		if !changed && sinceUpSync {
			changed = l.EffectiveModified().After(e.settings.LastUpSyncDate)
		}
		if !changed {
			continue
		}
		if !e.settings.SyncData && l.Shared() == nil {
			continue
		}
		out = append(out, l)
	}
	return out
}

// UpSync uploads all pending local changes. With nothing to upload it
// succeeds without touching authentication. A failed silent login is
// reported as a notice and does not fail the call; an interactive login
// that does not complete does.
func (e *Engine) UpSync(ctx context.Context, silent bool) error {
	if !e.provider.SyncSupport {
		return nil
	}
	e.cancelUpSync()

	e.mu.Lock()
	candidates := e.localChanges(false)
	e.mu.Unlock()
	if len(candidates) == 0 {
		return nil
	}

	loggedIn, err := e.provider.Auth.Login(ctx, silent)
	if err != nil {
		return err
	}
	if !loggedIn {
		if silent {
			e.notify(Notice{
				Title: "Sync",
				Text:  "Your changes could not be uploaded because you are not logged in.",
			})
			return nil
		}
		return errors.New("login required to upload changes")
	}

	return e.upload(ctx, candidates)
}

// upload pushes the given lists concurrently. Shared lists go through their
// share link, all others to the user's own drive (when data sync is
// enabled). Each list's dirty flag is cleared only after its own upload
// succeeded; the last up-sync time advances only when every upload did.
func (e *Engine) upload(ctx context.Context, lists []*model.List) error {
	type job struct {
		list     *model.List
		name     string
		shareURL string
		data     []byte
		skip     bool
	}

	e.mu.Lock()
	e.hasLocalChanges = false
	syncData := e.settings.SyncData
	jobs := make([]job, 0, len(lists))
	for _, l := range lists {
		data, err := json.Marshal(l.ToRecord())
		if err != nil {
			e.mu.Unlock()
			return err
		}
		j := job{list: l, name: l.FileName(), data: data}
		if s := l.Shared(); s != nil {
			j.shareURL = s.URL
		} else if !syncData {
			j.skip = true
		}
		jobs = append(jobs, j)
	}
	e.mu.Unlock()

	errs := make([]error, len(jobs))
	var wg gosync.WaitGroup
	for i := range jobs {
		if jobs[i].skip {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j := jobs[i]
			if j.shareURL != "" {
				errs[i] = e.provider.Service.UploadShared(ctx, j.shareURL, j.data)
				return
			}
			_, errs[i] = e.provider.Service.Upload(ctx, j.name, j.data)
		}(i)
	}
	wg.Wait()

	var failed []error
	e.mu.Lock()
	for i, j := range jobs {
		if j.skip {
			continue
		}
		if errs[i] != nil {
			failed = append(failed, errs[i])
			e.hasLocalChanges = true
			continue
		}
		j.list.SetHasUserChanges(false)
	}
	if len(failed) == 0 {
		e.settings.LastUpSyncDate = time.Now()
	}
	e.mu.Unlock()

	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	if err := e.saver.SaveSettings(ctx); err != nil {
		e.logger.Warn("persisting up sync time failed", zap.Error(err))
	}
	e.saver.ScheduleSave()
	e.logger.Info("up sync completed", zap.Int("lists", len(jobs)))
	return nil
}

// Sync runs a full two-way pass: interactive login, a pull with remote
// deletions disallowed, then an upload of everything modified since the
// last up-sync that the pull did not just overwrite.
func (e *Engine) Sync(ctx context.Context) error {
	if !e.provider.SyncSupport {
		return errors.New("storage provider does not support sync")
	}

	loggedIn, err := e.provider.Auth.Login(ctx, false)
	if err != nil {
		return err
	}
	if !loggedIn {
		return errors.New("login cancelled")
	}

	e.mu.Lock()
	e.lastDownSync = time.Now()
	e.mu.Unlock()

	applied, err := e.pullCloud(ctx, false)
	if err != nil {
		return err
	}

	e.mu.Lock()
	candidates := e.localChanges(true)
	pending := candidates[:0:0]
	for _, l := range candidates {
		if _, ok := applied[l.ID()]; ok {
			continue
		}
		pending = append(pending, l)
	}
	e.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}
	return e.upload(ctx, pending)
}
