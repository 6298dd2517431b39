package sync

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/styrit/listsync/internal/model"
)

// ShareList uploads the list, creates (or reuses) a public edit link for it
// and records the share on the list. It returns the share URL.
func (e *Engine) ShareList(ctx context.Context, l *model.List) (string, error) {
	if !e.provider.SyncSupport {
		return "", errors.New("storage provider does not support sharing")
	}
	loggedIn, err := e.provider.Auth.Login(ctx, false)
	if err != nil {
		return "", err
	}
	if !loggedIn {
		return "", errors.New("login cancelled")
	}

	e.mu.Lock()
	data, err := json.Marshal(l.ToRecord())
	name := l.FileName()
	e.mu.Unlock()
	if err != nil {
		return "", err
	}

	if _, err := e.provider.Service.Upload(ctx, name, data); err != nil {
		return "", err
	}
	link, err := e.provider.Service.CreateShareLink(ctx, name)
	if err != nil {
		return "", err
	}
	meta, err := e.provider.Service.SharedMetadata(ctx, link)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	l.SetShared(&model.ShareInfo{URL: link, UserID: meta.OwnerID, UserName: meta.OwnerName})
	l.SetHasUserChanges(true)
	e.mu.Unlock()
	e.saver.ScheduleSave()
	e.setHasLocalChanges(true)
	return link, nil
}

// UnshareList revokes the share link of the list and removes the share from
// the local state. Revocation failures of an already vanished permission
// are ignored.
func (e *Engine) UnshareList(ctx context.Context, l *model.List) error {
	e.mu.Lock()
	info := l.Shared()
	name := l.FileName()
	e.mu.Unlock()
	if info == nil {
		return nil
	}

	loggedIn, err := e.provider.Auth.Login(ctx, false)
	if err != nil {
		return err
	}
	if loggedIn {
		perms, err := e.provider.Service.Permissions(ctx, name)
		if err != nil {
			return err
		}
		for _, p := range perms {
			if p.Link != info.URL {
				continue
			}
			if err := e.provider.Service.RemoveShareLink(ctx, name, p.ID); err != nil {
				return err
			}
		}
	}

	e.mu.Lock()
	l.SetShared(nil)
	l.SetHasUserChanges(true)
	e.mu.Unlock()
	e.saver.ScheduleSave()
	e.setHasLocalChanges(true)
	return nil
}
