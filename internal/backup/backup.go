// Package backup uploads periodic snapshots of all lists to the user's
// storage provider.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/drive"
	"github.com/styrit/listsync/internal/model"
	"github.com/styrit/listsync/internal/store"
)

// interval is the minimum time between two automatic backups.
const interval = 4 * 24 * time.Hour

// FileExtension is the suffix of backup snapshot files.
const FileExtension = ".backup"

// Service writes dated snapshots of the whole collection.
type Service struct {
	provider *drive.Provider
	settings *model.Settings
	saver    *store.Saver
	logger   *zap.Logger
}

func New(provider *drive.Provider, settings *model.Settings, saver *store.Saver, logger *zap.Logger) *Service {
	return &Service{provider: provider, settings: settings, saver: saver, logger: logger}
}

// Due reports whether an automatic backup should run now.
func (s *Service) Due() bool {
	if !s.settings.AutoBackup || !s.provider.SyncSupport {
		return false
	}
	return time.Since(s.settings.LastAutoBackupDate) >= interval
}

// AutoBackup runs a backup when one is due. The backup date advances only
// after a successful upload, so a failed attempt is retried on the next
// occasion.
func (s *Service) AutoBackup(ctx context.Context, recs []*model.ListRecord) error {
	if !s.Due() {
		return nil
	}
	if err := s.Backup(ctx, recs); err != nil {
		return err
	}
	s.settings.LastAutoBackupDate = time.Now()
	if err := s.saver.SaveSettings(ctx); err != nil {
		s.logger.Warn("persisting backup date failed", zap.Error(err))
	}
	return nil
}

// Backup uploads a snapshot of the given records as a dated file.
func (s *Service) Backup(ctx context.Context, recs []*model.ListRecord) error {
	if !s.provider.SyncSupport {
		return errors.New("storage provider does not support backups")
	}
	loggedIn, err := s.provider.Auth.Login(ctx, true)
	if err != nil {
		return err
	}
	if !loggedIn {
		return errors.New("login required for backup")
	}

	data, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("lists_%s%s", time.Now().Format("2006-01-02"), FileExtension)
	if _, err := s.provider.Service.Upload(ctx, name, data); err != nil {
		return fmt.Errorf("uploading backup: %w", err)
	}
	s.logger.Info("backup uploaded", zap.String("file", name), zap.Int("lists", len(recs)))
	return nil
}

// Snapshots lists the backup files present in the application folder,
// newest first by name.
func (s *Service) Snapshots(ctx context.Context) ([]drive.Entry, error) {
	entries, err := s.provider.Service.Children(ctx)
	if err != nil {
		return nil, err
	}
	var out []drive.Entry
	for _, entry := range entries {
		if entry.File && strings.HasSuffix(entry.Name, FileExtension) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Restore downloads a snapshot file and returns its records.
func (s *Service) Restore(ctx context.Context, name string) ([]*model.ListRecord, error) {
	data, err := s.provider.Service.Download(ctx, name, drive.FormatJSON)
	if err != nil {
		return nil, err
	}
	var recs []*model.ListRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decoding backup %s: %w", name, err)
	}
	return recs, nil
}
