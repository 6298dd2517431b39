package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/styrit/listsync/internal/model"
)

// historyLimit bounds the persisted item-name history.
const historyLimit = 100

// LoadLists reads the persisted list collection. A missing document
// returns (nil, false, nil) so the caller can seed defaults.
func (s *SQLiteStore) LoadLists(ctx context.Context) ([]*model.ListRecord, bool, error) {
	data, ok, err := s.Load(ctx, KeyLists)
	if err != nil || !ok {
		return nil, ok, err
	}
	var recs []*model.ListRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, true, fmt.Errorf("decoding lists: %w", err)
	}
	return recs, true, nil
}

// SaveLists persists the full list collection.
func (s *SQLiteStore) SaveLists(ctx context.Context, recs []*model.ListRecord) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encoding lists: %w", err)
	}
	return s.Save(ctx, KeyLists, data)
}

// LoadSettings reads the persisted settings, or defaults when absent.
func (s *SQLiteStore) LoadSettings(ctx context.Context) (*model.Settings, error) {
	data, ok, err := s.Load(ctx, KeySettings)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewSettings(), nil
	}
	settings := model.NewSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return settings, nil
}

// SaveSettings persists the settings document.
func (s *SQLiteStore) SaveSettings(ctx context.Context, settings *model.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return s.Save(ctx, KeySettings, data)
}

// LoadHistory reads the persisted item-name history.
func (s *SQLiteStore) LoadHistory(ctx context.Context) ([]string, error) {
	data, ok, err := s.Load(ctx, KeyHistory)
	if err != nil || !ok {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return names, nil
}

// SaveHistory persists the most recent history entries, bounded to the
// persistence limit.
func (s *SQLiteStore) SaveHistory(ctx context.Context, names []string) error {
	if len(names) > historyLimit {
		names = names[:historyLimit]
	}
	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	return s.Save(ctx, KeyHistory, data)
}
