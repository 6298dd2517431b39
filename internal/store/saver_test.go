package store

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/history"
	"github.com/styrit/listsync/internal/model"
)

type memSource struct {
	collection *model.Collection
	settings   *model.Settings
}

func (m *memSource) Records() []*model.ListRecord      { return m.collection.ToRecords() }
func (m *memSource) SettingsSnapshot() *model.Settings { return m.settings.Clone() }

func newSaverEnv(t *testing.T, quiet time.Duration) (*Saver, *SQLiteStore, *model.Collection) {
	t.Helper()
	s := newStore(t)
	collection := model.NewCollection(nil)
	saver := NewSaver(s, history.New(nil), quiet, zap.NewNop())
	saver.SetSource(&memSource{collection: collection, settings: model.NewSettings()})
	collection.SetFromRecords(model.DefaultRecords())
	return saver, s, collection
}

func TestScheduledSaveCoalescesBursts(t *testing.T) {
	saver, s, _ := newSaverEnv(t, 50*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		saver.ScheduleSave()
		time.Sleep(5 * time.Millisecond)
	}

	// Still inside the quiet period: nothing written yet.
	if _, ok, _ := s.LoadLists(ctx); ok {
		t.Fatal("save ran before the quiet period elapsed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := s.LoadLists(ctx); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scheduled save never ran")
}

func TestFlushPersistsEverythingImmediately(t *testing.T) {
	saver, s, _ := newSaverEnv(t, time.Hour)
	ctx := context.Background()

	saver.ScheduleSave()
	if err := saver.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if _, ok, err := s.LoadLists(ctx); err != nil || !ok {
		t.Errorf("lists not persisted by Flush (ok=%v, err=%v)", ok, err)
	}
	if _, err := s.LoadSettings(ctx); err != nil {
		t.Errorf("settings not persisted by Flush: %v", err)
	}
}

func TestSaveWithoutSourceFails(t *testing.T) {
	saver := NewSaver(newStore(t), history.New(nil), time.Hour, zap.NewNop())
	if err := saver.SaveLists(context.Background()); err == nil {
		t.Error("SaveLists without a source did not fail")
	}
	if err := saver.SaveSettings(context.Background()); err == nil {
		t.Error("SaveSettings without a source did not fail")
	}
}

func TestNotifierSchedulesSave(t *testing.T) {
	saver, s, collection := newSaverEnv(t, 20*time.Millisecond)
	ctx := context.Background()

	saver.ListChanged(collection.Lists()[0])

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := s.LoadLists(ctx); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("notification did not trigger a save")
}
