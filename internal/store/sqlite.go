// Package store persists the application's three logical documents (lists,
// settings, item-name history) as JSON blobs in a local SQLite database.
// Writes of unchanged content are short-circuited by a content hash, and
// readiness signals let dependent components defer work until the first
// load has happened.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
	"go.uber.org/zap"
)

// Document keys of the three independent logical documents.
const (
	KeyLists    = "myLists"
	KeySettings = "appSettings"
	KeyHistory  = "itemHistory"
)

// SQLiteStore is the content-hash-deduplicated key/value document store.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *zap.Logger

	mu         sync.Mutex
	hashes     map[string]string
	markerPath string
	lastSave   time.Time

	listsLoadedOnce    sync.Once
	settingsLoadedOnce sync.Once
	listsLoaded        chan struct{}
	settingsLoaded     chan struct{}
	dataLoaded         chan struct{}
	dataLoadedOnce     sync.Once
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:             db,
		logger:         logger,
		hashes:         make(map[string]string),
		listsLoaded:    make(chan struct{}),
		settingsLoaded: make(chan struct{}),
		dataLoaded:     make(chan struct{}),
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// contentHash returns the dedup key of a serialized document.
func contentHash(value []byte) string {
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:])
}

// Load reads the document stored under key. The second result reports
// whether the document exists. A successful load records the content hash
// so that an immediate re-save of identical data is skipped.
func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, "SELECT value FROM documents WHERE key = ?", key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.markLoaded(key)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("loading document %q: %w", key, err)
	}

	s.mu.Lock()
	s.hashes[key] = contentHash(value)
	s.mu.Unlock()

	s.markLoaded(key)
	return value, true, nil
}

// Save writes the document under key, unless the content hash matches the
// hash recorded at the last load or save of that key.
func (s *SQLiteStore) Save(ctx context.Context, key string, value []byte) error {
	hash := contentHash(value)

	s.mu.Lock()
	unchanged := s.hashes[key] == hash
	s.mu.Unlock()

	if unchanged {
		s.logger.Debug("save skipped, no changes", zap.String("key", key))
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving document %q: %w", key, err)
	}

	s.mu.Lock()
	s.hashes[key] = hash
	s.mu.Unlock()

	s.logger.Debug("document saved", zap.String("key", key), zap.Int("bytes", len(value)))
	s.touchMarker()
	return nil
}

// InvalidateHash drops the recorded content hash for a key, forcing the
// next Save through. Used after another instance changed the database.
func (s *SQLiteStore) InvalidateHash(key string) {
	s.mu.Lock()
	delete(s.hashes, key)
	s.mu.Unlock()
}

// markLoaded closes the readiness channel belonging to the key. Data is
// considered loaded once both lists and settings have been read at least
// once, in either order.
func (s *SQLiteStore) markLoaded(key string) {
	switch key {
	case KeyLists:
		s.listsLoadedOnce.Do(func() { close(s.listsLoaded) })
	case KeySettings:
		s.settingsLoadedOnce.Do(func() { close(s.settingsLoaded) })
	default:
		return
	}

	select {
	case <-s.listsLoaded:
	default:
		return
	}
	select {
	case <-s.settingsLoaded:
	default:
		return
	}
	s.dataLoadedOnce.Do(func() { close(s.dataLoaded) })
}

// ListsLoaded is closed after the lists document has loaded once.
func (s *SQLiteStore) ListsLoaded() <-chan struct{} { return s.listsLoaded }

// SettingsLoaded is closed after the settings document has loaded once.
func (s *SQLiteStore) SettingsLoaded() <-chan struct{} { return s.settingsLoaded }

// DataLoaded is closed once both lists and settings have loaded.
func (s *SQLiteStore) DataLoaded() <-chan struct{} { return s.dataLoaded }
