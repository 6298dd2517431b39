// listsync keeps local lists synchronized with a cloud storage provider.
//
// It loads the collection from the local database, starts the background
// sync engine and runs until interrupted, flushing pending changes on the
// way out.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	gosync "sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/auth"
	"github.com/styrit/listsync/internal/backup"
	"github.com/styrit/listsync/internal/drive"
	"github.com/styrit/listsync/internal/drive/googledrive"
	"github.com/styrit/listsync/internal/drive/onedrive"
	"github.com/styrit/listsync/internal/history"
	"github.com/styrit/listsync/internal/model"
	"github.com/styrit/listsync/internal/store"
	"github.com/styrit/listsync/internal/sync"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the configuration file")
	dev := flag.Bool("dev", false, "use the development remote folder")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *dev {
		cfg.DevMode = true
	}

	logger := newLogger(cfg.DevMode)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func newLogger(dev bool) *zap.Logger {
	if dev {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return l
	}
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}

func run(cfg *model.AppConfig, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "listsync.db"), logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()
	st.SetMarkerPath(cfg.DataDir)

	ctx := context.Background()
	settings, err := st.LoadSettings(ctx)
	if err != nil {
		return err
	}
	recs, ok, err := st.LoadLists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		recs = model.DefaultRecords()
	}
	names, err := st.LoadHistory(ctx)
	if err != nil {
		return err
	}
	hist := history.New(names)

	relay := &notifierRelay{}
	collection := model.NewCollection(relay)
	collection.SetFromRecords(recs)

	saver := store.NewSaver(st, hist,
		time.Duration(cfg.Sync.SaveDebounceSec)*time.Second, logger)

	provider, err := buildProvider(cfg, settings, logger)
	if err != nil {
		return err
	}

	engine := sync.New(provider, collection, settings, st, saver, cfg.Sync, logger)
	relay.Set(model.MultiNotifier{saver, engine})

	watcher, err := store.NewWatcher(st, cfg.DataDir, logger)
	if err != nil {
		logger.Warn("store watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
		engine.SetExternalChanges(watcher.Changes())
	}

	engine.Start()
	defer engine.Stop()

	go logNotices(engine, logger)
	go runAutoBackup(engine, backup.New(provider, settings, saver, logger), logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	// Hiding pushes pending changes and flushes the saver.
	engine.SetVisible(false)
	return nil
}

func buildProvider(cfg *model.AppConfig, settings *model.Settings, logger *zap.Logger) (*drive.Provider, error) {
	id := settings.StorageProvider
	if id == "" {
		id = "onedrive"
	}
	pcfg := cfg.Provider(id)
	if pcfg == nil {
		return nil, fmt.Errorf("unknown storage provider %q", id)
	}

	authSvc := auth.New(auth.Config{
		ProviderID:    pcfg.ID,
		ClientID:      pcfg.ClientID,
		TokenEndpoint: pcfg.TokenEndpoint,
		Scopes:        pcfg.Scopes,
	}, nil, loopbackFlow(pcfg, logger), logger)

	provider := &drive.Provider{
		ID:          pcfg.ID,
		Name:        pcfg.Name,
		Auth:        authSvc,
		SyncSupport: true,
	}
	switch pcfg.ID {
	case "onedrive":
		provider.Service = onedrive.New(authSvc, cfg.DevMode, logger)
	case "googledrive":
		provider.Service = googledrive.New(authSvc, logger)
	default:
		return nil, fmt.Errorf("storage provider %q has no backend", pcfg.ID)
	}
	return provider, nil
}

func logNotices(engine *sync.Engine, logger *zap.Logger) {
	for n := range engine.Notices() {
		logger.Info("notice",
			zap.String("title", n.Title),
			zap.String("text", n.Text),
			zap.Error(n.Err))
	}
}

func runAutoBackup(engine *sync.Engine, backups *backup.Service, logger *zap.Logger) {
	if !backups.Due() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := backups.AutoBackup(ctx, engine.Records()); err != nil {
		logger.Warn("auto backup failed", zap.Error(err))
	}
}

// notifierRelay breaks the construction cycle between the collection and
// the notifiers that need the collection to exist first.
type notifierRelay struct {
	mu gosync.RWMutex
	n  model.Notifier
}

func (r *notifierRelay) Set(n model.Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n = n
}

func (r *notifierRelay) get() model.Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}

func (r *notifierRelay) ListChanged(l *model.List) {
	if n := r.get(); n != nil {
		n.ListChanged(l)
	}
}

func (r *notifierRelay) ItemChanged(it *model.Item) {
	if n := r.get(); n != nil {
		n.ItemChanged(it)
	}
}

func (r *notifierRelay) ListUpdated(l *model.List) {
	if n := r.get(); n != nil {
		n.ListUpdated(l)
	}
}
