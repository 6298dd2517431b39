package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/drive"
	"github.com/styrit/listsync/internal/history"
	"github.com/styrit/listsync/internal/model"
	"github.com/styrit/listsync/internal/store"
	"github.com/styrit/listsync/tests/testutil"
)

type fakeAuth struct {
	mu               gosync.Mutex
	loggedIn         bool
	silentOK         bool
	interactiveOK    bool
	loginErr         error
	silentCalls      int
	interactiveCalls int
}

func (a *fakeAuth) Login(_ context.Context, silent bool) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if silent {
		a.silentCalls++
	} else {
		a.interactiveCalls++
	}
	if a.loginErr != nil {
		return false, a.loginErr
	}
	if a.loggedIn {
		return true, nil
	}
	ok := a.silentOK
	if !silent {
		ok = ok || a.interactiveOK
	}
	a.loggedIn = ok
	return ok, nil
}

func (a *fakeAuth) Logout(bool) error { a.mu.Lock(); defer a.mu.Unlock(); a.loggedIn = false; return nil }
func (a *fakeAuth) Token() string     { return "token" }
func (a *fakeAuth) LoggedIn() bool    { a.mu.Lock(); defer a.mu.Unlock(); return a.loggedIn }

func (a *fakeAuth) logins() (silent, interactive int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.silentCalls, a.interactiveCalls
}

type fakeService struct {
	mu gosync.Mutex

	entries   []drive.Entry
	nextToken string
	changesFn func(token string) ([]drive.Entry, string, error)

	files     map[string][]byte
	shared    map[string][]byte
	sharedErr map[string]error
	uploadErr map[string]error

	tokensSeen    []string
	uploads       []string
	sharedUploads []string
}

func newFakeService() *fakeService {
	return &fakeService{
		files:     map[string][]byte{},
		shared:    map[string][]byte{},
		sharedErr: map[string]error{},
		uploadErr: map[string]error{},
	}
}

func (f *fakeService) Changes(_ context.Context, token string) ([]drive.Entry, string, error) {
	f.mu.Lock()
	f.tokensSeen = append(f.tokensSeen, token)
	f.mu.Unlock()
	if f.changesFn != nil {
		return f.changesFn(token)
	}
	return f.entries, f.nextToken, nil
}

func (f *fakeService) Download(_ context.Context, name string, _ drive.Format) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[name]
	if !ok {
		return nil, drive.NewError(drive.KindNotFound, "download", name, nil)
	}
	return data, nil
}

func (f *fakeService) Upload(_ context.Context, name string, content []byte) (*drive.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.uploadErr[name]; err != nil {
		return nil, err
	}
	f.files[name] = content
	f.uploads = append(f.uploads, name)
	return &drive.Entry{Name: name, File: true}, nil
}

func (f *fakeService) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, name)
	return nil
}

func (f *fakeService) Children(context.Context) ([]drive.Entry, error) { return nil, nil }

func (f *fakeService) Permissions(context.Context, string) ([]drive.Permission, error) {
	return nil, nil
}

func (f *fakeService) CreateShareLink(_ context.Context, name string) (string, error) {
	return "https://share.example/" + name, nil
}

func (f *fakeService) RemoveShareLink(context.Context, string, string) error { return nil }

func (f *fakeService) SharedMetadata(_ context.Context, shareURL string) (*drive.Entry, error) {
	return &drive.Entry{File: true, OwnerID: "owner", OwnerName: "Owner"}, nil
}

func (f *fakeService) DownloadShared(_ context.Context, shareURL string, _ drive.Format) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sharedErr[shareURL]; err != nil {
		return nil, err
	}
	data, ok := f.shared[shareURL]
	if !ok {
		return nil, drive.NewError(drive.KindNotFound, "downloadShared", shareURL, nil)
	}
	return data, nil
}

func (f *fakeService) UploadShared(_ context.Context, shareURL string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.uploadErr[shareURL]; err != nil {
		return err
	}
	f.shared[shareURL] = content
	f.sharedUploads = append(f.sharedUploads, shareURL)
	return nil
}

func (f *fakeService) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeService) seenTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.tokensSeen))
	copy(out, f.tokensSeen)
	return out
}

type testEnv struct {
	engine     *Engine
	auth       *fakeAuth
	service    *fakeService
	collection *model.Collection
	settings   *model.Settings
	saver      *store.Saver
	store      *store.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := testutil.NewTestStore(t)

	settings := model.NewSettings()
	settings.SyncData = true

	auth := &fakeAuth{silentOK: true}
	service := newFakeService()
	provider := &drive.Provider{
		ID:          "onedrive",
		Name:        "OneDrive",
		Auth:        auth,
		Service:     service,
		SyncSupport: true,
	}

	collection := model.NewCollection(nil)
	saver := store.NewSaver(st, history.New(nil), 10*time.Millisecond, zap.NewNop())

	engine := New(provider, collection, settings, st, saver, model.SyncConfig{
		DownSyncPollSec:   3600,
		UpSyncDebounceSec: 1,
	}, zap.NewNop())

	return &testEnv{
		engine:     engine,
		auth:       auth,
		service:    service,
		collection: collection,
		settings:   settings,
		saver:      saver,
		store:      st,
	}
}

// record builds a list record with controlled timestamps.
func record(id, name string, modified time.Time) *model.ListRecord {
	return &model.ListRecord{
		ID:       id,
		Name:     name,
		Items:    []model.ItemRecord{},
		Groups:   []model.GroupRecord{},
		Created:  modified.Add(-time.Hour),
		Modified: modified,
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestDownSyncAppliesNewerRemote(t *testing.T) {
	env := newTestEnv(t)
	base := time.Now().Add(-time.Hour)
	env.collection.SetFromRecords([]*model.ListRecord{record("a", "old name", base)})

	remote := record("a", "new name", base.Add(time.Minute))
	env.service.entries = []drive.Entry{{Name: "a.list", File: true}}
	env.service.nextToken = "t2"
	env.service.files["a.list"] = mustJSON(t, remote)

	env.engine.DownSync(context.Background())

	l := env.collection.Find("a")
	if l.Name() != "new name" {
		t.Errorf("name = %q; want the remote name", l.Name())
	}
	if l.HasUserChanges() {
		t.Error("a pulled update must not be flagged as a local change")
	}
	if got := env.settings.DeltaToken("onedrive"); got != "t2" {
		t.Errorf("delta token = %q; want %q", got, "t2")
	}
}

func TestDownSyncKeepsLocalOnTie(t *testing.T) {
	env := newTestEnv(t)
	base := time.Now().Add(-time.Hour)
	env.collection.SetFromRecords([]*model.ListRecord{record("a", "local", base)})

	env.service.entries = []drive.Entry{{Name: "a.list", File: true}}
	env.service.files["a.list"] = mustJSON(t, record("a", "remote", base))

	env.engine.DownSync(context.Background())

	if got := env.collection.Find("a").Name(); got != "local" {
		t.Errorf("name = %q; an equally old remote version must not win", got)
	}
}

func TestDownSyncAddsUnknownList(t *testing.T) {
	env := newTestEnv(t)
	env.service.entries = []drive.Entry{{Name: "b.list", File: true}}
	env.service.files["b.list"] = mustJSON(t, record("b", "fresh", time.Now()))

	env.engine.DownSync(context.Background())

	if l := env.collection.Find("b"); l == nil || l.Name() != "fresh" {
		t.Fatalf("new remote list was not added")
	}
}

func TestDownSyncIgnoresForeignFiles(t *testing.T) {
	env := newTestEnv(t)
	env.service.entries = []drive.Entry{
		{Name: "notes.txt", File: true},
		{Name: "folder", File: false},
	}

	env.engine.DownSync(context.Background())

	if got := env.collection.Len(); got != 0 {
		t.Errorf("collection grew to %d from foreign files", got)
	}
}

func TestDownSyncResyncRetriesExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	env.settings.SetDeltaToken("onedrive", "stale")
	env.service.changesFn = func(token string) ([]drive.Entry, string, error) {
		if token != "" {
			return nil, "", drive.NewError(drive.KindResyncRequired, "changes", "", nil)
		}
		return nil, "fresh", nil
	}

	env.engine.DownSync(context.Background())

	tokens := env.service.seenTokens()
	if len(tokens) != 2 || tokens[0] != "stale" || tokens[1] != "" {
		t.Fatalf("tokens seen = %v; want [stale \"\"]", tokens)
	}
	if got := env.settings.DeltaToken("onedrive"); got != "fresh" {
		t.Errorf("delta token = %q; want %q", got, "fresh")
	}
}

func TestDownSyncResyncDoesNotLoop(t *testing.T) {
	env := newTestEnv(t)
	env.settings.SetDeltaToken("onedrive", "stale")
	env.service.changesFn = func(string) ([]drive.Entry, string, error) {
		return nil, "", drive.NewError(drive.KindResyncRequired, "changes", "", nil)
	}

	env.engine.DownSync(context.Background())

	if got := len(env.service.seenTokens()); got != 2 {
		t.Errorf("Changes called %d times; want 2", got)
	}
}

func TestDownSyncRemovesRemotelyDeletedLists(t *testing.T) {
	env := newTestEnv(t)
	env.collection.SetFromRecords([]*model.ListRecord{record("a", "doomed", time.Now())})
	env.service.entries = []drive.Entry{{Name: "a.list", File: true, Deleted: true}}

	env.engine.DownSync(context.Background())

	if env.collection.Find("a") != nil {
		t.Error("remotely deleted list must be removed during polling")
	}
}

func TestFullSyncNeverDeletes(t *testing.T) {
	env := newTestEnv(t)
	env.auth.interactiveOK = true
	env.collection.SetFromRecords([]*model.ListRecord{record("a", "survivor", time.Now())})
	env.service.entries = []drive.Entry{{Name: "a.list", File: true, Deleted: true}}

	if err := env.engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if env.collection.Find("a") == nil {
		t.Error("the full pass must not remove lists deleted remotely")
	}
}

func TestSharedListVanishedIsUnsharedNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.settings.SyncData = false // shared channel works without data sync

	rec := record("s", "shared", time.Now())
	rec.Shared = &model.ShareInfo{URL: "https://share.example/s"}
	env.collection.SetFromRecords([]*model.ListRecord{rec})
	// No shared content registered: the download reports not found.

	env.engine.DownSync(context.Background())

	if env.collection.Find("s").Shared() != nil {
		t.Error("vanished share must be unshared locally")
	}
	select {
	case n := <-env.engine.Notices():
		if n.Title != "Shared list" {
			t.Errorf("notice = %q; want the shared list notice", n.Title)
		}
	default:
		t.Error("expected a user notice about the vanished share")
	}
}

func TestSharedListNewerRemoteApplied(t *testing.T) {
	env := newTestEnv(t)
	base := time.Now().Add(-time.Hour)

	local := record("s", "stale", base)
	local.Shared = &model.ShareInfo{URL: "u"}
	env.collection.SetFromRecords([]*model.ListRecord{local})

	remote := record("s", "current", base.Add(time.Minute))
	remote.Shared = &model.ShareInfo{URL: "u"}
	env.service.shared["u"] = mustJSON(t, remote)

	env.engine.DownSync(context.Background())

	if got := env.collection.Find("s").Name(); got != "current" {
		t.Errorf("name = %q; want the shared remote version", got)
	}
}

func TestUpSyncNothingToUploadSkipsLogin(t *testing.T) {
	env := newTestEnv(t)
	env.collection.SetFromRecords([]*model.ListRecord{record("a", "clean", time.Now())})

	if err := env.engine.UpSync(context.Background(), true); err != nil {
		t.Fatalf("UpSync: %v", err)
	}
	if s, i := env.auth.logins(); s != 0 || i != 0 {
		t.Errorf("login attempted (%d silent, %d interactive) with nothing to upload", s, i)
	}
}

func TestUpSyncUploadsDirtyListsAndClearsFlags(t *testing.T) {
	env := newTestEnv(t)
	env.collection.SetFromRecords([]*model.ListRecord{record("a", "dirty", time.Now())})
	l := env.collection.Find("a")
	l.SetHasUserChanges(true)
	before := env.settings.LastUpSyncDate

	if err := env.engine.UpSync(context.Background(), true); err != nil {
		t.Fatalf("UpSync: %v", err)
	}
	if got := env.service.uploadCount(); got != 1 {
		t.Fatalf("uploads = %d; want 1", got)
	}
	if l.HasUserChanges() {
		t.Error("dirty flag must be cleared after a successful upload")
	}
	if !env.settings.LastUpSyncDate.After(before) {
		t.Error("LastUpSyncDate must advance after a fully successful up sync")
	}
}

func TestUpSyncSilentLoginFailureIsSoft(t *testing.T) {
	env := newTestEnv(t)
	env.auth.silentOK = false
	env.collection.SetFromRecords([]*model.ListRecord{record("a", "dirty", time.Now())})
	env.collection.Find("a").SetHasUserChanges(true)

	if err := env.engine.UpSync(context.Background(), true); err != nil {
		t.Fatalf("silent UpSync without login must not fail: %v", err)
	}
	select {
	case <-env.engine.Notices():
	default:
		t.Error("expected a notice about the skipped upload")
	}

	if err := env.engine.UpSync(context.Background(), false); err == nil {
		t.Error("interactive UpSync without login must fail")
	}
}

func TestUpSyncSharedGoesThroughShareLink(t *testing.T) {
	env := newTestEnv(t)
	env.settings.SyncData = false

	rec := record("s", "shared", time.Now())
	rec.Shared = &model.ShareInfo{URL: "u"}
	env.collection.SetFromRecords([]*model.ListRecord{rec})
	env.collection.Find("s").SetHasUserChanges(true)

	if err := env.engine.UpSync(context.Background(), true); err != nil {
		t.Fatalf("UpSync: %v", err)
	}
	env.service.mu.Lock()
	sharedUploads, uploads := len(env.service.sharedUploads), len(env.service.uploads)
	env.service.mu.Unlock()
	if sharedUploads != 1 || uploads != 0 {
		t.Errorf("uploads = %d shared, %d own; want exactly one shared upload", sharedUploads, uploads)
	}
}

func TestUpSyncDisabledSkipsPrivateLists(t *testing.T) {
	env := newTestEnv(t)
	env.settings.SyncData = false
	env.collection.SetFromRecords([]*model.ListRecord{record("a", "private", time.Now())})
	env.collection.Find("a").SetHasUserChanges(true)

	if err := env.engine.UpSync(context.Background(), true); err != nil {
		t.Fatalf("UpSync: %v", err)
	}
	if got := env.service.uploadCount(); got != 0 {
		t.Errorf("uploads = %d; private lists must not upload while sync is disabled", got)
	}
}

func TestUpSyncPartialFailureKeepsFailedDirty(t *testing.T) {
	env := newTestEnv(t)
	env.collection.SetFromRecords([]*model.ListRecord{
		record("a", "ok", time.Now()),
		record("b", "broken", time.Now()),
	})
	env.collection.Find("a").SetHasUserChanges(true)
	env.collection.Find("b").SetHasUserChanges(true)
	env.service.uploadErr["b.list"] = drive.NewError(drive.KindOffline, "upload", "b.list", errors.New("boom"))
	before := env.settings.LastUpSyncDate

	if err := env.engine.UpSync(context.Background(), true); err == nil {
		t.Fatal("UpSync with a failed upload must report the error")
	}
	if env.collection.Find("a").HasUserChanges() {
		t.Error("successfully uploaded list must be clean")
	}
	if !env.collection.Find("b").HasUserChanges() {
		t.Error("failed list must stay dirty for the next attempt")
	}
	if env.settings.LastUpSyncDate.After(before) {
		t.Error("LastUpSyncDate must not advance on partial failure")
	}
}

func TestScheduledUpSyncCoalescesEdits(t *testing.T) {
	env := newTestEnv(t)
	env.auth.loggedIn = true
	env.collection.SetFromRecords([]*model.ListRecord{record("a", "busy", time.Now())})
	l := env.collection.Find("a")

	// Three edits in quick succession restart the debounce each time and
	// end in a single upload.
	for i := 0; i < 3; i++ {
		l.SetHasUserChanges(true)
		env.engine.ListChanged(l)
		time.Sleep(20 * time.Millisecond)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && env.service.uploadCount() == 0 {
		time.Sleep(25 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if got := env.service.uploadCount(); got != 1 {
		t.Errorf("uploads = %d; want the edits coalesced into 1", got)
	}
}

func TestFullSyncUploadsChangedButNotJustDownloaded(t *testing.T) {
	env := newTestEnv(t)
	env.auth.interactiveOK = true
	base := time.Now()
	env.settings.LastUpSyncDate = base.Add(-time.Hour)

	// "a" will be overwritten by the pull; "b" changed since the last up
	// sync but its dirty flag is gone (e.g. after a restart).
	env.collection.SetFromRecords([]*model.ListRecord{
		record("a", "local a", base.Add(-30*time.Minute)),
		record("b", "local b", base.Add(-30*time.Minute)),
	})
	env.service.entries = []drive.Entry{{Name: "a.list", File: true}}
	env.service.files["a.list"] = mustJSON(t, record("a", "remote a", base))

	if err := env.engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	env.service.mu.Lock()
	uploads := make([]string, len(env.service.uploads))
	copy(uploads, env.service.uploads)
	env.service.mu.Unlock()
	if len(uploads) != 1 || uploads[0] != "b.list" {
		t.Errorf("uploads = %v; want only b.list", uploads)
	}
	if got := env.collection.Find("a").Name(); got != "remote a" {
		t.Errorf("list a = %q; want the pulled version", got)
	}
}

func TestDownSyncNotLoggedInSurfacesNotice(t *testing.T) {
	env := newTestEnv(t)
	env.auth.silentOK = false

	env.engine.DownSync(context.Background())

	select {
	case n := <-env.engine.Notices():
		if n.Title != "Login required" {
			t.Errorf("notice = %q; want the login notice", n.Title)
		}
	default:
		t.Error("expected a user notice when the silent login reports logged out")
	}
}

// Saves taken while a down sync rewrites the collection must observe the
// engine's lock and persist a consistent snapshot.
func TestSaveDuringDownSyncIsConsistent(t *testing.T) {
	env := newTestEnv(t)
	base := time.Now().Add(-24 * time.Hour)
	env.collection.SetFromRecords([]*model.ListRecord{record("a", "v0", base)})

	gen := 0
	env.service.changesFn = func(string) ([]drive.Entry, string, error) {
		gen++
		rec := record("a", fmt.Sprintf("v%d", gen), base.Add(time.Duration(gen)*time.Minute))
		data, _ := json.Marshal(rec)
		env.service.mu.Lock()
		env.service.files["a.list"] = data
		env.service.mu.Unlock()
		return []drive.Entry{{Name: "a.list", File: true}}, "t", nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			env.engine.DownSync(context.Background())
		}
	}()

	for saving := true; saving; {
		select {
		case <-done:
			saving = false
		default:
		}
		if err := env.saver.SaveLists(context.Background()); err != nil {
			t.Fatalf("SaveLists during down sync: %v", err)
		}
	}

	recs, ok, err := env.store.LoadLists(context.Background())
	if err != nil || !ok {
		t.Fatalf("LoadLists after concurrent saves (ok=%v, err=%v)", ok, err)
	}
	if len(recs) != 1 || recs[0].ID != "a" {
		t.Fatalf("persisted %d records; want exactly the one list", len(recs))
	}
	if got := env.collection.Find("a").Name(); got != "v10" {
		t.Errorf("final name = %q; want the last applied version", got)
	}
}
