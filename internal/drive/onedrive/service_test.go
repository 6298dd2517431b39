package onedrive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/drive"
)

type staticAuth struct{ token string }

func (a staticAuth) Login(context.Context, bool) (bool, error) { return a.token != "", nil }
func (a staticAuth) Logout(bool) error                         { return nil }
func (a staticAuth) Token() string                             { return a.token }
func (a staticAuth) LoggedIn() bool                            { return a.token != "" }

func newTestService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := New(staticAuth{token: "tok"}, false, zap.NewNop())
	s.SetBaseURL(srv.URL)
	return s
}

func TestChangesFollowsPagination(t *testing.T) {
	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/drive/root:/ProgramData/Listsync:/view.delta", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q; want bearer token", got)
		}
		if r.URL.Query().Get("token") != "t0" {
			t.Errorf("token = %q; want t0", r.URL.Query().Get("token"))
		}
		fmt.Fprintf(w, `{
			"value": [{"id":"1","name":"a.list","file":{}}],
			"@odata.nextLink": %q
		}`, base+"/page2")
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"value": [
				{"id":"2","name":"b.list","file":{}},
				{"id":"3","name":"c.list","deleted":{"state":"deleted"}}
			],
			"@delta.token": "t1"
		}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	base = srv.URL

	s := New(staticAuth{token: "tok"}, false, zap.NewNop())
	s.SetBaseURL(srv.URL)

	entries, token, err := s.Changes(context.Background(), "t0")
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if token != "t1" {
		t.Errorf("token = %q; want %q", token, "t1")
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d; want 3 across both pages", len(entries))
	}
	if !entries[0].File || entries[0].Name != "a.list" {
		t.Errorf("entry 0 = %+v; want file a.list", entries[0])
	}
	if !entries[2].Deleted {
		t.Error("entry 2 should carry the deleted flag")
	}
}

func TestChangesStaleTokenIsResyncRequired(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		fmt.Fprint(w, `{"error":{"code":"resyncRequired","message":"resync"}}`)
	}))

	_, _, err := s.Changes(context.Background(), "stale")
	if !drive.IsResyncRequired(err) {
		t.Errorf("err = %v; want a resync-required error", err)
	}
}

func TestDownloadClassifiesErrors(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   drive.Kind
	}{
		{http.StatusNotFound, `{"error":{"code":"itemNotFound"}}`, drive.KindNotFound},
		{http.StatusUnauthorized, `{"error":{"code":"unauthenticated"}}`, drive.KindAuthRequired},
		{http.StatusInsufficientStorage, `{"error":{"code":"quotaLimitReached"}}`, drive.KindQuotaExceeded},
		{http.StatusInternalServerError, `{"error":{"code":"generalException"}}`, drive.KindUnknown},
	}
	for _, tt := range tests {
		s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			fmt.Fprint(w, tt.body)
		}))
		_, err := s.Download(context.Background(), "a.list", drive.FormatJSON)
		if got := drive.KindOf(err); got != tt.want {
			t.Errorf("status %d: kind = %v; want %v", tt.status, got, tt.want)
		}
	}
}

func TestDownloadWithoutTokenNeedsNoRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(srv.Close)

	s := New(staticAuth{}, false, zap.NewNop())
	s.SetBaseURL(srv.URL)

	_, err := s.Download(context.Background(), "a.list", drive.FormatJSON)
	if !drive.IsKind(err, drive.KindAuthRequired) {
		t.Errorf("err = %v; want auth-required", err)
	}
	if called {
		t.Error("no request must go out without a token")
	}
}

func TestUploadRoundTrip(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s; want PUT", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/a.list:/content") {
			t.Errorf("path = %q; want the item content path", r.URL.Path)
		}
		fmt.Fprint(w, `{"id":"9","name":"a.list","eTag":"e1","file":{}}`)
	}))

	entry, err := s.Upload(context.Background(), "a.list", []byte(`{}`))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if entry.ID != "9" || entry.ETag != "e1" || !entry.File {
		t.Errorf("entry = %+v; want the created item", entry)
	}
}

func TestShareIDEncoding(t *testing.T) {
	// The "u!" scheme is base64url without padding.
	got := shareID("https://1drv.ms/x")
	if !strings.HasPrefix(got, "u!") {
		t.Fatalf("shareID = %q; want u! prefix", got)
	}
	if strings.ContainsAny(got, "+/=") {
		t.Errorf("shareID = %q; must be url-safe and unpadded", got)
	}
}

func TestSharedRequestsAreUnauthenticated(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q; shared downloads must not send a token", got)
		}
		if !strings.HasPrefix(r.URL.Path, "/shares/u!") {
			t.Errorf("path = %q; want a share id path", r.URL.Path)
		}
		fmt.Fprint(w, `{"some":"list"}`)
	}))

	data, err := s.DownloadShared(context.Background(), "https://1drv.ms/x", drive.FormatJSON)
	if err != nil {
		t.Fatalf("DownloadShared: %v", err)
	}
	if string(data) != `{"some":"list"}` {
		t.Errorf("data = %s; want the shared content", data)
	}
}

func TestCreateShareLink(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s; want POST", r.Method)
		}
		fmt.Fprint(w, `{"id":"p1","roles":["write"],"link":{"webUrl":"https://1drv.ms/y","type":"edit"}}`)
	}))

	link, err := s.CreateShareLink(context.Background(), "a.list")
	if err != nil {
		t.Fatalf("CreateShareLink: %v", err)
	}
	if link != "https://1drv.ms/y" {
		t.Errorf("link = %q; want the web url", link)
	}
}
