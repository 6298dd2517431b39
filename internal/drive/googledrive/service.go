// Package googledrive implements the drive gateway on the Google Drive v3
// API. Files live in the hidden appDataFolder space. Google Drive carries
// no public share-link channel here, so the shared-file operations report
// Unsupported and shared lists stay on their originating backend.
package googledrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/drive"
)

const (
	apiBase    = "https://www.googleapis.com/drive/v3"
	uploadBase = "https://www.googleapis.com/upload/drive/v3"
)

// Service talks to Google Drive. It implements drive.Service.
type Service struct {
	auth       drive.Auth
	httpClient *http.Client
	base       string
	upload     string
	logger     *zap.Logger

	// The changes feed omits the file resource for permanent deletions,
	// leaving only the file id. names remembers id to name mappings seen
	// in earlier responses so those deletions still carry a name.
	mu    sync.Mutex
	names map[string]string
}

// New creates a Google Drive gateway.
func New(auth drive.Auth, logger *zap.Logger) *Service {
	return &Service{
		auth:       auth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		base:       apiBase,
		upload:     uploadBase,
		logger:     logger,
		names:      map[string]string{},
	}
}

func (s *Service) rememberName(id, name string) {
	if id == "" || name == "" {
		return
	}
	s.mu.Lock()
	s.names[id] = name
	s.mu.Unlock()
}

func (s *Service) rememberedName(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names[id]
}

// SetBaseURLs overrides the API endpoints. Used by tests.
func (s *Service) SetBaseURLs(base, upload string) {
	s.base = strings.TrimRight(base, "/")
	s.upload = strings.TrimRight(upload, "/")
}

type file struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Trashed      bool      `json:"trashed"`
	MimeType     string    `json:"mimeType"`
}

type fileList struct {
	Files         []file `json:"files"`
	NextPageToken string `json:"nextPageToken"`
}

type change struct {
	FileID  string `json:"fileId"`
	Removed bool   `json:"removed"`
	File    *file  `json:"file"`
}

type changeList struct {
	Changes           []change `json:"changes"`
	NextPageToken     string   `json:"nextPageToken"`
	NewStartPageToken string   `json:"newStartPageToken"`
}

type startPageToken struct {
	StartPageToken string `json:"startPageToken"`
}

func (f *file) toEntry(removed bool) drive.Entry {
	return drive.Entry{
		ID:       f.ID,
		Name:     f.Name,
		Modified: f.ModifiedTime,
		Deleted:  removed || f.Trashed,
		File:     f.MimeType != "application/vnd.google-apps.folder",
	}
}

// do performs one authenticated request, returning the raw body; failures
// are classified into the gateway taxonomy.
func (s *Service) do(ctx context.Context, method, rawURL string, body io.Reader, contentType, op, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	token := s.auth.Token()
	if token == "" {
		return nil, drive.NewError(drive.KindAuthRequired, op, name, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, drive.NewError(drive.KindOffline, op, name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	reqErr := fmt.Errorf("http %d", resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, drive.NewError(drive.KindAuthRequired, op, name, reqErr)
	case http.StatusNotFound:
		if op == "changes" {
			// an expired page token is reported as 404
			return nil, drive.NewError(drive.KindResyncRequired, op, name, reqErr)
		}
		return nil, drive.NewError(drive.KindNotFound, op, name, reqErr)
	case http.StatusGone:
		return nil, drive.NewError(drive.KindResyncRequired, op, name, reqErr)
	case http.StatusInsufficientStorage:
		return nil, drive.NewError(drive.KindQuotaExceeded, op, name, reqErr)
	default:
		return nil, drive.NewError(drive.KindUnknown, op, name, reqErr)
	}
}

func (s *Service) getJSON(ctx context.Context, rawURL string, out any, op, name string) error {
	data, err := s.do(ctx, http.MethodGet, rawURL, nil, "", op, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

// findByName resolves a file name in the appDataFolder to its id.
func (s *Service) findByName(ctx context.Context, name, op string) (*file, error) {
	q := url.Values{}
	q.Set("spaces", "appDataFolder")
	q.Set("q", fmt.Sprintf("name = '%s' and trashed = false", strings.ReplaceAll(name, "'", `\'`)))
	q.Set("fields", "files(id,name,modifiedTime,trashed,mimeType)")

	var fl fileList
	if err := s.getJSON(ctx, s.base+"/files?"+q.Encode(), &fl, op, name); err != nil {
		return nil, err
	}
	if len(fl.Files) == 0 {
		return nil, drive.NewError(drive.KindNotFound, op, name, nil)
	}
	s.rememberName(fl.Files[0].ID, fl.Files[0].Name)
	return &fl.Files[0], nil
}

// Changes pulls the change feed since the given page token, exhausting
// pagination. Without a token it establishes a fresh baseline and returns
// no entries.
func (s *Service) Changes(ctx context.Context, token string) ([]drive.Entry, string, error) {
	if token == "" {
		var start startPageToken
		if err := s.getJSON(ctx, s.base+"/changes/startPageToken", &start, "changes", ""); err != nil {
			return nil, "", err
		}
		return nil, start.StartPageToken, nil
	}

	var entries []drive.Entry
	pageToken := token
	newToken := token

	for pageToken != "" {
		q := url.Values{}
		q.Set("pageToken", pageToken)
		q.Set("spaces", "appDataFolder")
		q.Set("fields", "changes(fileId,removed,file(id,name,modifiedTime,trashed,mimeType)),nextPageToken,newStartPageToken")

		var cl changeList
		if err := s.getJSON(ctx, s.base+"/changes?"+q.Encode(), &cl, "changes", ""); err != nil {
			return nil, "", err
		}
		for _, c := range cl.Changes {
			if c.File != nil {
				s.rememberName(c.File.ID, c.File.Name)
				entries = append(entries, c.File.toEntry(c.Removed))
			} else if c.Removed {
				entries = append(entries, drive.Entry{
					ID:      c.FileID,
					Name:    s.rememberedName(c.FileID),
					Deleted: true,
					File:    true,
				})
			}
		}
		if cl.NewStartPageToken != "" {
			newToken = cl.NewStartPageToken
		}
		pageToken = cl.NextPageToken
	}

	return entries, newToken, nil
}

// Download fetches a file's content by name.
func (s *Service) Download(ctx context.Context, name string, format drive.Format) ([]byte, error) {
	f, err := s.findByName(ctx, name, "download")
	if err != nil {
		return nil, err
	}
	return s.do(ctx, http.MethodGet, s.base+"/files/"+f.ID+"?alt=media", nil, "", "download", name)
}

// Upload creates or replaces a file by name in the appDataFolder.
func (s *Service) Upload(ctx context.Context, name string, content []byte) (*drive.Entry, error) {
	f, err := s.findByName(ctx, name, "upload")
	if err != nil {
		if !drive.IsNotFound(err) {
			return nil, err
		}
		meta, _ := json.Marshal(map[string]any{
			"name":    name,
			"parents": []string{"appDataFolder"},
		})
		data, err := s.do(ctx, http.MethodPost, s.base+"/files", bytes.NewReader(meta), "application/json; charset=utf-8", "upload", name)
		if err != nil {
			return nil, err
		}
		var created file
		if err := json.Unmarshal(data, &created); err != nil {
			return nil, fmt.Errorf("upload %s: decoding response: %w", name, err)
		}
		f = &created
	}

	data, err := s.do(ctx, http.MethodPatch, s.upload+"/files/"+f.ID+"?uploadType=media", bytes.NewReader(content), "application/json; charset=utf-8", "upload", name)
	if err != nil {
		return nil, err
	}
	var updated file
	if err := json.Unmarshal(data, &updated); err != nil {
		return nil, fmt.Errorf("upload %s: decoding response: %w", name, err)
	}
	if updated.Name == "" {
		updated.Name = name
	}
	s.rememberName(updated.ID, updated.Name)
	entry := updated.toEntry(false)
	return &entry, nil
}

// Delete removes a file by name.
func (s *Service) Delete(ctx context.Context, name string) error {
	f, err := s.findByName(ctx, name, "delete")
	if err != nil {
		return err
	}
	_, err = s.do(ctx, http.MethodDelete, s.base+"/files/"+f.ID, nil, "", "delete", name)
	return err
}

// Children lists the files in the appDataFolder, following paging.
func (s *Service) Children(ctx context.Context) ([]drive.Entry, error) {
	var entries []drive.Entry
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("spaces", "appDataFolder")
		q.Set("fields", "files(id,name,modifiedTime,trashed,mimeType),nextPageToken")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var fl fileList
		if err := s.getJSON(ctx, s.base+"/files?"+q.Encode(), &fl, "children", ""); err != nil {
			return nil, err
		}
		for i := range fl.Files {
			s.rememberName(fl.Files[i].ID, fl.Files[i].Name)
			entries = append(entries, fl.Files[i].toEntry(false))
		}
		if fl.NextPageToken == "" {
			return entries, nil
		}
		pageToken = fl.NextPageToken
	}
}

// Permissions is not available for appDataFolder files.
func (s *Service) Permissions(ctx context.Context, name string) ([]drive.Permission, error) {
	return nil, drive.NewError(drive.KindUnsupported, "permissions", name, nil)
}

// CreateShareLink is not available for appDataFolder files.
func (s *Service) CreateShareLink(ctx context.Context, name string) (string, error) {
	return "", drive.NewError(drive.KindUnsupported, "createShareLink", name, nil)
}

// RemoveShareLink is not available for appDataFolder files.
func (s *Service) RemoveShareLink(ctx context.Context, name, permissionID string) error {
	return drive.NewError(drive.KindUnsupported, "removeShareLink", name, nil)
}

// SharedMetadata is not supported by this backend.
func (s *Service) SharedMetadata(ctx context.Context, shareURL string) (*drive.Entry, error) {
	return nil, drive.NewError(drive.KindUnsupported, "sharedMetadata", shareURL, nil)
}

// DownloadShared is not supported by this backend.
func (s *Service) DownloadShared(ctx context.Context, shareURL string, format drive.Format) ([]byte, error) {
	return nil, drive.NewError(drive.KindUnsupported, "downloadShared", shareURL, nil)
}

// UploadShared is not supported by this backend.
func (s *Service) UploadShared(ctx context.Context, shareURL string, content []byte) error {
	return drive.NewError(drive.KindUnsupported, "uploadShared", shareURL, nil)
}
