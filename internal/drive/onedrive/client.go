// Package onedrive implements the drive gateway on the OneDrive REST API.
// Lists live as individual files in an application folder; shared lists
// are addressed through encoded share ids that need no per-user login.
package onedrive

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/drive"
)

const apiBase = "https://api.onedrive.com/v1.0"

// rootPath is the application folder under the user's drive root.
const (
	rootPath    = "ProgramData/Listsync"
	devRootPath = "ProgramData/ListsyncDev"
)

// Service talks to OneDrive. It implements drive.Service.
type Service struct {
	auth       drive.Auth
	httpClient *http.Client
	base       string
	root       string
	logger     *zap.Logger
}

// New creates a OneDrive gateway. With dev set, files live in a separate
// development folder so test data never mixes with production lists.
func New(auth drive.Auth, dev bool, logger *zap.Logger) *Service {
	root := rootPath
	if dev {
		root = devRootPath
	}
	return &Service{
		auth:       auth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		base:       apiBase,
		root:       root,
		logger:     logger,
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (s *Service) SetBaseURL(base string) { s.base = strings.TrimRight(base, "/") }

// itemURL addresses a file in the application folder by name.
func (s *Service) itemURL(name, suffix string) string {
	u := fmt.Sprintf("%s/drive/root:/%s/%s", s.base, s.root, url.PathEscape(name))
	if suffix != "" {
		u += ":" + suffix
	}
	return u
}

// rootURL addresses the application folder itself.
func (s *Service) rootURL(suffix string) string {
	return fmt.Sprintf("%s/drive/root:/%s:%s", s.base, s.root, suffix)
}

// shareID encodes a public share URL into the OneDrive "u!" share id.
func shareID(shareURL string) string {
	enc := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(shareURL))
	return "u!" + enc
}

// shareURLPath addresses the root item behind a share id.
func (s *Service) shareURLPath(shareURL, suffix string) string {
	return fmt.Sprintf("%s/shares/%s/root%s", s.base, shareID(shareURL), suffix)
}

// do performs one authenticated request and returns the raw response body.
// Failures are classified into the gateway error taxonomy.
func (s *Service) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string, authenticated bool, op, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authenticated {
		token := s.auth.Token()
		if token == "" {
			return nil, drive.NewError(drive.KindAuthRequired, op, name, nil)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

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

	return nil, s.classify(resp.StatusCode, data, op, name)
}

// classify maps an error response to a categorized gateway error.
func (s *Service) classify(status int, body []byte, op, name string) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	code := ae.Error.Code

	err := fmt.Errorf("http %d: %s", status, code)

	switch {
	case code == "resyncRequired":
		return drive.NewError(drive.KindResyncRequired, op, name, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return drive.NewError(drive.KindAuthRequired, op, name, err)
	case status == http.StatusNotFound || status == http.StatusGone:
		return drive.NewError(drive.KindNotFound, op, name, err)
	case status == http.StatusInsufficientStorage || code == "quotaLimitReached":
		return drive.NewError(drive.KindQuotaExceeded, op, name, err)
	default:
		return drive.NewError(drive.KindUnknown, op, name, err)
	}
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (s *Service) getJSON(ctx context.Context, rawURL string, out any, op, name string) error {
	data, err := s.do(ctx, http.MethodGet, rawURL, nil, "", true, op, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

// putContent uploads raw bytes to an URL, optionally unauthenticated for
// shared files.
func (s *Service) putContent(ctx context.Context, rawURL string, content []byte, authenticated bool, op, name string) ([]byte, error) {
	return s.do(ctx, http.MethodPut, rawURL, bytes.NewReader(content), "application/json; charset=utf-8", authenticated, op, name)
}
