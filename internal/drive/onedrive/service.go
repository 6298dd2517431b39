package onedrive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/styrit/listsync/internal/drive"
)

// Changes pulls the delta feed since the given token, following next links
// until the feed is exhausted. Without a token it requests the latest full
// state.
func (s *Service) Changes(ctx context.Context, token string) ([]drive.Entry, string, error) {
	pageURL := s.rootURL("/view.delta?token=latest")
	if token != "" {
		pageURL = s.rootURL("/view.delta?token=" + token)
	}

	var entries []drive.Entry
	newToken := token

	for pageURL != "" {
		var page deltaPage
		if err := s.getJSON(ctx, pageURL, &page, "changes", ""); err != nil {
			return nil, "", err
		}
		if page.DeltaToken != "" {
			newToken = page.DeltaToken
		}
		for i := range page.Value {
			entries = append(entries, page.Value[i].toEntry())
		}
		if page.NextLink != "" {
			s.logger.Debug("more delta pages to download", zap.Int("entries", len(entries)))
		}
		pageURL = page.NextLink
	}

	return entries, newToken, nil
}

// Download fetches a file's content from the application folder.
func (s *Service) Download(ctx context.Context, name string, format drive.Format) ([]byte, error) {
	return s.do(ctx, http.MethodGet, s.itemURL(name, "/content"), nil, "", true, "download", name)
}

// Upload creates or replaces a file in the application folder.
func (s *Service) Upload(ctx context.Context, name string, content []byte) (*drive.Entry, error) {
	data, err := s.putContent(ctx, s.itemURL(name, "/content"), content, true, "upload", name)
	if err != nil {
		return nil, err
	}
	var it driveItem
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("upload %s: decoding response: %w", name, err)
	}
	entry := it.toEntry()
	return &entry, nil
}

// Delete removes a file from the application folder.
func (s *Service) Delete(ctx context.Context, name string) error {
	_, err := s.do(ctx, http.MethodDelete, s.itemURL(name, ""), nil, "", true, "delete", name)
	return err
}

// Children lists the files in the application folder, following paging.
func (s *Service) Children(ctx context.Context) ([]drive.Entry, error) {
	pageURL := s.rootURL("/children")

	var entries []drive.Entry
	for pageURL != "" {
		var page listPage
		if err := s.getJSON(ctx, pageURL, &page, "children", ""); err != nil {
			return nil, err
		}
		for i := range page.Value {
			entries = append(entries, page.Value[i].toEntry())
		}
		pageURL = page.NextLink
	}
	return entries, nil
}

// Permissions returns the sharing permissions of a file.
func (s *Service) Permissions(ctx context.Context, name string) ([]drive.Permission, error) {
	var pl permissionList
	if err := s.getJSON(ctx, s.itemURL(name, "/permissions"), &pl, "permissions", name); err != nil {
		return nil, err
	}
	perms := make([]drive.Permission, 0, len(pl.Value))
	for _, p := range pl.Value {
		dp := drive.Permission{ID: p.ID, Roles: p.Roles, ShareID: p.ShareID}
		if p.Link != nil {
			dp.Link = p.Link.WebURL
		}
		perms = append(perms, dp)
	}
	return perms, nil
}

// CreateShareLink creates a public edit link for a file.
func (s *Service) CreateShareLink(ctx context.Context, name string) (string, error) {
	body := strings.NewReader(`{"type":"edit"}`)
	data, err := s.do(ctx, http.MethodPost, s.itemURL(name, "/oneDrive.createLink"), body, "application/json", true, "createShareLink", name)
	if err != nil {
		return "", err
	}
	var p permission
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("createShareLink %s: decoding response: %w", name, err)
	}
	if p.Link == nil || p.Link.WebURL == "" {
		return "", fmt.Errorf("createShareLink %s: response carries no link", name)
	}
	return p.Link.WebURL, nil
}

// RemoveShareLink revokes a sharing permission of a file.
func (s *Service) RemoveShareLink(ctx context.Context, name, permissionID string) error {
	_, err := s.do(ctx, http.MethodDelete, s.itemURL(name, "/permissions/"+permissionID), nil, "", true, "removeShareLink", name)
	return err
}

// SharedMetadata resolves a public share URL to its entry. No per-user
// authentication is required.
func (s *Service) SharedMetadata(ctx context.Context, shareURL string) (*drive.Entry, error) {
	data, err := s.do(ctx, http.MethodGet, s.shareURLPath(shareURL, ""), nil, "", false, "sharedMetadata", shareURL)
	if err != nil {
		return nil, err
	}
	var it driveItem
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("sharedMetadata: decoding response: %w", err)
	}
	entry := it.toEntry()
	return &entry, nil
}

// DownloadShared fetches the content behind a public share URL. No
// per-user authentication is required.
func (s *Service) DownloadShared(ctx context.Context, shareURL string, format drive.Format) ([]byte, error) {
	return s.do(ctx, http.MethodGet, s.shareURLPath(shareURL, "/content"), nil, "", false, "downloadShared", shareURL)
}

// UploadShared replaces the content behind a public share URL. No
// per-user authentication is required.
func (s *Service) UploadShared(ctx context.Context, shareURL string, content []byte) error {
	_, err := s.putContent(ctx, s.shareURLPath(shareURL, "/content"), content, false, "uploadShared", shareURL)
	return err
}
