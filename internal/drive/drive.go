// Package drive defines the gateway contract to a remote file storage
// backend. Every backend normalizes its own paging, delta and share
// semantics to this surface, and classifies failures into the categorized
// error kinds of this package.
package drive

import (
	"context"
	"time"
)

// Entry describes one remote file as reported by a backend, either from a
// delta feed or from a single-file operation.
type Entry struct {
	// ID is the backend-assigned identifier of the file.
	ID string

	// Name is the file name including its extension.
	Name string

	// Modified is the remote last-modification time.
	Modified time.Time

	// Deleted marks an entry from a delta feed whose file was removed.
	Deleted bool

	// File reports whether the entry is a regular file (not a folder).
	File bool

	// ETag tracks the file content; unchanged metadata edits keep it.
	ETag string

	// OwnerID and OwnerName identify the owner of a shared file.
	OwnerID   string
	OwnerName string
}

// Permission describes a sharing permission on a remote file.
type Permission struct {
	ID      string
	Roles   []string
	ShareID string
	Link    string
}

// Format selects how a downloaded file's content is interpreted.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Service is the capability surface the sync engine consumes. One
// implementation exists per storage backend.
type Service interface {
	// Changes returns all entries changed since the given delta token,
	// transparently exhausting pagination, together with the token marking
	// the new baseline. An empty token requests the full state. A
	// ResyncRequired error means the token is no longer valid and the
	// caller must retry without one.
	Changes(ctx context.Context, token string) ([]Entry, string, error)

	// Download fetches a file's content by name.
	Download(ctx context.Context, name string, format Format) ([]byte, error)

	// Upload writes a file's content by name, creating or replacing it.
	Upload(ctx context.Context, name string, content []byte) (*Entry, error)

	// Delete removes a file by name.
	Delete(ctx context.Context, name string) error

	// Children lists the files in the application folder.
	Children(ctx context.Context) ([]Entry, error)

	// Permissions returns the sharing permissions of a file.
	Permissions(ctx context.Context, name string) ([]Permission, error)

	// CreateShareLink creates (or returns the existing) public edit link
	// for a file.
	CreateShareLink(ctx context.Context, name string) (string, error)

	// RemoveShareLink revokes a sharing permission.
	RemoveShareLink(ctx context.Context, name, permissionID string) error

	// SharedMetadata resolves a public share URL to its entry without
	// per-user authentication.
	SharedMetadata(ctx context.Context, shareURL string) (*Entry, error)

	// DownloadShared fetches the content behind a public share URL without
	// per-user authentication.
	DownloadShared(ctx context.Context, shareURL string, format Format) ([]byte, error)

	// UploadShared replaces the content behind a public share URL without
	// per-user authentication.
	UploadShared(ctx context.Context, shareURL string, content []byte) error
}

// Auth is the authentication capability a provider carries. Interactive
// login is delegated to the implementation; silent login only uses stored
// tokens.
type Auth interface {
	// Login ensures a valid token. With silent set, it must not require
	// user interaction and reports false instead of failing when no stored
	// credential works. Non-silent login reports false (not an error) on
	// user cancellation.
	Login(ctx context.Context, silent bool) (bool, error)

	// Logout drops the session; a full logout also discards the stored
	// refresh token.
	Logout(full bool) error

	// Token returns the current access token, or "" when logged out.
	Token() string

	// LoggedIn reports whether a usable access token is present.
	LoggedIn() bool
}

// Provider bundles a storage backend with its authentication capability.
type Provider struct {
	ID          string
	Name        string
	Auth        Auth
	Service     Service
	SyncSupport bool
}
