package onedrive

import (
	"time"

	"github.com/styrit/listsync/internal/drive"
)

// driveItem is the OneDrive wire representation of a file or folder. Delta
// feed entries and single-item responses share this shape.
type driveItem struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	ETag                 string     `json:"eTag"`
	LastModifiedDateTime time.Time  `json:"lastModifiedDateTime"`
	File                 *fileFacet `json:"file"`
	Deleted              *delFacet  `json:"deleted"`
	Shared               *shared    `json:"shared"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type delFacet struct {
	State string `json:"state"`
}

type shared struct {
	Owner *identitySet `json:"owner"`
}

type identitySet struct {
	User *identity `json:"user"`
}

type identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// deltaPage is one page of the view.delta feed.
type deltaPage struct {
	Value      []driveItem `json:"value"`
	DeltaToken string      `json:"@delta.token"`
	NextLink   string      `json:"@odata.nextLink"`
}

// listPage is one page of a children or search result.
type listPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// apiError is the OneDrive error envelope.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// permission is the OneDrive wire representation of a sharing permission.
type permission struct {
	ID      string   `json:"id"`
	Roles   []string `json:"roles"`
	ShareID string   `json:"shareId"`
	Link    *struct {
		WebURL string `json:"webUrl"`
		Type   string `json:"type"`
	} `json:"link"`
}

type permissionList struct {
	Value []permission `json:"value"`
}

// toEntry maps a OneDrive item to the provider-neutral entry.
func (it *driveItem) toEntry() drive.Entry {
	e := drive.Entry{
		ID:       it.ID,
		Name:     it.Name,
		Modified: it.LastModifiedDateTime,
		Deleted:  it.Deleted != nil,
		File:     it.File != nil,
		ETag:     it.ETag,
	}
	if it.Shared != nil && it.Shared.Owner != nil && it.Shared.Owner.User != nil {
		e.OwnerID = it.Shared.Owner.User.ID
		e.OwnerName = it.Shared.Owner.User.DisplayName
	}
	return e
}
