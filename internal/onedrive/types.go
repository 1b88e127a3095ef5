package onedrive

import (
	"strings"
	"time"
)

// drive-root prefix of parentReference.path
const rootPathPrefix = "/drive/root:"

// DeltaPage is one page of the drive delta feed.
// Exactly one of NextLink and DeltaLink is set on a well-formed page.
type DeltaPage struct {
	Value     []DriveItem `json:"value"`
	NextLink  string      `json:"@odata.nextLink,omitempty"`
	DeltaLink string      `json:"@odata.deltaLink,omitempty"`
}

type DriveItem struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Size                 int64          `json:"size"`
	LastModifiedDateTime time.Time      `json:"lastModifiedDateTime"`
	ParentReference      *ItemReference `json:"parentReference,omitempty"`
	File                 *FileFacet     `json:"file,omitempty"`
	Folder               *FolderFacet   `json:"folder,omitempty"`
	Deleted              *DeletedFacet  `json:"deleted,omitempty"`
}

type ItemReference struct {
	DriveID string `json:"driveId,omitempty"`
	ID      string `json:"id,omitempty"`
	Path    string `json:"path,omitempty"`
}

type FileFacet struct {
	MimeType string `json:"mimeType,omitempty"`
}

type FolderFacet struct {
	ChildCount int `json:"childCount"`
}

type DeletedFacet struct {
	State string `json:"state,omitempty"`
}

// RelativePath returns the item path relative to the drive root, without a leading slash.
// It returns "" when the item carries no parent path (deleted items, the root itself).
func (d *DriveItem) RelativePath() string {
	if d.ParentReference == nil || d.ParentReference.Path == "" || d.Name == "" {
		return ""
	}

	parent := strings.TrimPrefix(d.ParentReference.Path, rootPathPrefix)
	parent = strings.Trim(parent, "/")
	if parent == "" {
		return d.Name
	}
	return parent + "/" + d.Name
}

func (d *DriveItem) MimeType() string {
	if d.File == nil {
		return ""
	}
	return d.File.MimeType
}

// graphError is the error envelope returned by the Graph API.
type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
