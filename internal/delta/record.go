package delta

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stonefire/cloudsync/internal/onedrive"
)

// ChangeRecord is a source item reported by the delta feed.
type ChangeRecord struct {
	ID          string
	Path        string
	Size        int64
	ModifiedAt  time.Time
	ContentType string
	IsFile      bool
	Deleted     bool
}

// ModifiedUnix is the modification time as whole seconds since the epoch,
// the form stored alongside the destination object.
func (c ChangeRecord) ModifiedUnix() int64 {
	return c.ModifiedAt.Unix()
}

// Transferable reports whether the record names a live file with a usable path.
func (c ChangeRecord) Transferable() bool {
	return c.IsFile && !c.Deleted && c.Path != ""
}

func recordFromItem(item *onedrive.DriveItem) ChangeRecord {
	return ChangeRecord{
		ID:          item.ID,
		Path:        item.RelativePath(),
		Size:        item.Size,
		ModifiedAt:  item.LastModifiedDateTime,
		ContentType: item.MimeType(),
		IsFile:      item.File != nil && item.Folder == nil,
		Deleted:     item.Deleted != nil,
	}
}

// Dedupe keeps the last occurrence of each item ID, preserving first-seen order.
func Dedupe(records []ChangeRecord) []ChangeRecord {
	last := make(map[string]int, len(records))
	for i, r := range records {
		last[r.ID] = i
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]ChangeRecord, 0, len(last))
	for _, r := range records {
		if !seen.Add(r.ID) {
			continue
		}
		out = append(out, records[last[r.ID]])
	}
	return out
}

// Transferable filters out deleted, folder and path-less records.
func Transferable(records []ChangeRecord) []ChangeRecord {
	out := make([]ChangeRecord, 0, len(records))
	for _, r := range records {
		if r.Transferable() {
			out = append(out, r)
		}
	}
	return out
}
