package delta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stonefire/cloudsync/internal/onedrive"
	"github.com/stonefire/cloudsync/internal/syncerr"
)

// ErrCursorExpired is returned when a saved cursor is no longer accepted by the source.
var ErrCursorExpired = onedrive.ErrDeltaExpired

var errNoLink = errors.New("page carries neither next link nor delta link")

// TokenSource hands out a valid access token, refreshing it when needed.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type PageFetcher interface {
	RootDeltaURL() string
	DeltaPage(ctx context.Context, token, pageURL string) (*onedrive.DeltaPage, error)
}

// Feed walks the source delta feed from a cursor to the current state.
type Feed struct {
	pages PageFetcher
	now   func() time.Time
}

func NewFeed(pages PageFetcher) *Feed {
	return &Feed{pages: pages, now: time.Now}
}

// Changes returns every change since cursor (or every file when cursor is nil)
// and the cursor to persist once the batch has been applied. On any error no
// cursor is returned and the caller must keep its old one.
func (f *Feed) Changes(ctx context.Context, tokens TokenSource, cursor *Cursor) ([]ChangeRecord, Cursor, error) {
	pageURL := f.pages.RootDeltaURL()
	if cursor != nil && cursor.Value != "" {
		pageURL = cursor.Value
	}

	var records []ChangeRecord
	visited := make(map[string]struct{})

	for pageNum := 1; ; pageNum++ {
		if _, dup := visited[pageURL]; dup {
			return nil, Cursor{}, syncerr.Protocol("DeltaPage", "", fmt.Errorf("next link loops back to page %q", pageURL))
		}
		visited[pageURL] = struct{}{}

		token, err := tokens.AccessToken(ctx)
		if err != nil {
			return nil, Cursor{}, err
		}

		page, err := f.pages.DeltaPage(ctx, token, pageURL)
		if err != nil {
			return nil, Cursor{}, err
		}

		for i := range page.Value {
			records = append(records, recordFromItem(&page.Value[i]))
		}
		slog.Debug("delta page", "page", pageNum, "items", len(page.Value))

		switch {
		case page.NextLink != "":
			pageURL = page.NextLink
		case page.DeltaLink != "":
			next := Cursor{Value: page.DeltaLink, CapturedAt: f.now().UTC()}
			return records, next, nil
		default:
			return nil, Cursor{}, syncerr.Protocol("DeltaPage", "", errNoLink)
		}
	}
}
