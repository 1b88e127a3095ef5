package delta

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/stonefire/cloudsync/internal/utils"
)

// Cursor is the opaque delta link marking how far the feed has been consumed.
type Cursor struct {
	Value      string    `json:"cursor"`
	CapturedAt time.Time `json:"capturedAt"`
}

// CursorStore persists the cursor between passes.
type CursorStore struct {
	path string
}

func NewCursorStore(path string) *CursorStore {
	return &CursorStore{path: path}
}

func (s *CursorStore) Path() string {
	return s.path
}

// Load returns the saved cursor, or nil when none has been saved yet.
func (s *CursorStore) Load() (*Cursor, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode cursor %q: %w", s.path, err)
	}
	if c.Value == "" {
		return nil, nil
	}
	return &c, nil
}

func (s *CursorStore) Save(c Cursor) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}

// Reset forgets the saved cursor so the next pass enumerates from the root.
func (s *CursorStore) Reset() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cursor: %w", err)
	}
	return nil
}
