package credentials

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/stonefire/cloudsync/internal/utils"
)

// Store persists a CredentialSet as a JSON file readable only by the owner.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Exists() bool {
	return utils.FileExists(s.path)
}

// Load reads the credential file. It returns ErrNotAuthorized when the file does not exist.
func (s *Store) Load() (*CredentialSet, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotAuthorized
	} else if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var set CredentialSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode credentials %q: %w", s.path, err)
	}
	if set.RefreshToken == "" {
		return nil, fmt.Errorf("decode credentials %q: refresh token missing", s.path)
	}
	return &set, nil
}

func (s *Store) Save(set *CredentialSet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Remove deletes the credential file. A missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
