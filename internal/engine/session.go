package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stonefire/cloudsync/internal/blob"
	"github.com/stonefire/cloudsync/internal/credentials"
	"github.com/stonefire/cloudsync/internal/delta"
	"github.com/stonefire/cloudsync/internal/reconcile"
	"github.com/stonefire/cloudsync/internal/transfer"
)

var ErrPassAlreadyRunning = errors.New("sync pass already running")

type Stage string

const (
	StageCredentials Stage = "credentials"
	StageChanges     Stage = "changes"
	StageInventory   Stage = "inventory"
	StageTransfer    Stage = "transfer"
	StageCursor      Stage = "cursor"
)

// StageError tags a pass failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage a pass error was raised in, or "".
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

type Config struct {
	Credentials *credentials.Manager
	Feed        *delta.Feed
	Cursors     *delta.CursorStore
	Store       blob.Store
	Transfer    *transfer.Engine
	Filter      *reconcile.Filter
}

// Session holds what outlives a single pass: the current credential set and
// the collaborators. It is the token source for the feed and transfer engine.
type Session struct {
	creds    *credentials.Manager
	feed     *delta.Feed
	cursors  *delta.CursorStore
	store    blob.Store
	transfer *transfer.Engine
	filter   *reconcile.Filter

	muPass sync.Mutex
	muSet  sync.Mutex
	set    *credentials.CredentialSet
}

func NewSession(cfg *Config) *Session {
	return &Session{
		creds:    cfg.Credentials,
		feed:     cfg.Feed,
		cursors:  cfg.Cursors,
		store:    cfg.Store,
		transfer: cfg.Transfer,
		filter:   cfg.Filter,
	}
}

// AccessToken returns a valid access token, refreshing the held credential set when it expired.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.muSet.Lock()
	defer s.muSet.Unlock()

	token, next, err := s.creds.ValidToken(ctx, s.set)
	if err != nil {
		return "", err
	}
	s.set = next
	return token, nil
}

func (s *Session) setCredentials(set *credentials.CredentialSet) {
	s.muSet.Lock()
	defer s.muSet.Unlock()
	s.set = set
}

var _ delta.TokenSource = (*Session)(nil)
