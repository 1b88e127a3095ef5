package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stonefire/cloudsync/internal/syncerr"
	"golang.org/x/oauth2"
)

const (
	DefaultPollInterval = 60 * time.Second
	DefaultAuthURL      = "https://login.microsoftonline.com/consumers/oauth2/v2.0/authorize"
	DefaultTokenURL     = "https://login.microsoftonline.com/consumers/oauth2/v2.0/token"
)

var DefaultScopes = []string{
	"offline_access",
	"Files.Read",
	"Files.Read.All",
	"Files.ReadWrite",
	"Files.ReadWrite.All",
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	TokensPath   string
	PollInterval time.Duration
	HTTPClient   *http.Client
}

// Manager owns the credential lifecycle: waiting for the first grant,
// refreshing expired tokens and invalidating the store when the authority
// rejects a refresh.
type Manager struct {
	store        *Store
	oauth        *oauth2.Config
	httpClient   *http.Client
	pollInterval time.Duration
	now          func() time.Time
	mu           sync.Mutex
}

func NewManager(cfg *Config) *Manager {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Manager{
		store: NewStore(cfg.TokensPath),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:   httpClient,
		pollInterval: poll,
		now:          time.Now,
	}
}

func (m *Manager) Store() *Store {
	return m.store
}

// Load returns the persisted credential set, polling until it exists or ctx ends.
// A missing file is reported once per call.
func (m *Manager) Load(ctx context.Context) (*CredentialSet, error) {
	warned := false
	for {
		set, err := m.store.Load()
		if err == nil {
			return set, nil
		}
		if !errors.Is(err, ErrNotAuthorized) {
			return nil, err
		}

		if !warned {
			slog.Warn("token file missing, authorization required", "path", m.store.Path(), "poll", m.pollInterval)
			warned = true
		}

		timer := time.NewTimer(m.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// ValidToken returns a usable access token, refreshing the set first if it has expired.
// The returned set replaces the caller's copy.
func (m *Manager) ValidToken(ctx context.Context, set *CredentialSet) (string, *CredentialSet, error) {
	if set == nil {
		return "", nil, ErrNotAuthorized
	}
	if !set.IsExpired(m.now()) {
		return set.AccessToken, set, nil
	}

	refreshed, err := m.Refresh(ctx, set)
	if err != nil {
		return "", set, err
	}
	return refreshed.AccessToken, refreshed, nil
}

// Refresh trades the refresh token for a new access token and persists the result.
// When the authority rejects the refresh token the store is removed and the
// returned error matches ErrRefreshRejected.
func (m *Manager) Refresh(ctx context.Context, set *CredentialSet) (*CredentialSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: set.RefreshToken})

	tok, err := src.Token()
	if err != nil {
		return nil, m.classify("Refresh", err)
	}

	next := m.fromToken(tok, set)
	if err := m.store.Save(next); err != nil {
		return nil, err
	}

	slog.Debug("access token refreshed", "credentials", next)
	return next, nil
}

// Exchange trades an authorization code for the first credential set and persists it.
func (m *Manager) Exchange(ctx context.Context, code string) (*CredentialSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, syncerr.AuthRejected("Exchange", err)
		}
		return nil, syncerr.Network("Exchange", "", err)
	}

	set := m.fromToken(tok, nil)
	if err := m.store.Save(set); err != nil {
		return nil, err
	}

	slog.Info("authorization code exchanged", "credentials", set)
	return set, nil
}

// AuthCodeURL is where the operator is sent to grant access.
func (m *Manager) AuthCodeURL(state string) string {
	return m.oauth.AuthCodeURL(state)
}

func (m *Manager) classify(op string, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		if strings.Contains(err.Error(), "missing access_token") {
			return syncerr.Protocol(op, "", err)
		}
		return syncerr.Network(op, "", err)
	}

	if rmErr := m.store.Remove(); rmErr != nil {
		slog.Error("failed to remove rejected credentials", "path", m.store.Path(), "error", rmErr)
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	return syncerr.AuthRejected(op, fmt.Errorf("%w: status %d %s", ErrRefreshRejected, status, re.ErrorCode))
}

func (m *Manager) fromToken(tok *oauth2.Token, prev *CredentialSet) *CredentialSet {
	now := m.now()

	expiresIn := tok.ExpiresIn
	if expiresIn <= 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(tok.Expiry.Sub(now).Round(time.Second) / time.Second)
	}

	scope, _ := tok.Extra("scope").(string)
	set := &CredentialSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scope:        scope,
		ExpiresIn:    expiresIn,
		GrantedAt:    now,
		RefreshedAt:  now,
	}

	if prev != nil {
		set.GrantedAt = prev.GrantedAt
		if set.RefreshToken == "" {
			set.RefreshToken = prev.RefreshToken
		}
		if set.Scope == "" {
			set.Scope = prev.Scope
		}
	}
	return set
}
