package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stonefire/cloudsync/internal/authserver"
	"github.com/stonefire/cloudsync/internal/blob"
	"github.com/stonefire/cloudsync/internal/config"
	"github.com/stonefire/cloudsync/internal/credentials"
	"github.com/stonefire/cloudsync/internal/delta"
	"github.com/stonefire/cloudsync/internal/engine"
	"github.com/stonefire/cloudsync/internal/notify"
	"github.com/stonefire/cloudsync/internal/onedrive"
	"github.com/stonefire/cloudsync/internal/reconcile"
	"github.com/stonefire/cloudsync/internal/scheduler"
	"github.com/stonefire/cloudsync/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// Daemon wires the sync session, its schedule, the authorization listener
// and the mailer from one Config.
type Daemon struct {
	config    *config.Config
	workspace *Workspace
	creds     *credentials.Manager
	session   *engine.Session
	scheduler *scheduler.Scheduler
	auth      *authserver.Server
	mailer    *notify.Mailer
}

type Option func(*options)

type options struct {
	s3Client blob.S3API
	mailer   *notify.Mailer
}

// WithS3Client replaces the AWS client built from the blob config.
func WithS3Client(c blob.S3API) Option {
	return func(o *options) { o.s3Client = c }
}

// WithMailer hands the daemon a mailer whose Run loop it should own.
func WithMailer(m *notify.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Daemon, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ws, err := NewWorkspace(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	at, err := scheduler.ParseTimeOfDay(cfg.Sync.Time)
	if err != nil {
		return nil, err
	}
	chunkSize, err := cfg.Sync.ChunkBytes()
	if err != nil {
		return nil, err
	}
	filter, err := reconcile.NewFilter(cfg.Sync.Exclude)
	if err != nil {
		return nil, err
	}

	creds := credentials.NewManager(&credentials.Config{
		ClientID:     cfg.OneDrive.ClientID,
		ClientSecret: cfg.OneDrive.ClientSecret,
		RedirectURL:  cfg.OneDrive.RedirectURI,
		Scopes:       cfg.OneDrive.Scope,
		AuthURL:      cfg.OneDrive.AuthURL,
		TokenURL:     cfg.OneDrive.TokenURL,
		TokensPath:   cfg.OneDrive.TokensPath,
		PollInterval: cfg.Sync.PollInterval,
	})

	source := onedrive.New(&onedrive.Config{
		BaseURL: cfg.OneDrive.GraphURL,
		Timeout: cfg.Sync.HTTPTimeout,
	})

	var store *blob.S3Backend
	if o.s3Client != nil {
		store = blob.NewS3Backend(o.s3Client, &cfg.Blob)
	} else {
		store, err = blob.NewS3BackendWithConfig(ctx, &cfg.Blob, cfg.Sync.HTTPTimeout)
		if err != nil {
			return nil, fmt.Errorf("blob store: %w", err)
		}
	}

	session := engine.NewSession(&engine.Config{
		Credentials: creds,
		Feed:        delta.NewFeed(source),
		Cursors:     delta.NewCursorStore(cfg.Sync.CursorPath),
		Store:       store,
		Transfer: transfer.NewEngine(source, store, &transfer.Options{
			ChunkSize:     chunkSize,
			MaxParts:      cfg.Sync.MaxParts,
			LocatorMaxAge: cfg.Sync.LocatorMaxAge,
			VerifySize:    cfg.Sync.VerifySize,
		}),
		Filter: filter,
	})

	d := &Daemon{
		config:    cfg,
		workspace: ws,
		creds:     creds,
		session:   session,
		scheduler: scheduler.New(session, &scheduler.Config{At: at, RunOnStart: cfg.Sync.RunOnStart}),
		mailer:    o.mailer,
	}
	if cfg.AuthServer.Enabled {
		d.auth = authserver.New(&cfg.AuthServer, creds)
	}
	return d, nil
}

func (d *Daemon) Credentials() *credentials.Manager {
	return d.creds
}

// Start locks the data directory and runs until ctx is cancelled or a component fails.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("cloudsync daemon start", "dataDir", d.workspace.Root, "bucket", d.config.Blob.BucketName)

	if err := d.workspace.Lock(); err != nil {
		return err
	}
	defer d.workspace.Unlock()

	if !d.creds.Store().Exists() {
		d.warnUnauthorized()
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return d.scheduler.Run(egCtx)
	})

	if d.auth != nil {
		eg.Go(func() error {
			if err := d.auth.Start(egCtx); err != nil {
				return fmt.Errorf("failed to start authorization listener: %w", err)
			}
			return nil
		})
	}

	if d.mailer != nil {
		eg.Go(func() error {
			return d.mailer.Run(egCtx)
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("cloudsync daemon failure", "error", err)
		return err
	}

	slog.Info("cloudsync daemon stopped")
	return nil
}

// SyncOnce locks the data directory and runs a single pass.
func (d *Daemon) SyncOnce(ctx context.Context) (*engine.PassReport, error) {
	if err := d.workspace.Lock(); err != nil {
		return nil, err
	}
	defer d.workspace.Unlock()

	if d.mailer != nil {
		mctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			d.mailer.Run(mctx)
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	return d.session.RunPass(ctx)
}

func (d *Daemon) warnUnauthorized() {
	args := []any{"tokens", d.creds.Store().Path()}
	if d.auth != nil {
		scheme := "http"
		if d.config.AuthServer.CertFile != "" {
			scheme = "https"
		}
		args = append(args, "grant", scheme+"://"+d.config.AuthServer.Addr+"/grant")
	}
	slog.Warn("no credentials yet, visit the grant URL to authorize", args...)
}
