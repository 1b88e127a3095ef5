package transfer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/stonefire/cloudsync/internal/blob"
	"github.com/stonefire/cloudsync/internal/chunk"
	"github.com/stonefire/cloudsync/internal/delta"
	"github.com/stonefire/cloudsync/internal/reconcile"
	"github.com/stonefire/cloudsync/internal/syncerr"
)

const (
	DefaultLocatorMaxAge = 30 * time.Minute
	abortTimeout         = 30 * time.Second
	defaultContentType   = "application/octet-stream"
)

// Source reads file content from the remote file host.
type Source interface {
	DownloadLocator(ctx context.Context, token, itemID string) (string, error)
	ReadRange(ctx context.Context, locator string, r chunk.Range) ([]byte, error)
	ReadAll(ctx context.Context, locator string) ([]byte, error)
}

type Options struct {
	ChunkSize     int64
	MaxParts      int
	LocatorMaxAge time.Duration
	// VerifySize re-reads the object size after a multipart upload completes.
	VerifySize bool
}

type Result struct {
	Key      string
	Size     int64
	Strategy reconcile.Strategy
	Parts    int
	Took     time.Duration
}

// Engine copies single files from the source to the destination store.
// Chunks of one file are moved strictly in order, one at a time.
type Engine struct {
	source Source
	store  blob.Store
	opts   Options
	now    func() time.Time
}

func NewEngine(source Source, store blob.Store, opts *Options) *Engine {
	o := *opts
	if o.ChunkSize <= 0 {
		o.ChunkSize = chunk.DefaultChunkSize
	}
	if o.MaxParts <= 0 {
		o.MaxParts = chunk.MaxParts
	}
	if o.LocatorMaxAge <= 0 {
		o.LocatorMaxAge = DefaultLocatorMaxAge
	}
	return &Engine{
		source: source,
		store:  store,
		opts:   o,
		now:    time.Now,
	}
}

func (e *Engine) ChunkSize() int64 {
	return e.opts.ChunkSize
}

// Transfer copies rec to the destination key rec.Path.
func (e *Engine) Transfer(ctx context.Context, tokens delta.TokenSource, rec delta.ChangeRecord) (*Result, error) {
	start := e.now()
	strategy := reconcile.StrategyFor(rec, e.opts.ChunkSize)

	var parts int
	var err error
	if strategy == reconcile.SingleShot {
		parts, err = 1, e.single(ctx, tokens, rec)
	} else {
		parts, err = e.multipart(ctx, tokens, rec)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		Key:      rec.Path,
		Size:     rec.Size,
		Strategy: strategy,
		Parts:    parts,
		Took:     e.now().Sub(start),
	}
	slog.Info("transfer complete", "key", res.Key, "size", humanize.IBytes(uint64(res.Size)), "strategy", strategy, "parts", parts, "took", res.Took)
	return res, nil
}

func (e *Engine) single(ctx context.Context, tokens delta.TokenSource, rec delta.ChangeRecord) error {
	token, err := tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	locator, err := e.source.DownloadLocator(ctx, token, rec.ID)
	if err != nil {
		return err
	}

	data, err := e.source.ReadAll(ctx, locator)
	if err != nil {
		return err
	}
	if int64(len(data)) != rec.Size {
		return syncerr.Integrity("ReadAll", rec.Path, fmt.Errorf("read %d bytes, expected %d", len(data), rec.Size))
	}

	contentType := rec.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	_, err = e.store.PutObject(ctx, &blob.PutObjectParams{
		Key:         rec.Path,
		Size:        rec.Size,
		ModifiedAt:  rec.ModifiedUnix(),
		ContentType: contentType,
		Body:        bytes.NewReader(data),
	})
	return err
}

func (e *Engine) multipart(ctx context.Context, tokens delta.TokenSource, rec delta.ChangeRecord) (int, error) {
	if err := chunk.CheckCapacity(rec.Size, e.opts.ChunkSize, e.opts.MaxParts); err != nil {
		return 0, syncerr.Protocol("CheckCapacity", rec.Path, err)
	}
	ranges, err := chunk.Plan(rec.Size, e.opts.ChunkSize)
	if err != nil {
		return 0, syncerr.Protocol("Plan", rec.Path, err)
	}

	session, err := e.store.CreateMultipartUpload(ctx, &blob.CreateMultipartParams{
		Key:         rec.Path,
		ModifiedAt:  rec.ModifiedUnix(),
		ContentType: contentTypeByName(rec),
	})
	if err != nil {
		return 0, err
	}

	if err := e.uploadParts(ctx, tokens, rec, session, ranges); err != nil {
		e.abort(ctx, session)
		return 0, err
	}

	if _, err := e.store.CompleteMultipartUpload(ctx, session, len(ranges)); err != nil {
		e.abort(ctx, session)
		return 0, err
	}

	if e.opts.VerifySize {
		info, err := e.store.HeadObject(ctx, rec.Path)
		if err != nil {
			return 0, err
		}
		if info == nil || info.Size == nil || *info.Size != rec.Size {
			return 0, syncerr.Integrity("HeadObject", rec.Path, fmt.Errorf("stored object size does not match %d", rec.Size))
		}
	}

	return len(ranges), nil
}

func (e *Engine) uploadParts(ctx context.Context, tokens delta.TokenSource, rec delta.ChangeRecord, session *blob.UploadSession, ranges []chunk.Range) error {
	var locator string
	var locatorAt time.Time

	for _, r := range ranges {
		token, err := tokens.AccessToken(ctx)
		if err != nil {
			return err
		}

		if locator == "" || e.now().Sub(locatorAt) > e.opts.LocatorMaxAge {
			if locator != "" {
				slog.Debug("refreshing download locator", "key", rec.Path, "part", r.Part)
			}
			locator, err = e.source.DownloadLocator(ctx, token, rec.ID)
			if err != nil {
				return err
			}
			locatorAt = e.now()
		}

		data, err := e.source.ReadRange(ctx, locator, r)
		if err != nil {
			return err
		}
		if int64(len(data)) != r.Len() {
			return syncerr.Integrity("ReadRange", rec.Path, fmt.Errorf("part %d: read %d bytes, expected %d", r.Part, len(data), r.Len()))
		}

		if err := e.store.UploadPart(ctx, session, r.Part, data); err != nil {
			return err
		}
		slog.Debug("part uploaded", "key", rec.Path, "part", r.Part, "of", len(ranges), "size", humanize.IBytes(uint64(len(data))))
	}
	return nil
}

// abort releases the parts of a failed upload. It runs even if ctx was cancelled.
func (e *Engine) abort(ctx context.Context, session *blob.UploadSession) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	if err := e.store.AbortMultipartUpload(ctx, session); err != nil {
		slog.Warn("abort multipart upload", "key", session.Key, "uploadId", session.UploadID, "error", err)
	}
}

func contentTypeByName(rec delta.ChangeRecord) string {
	if rec.ContentType != "" {
		return rec.ContentType
	}
	if ct := mime.TypeByExtension(path.Ext(rec.Path)); ct != "" {
		return ct
	}
	return defaultContentType
}
