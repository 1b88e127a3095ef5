package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/stonefire/cloudsync/internal/blob"
	"github.com/stonefire/cloudsync/internal/delta"
	"github.com/stonefire/cloudsync/internal/reconcile"
	"github.com/stonefire/cloudsync/internal/syncerr"
)

type PassReport struct {
	ID          string
	Changes     int
	Planned     int
	Transferred int
	Failed      int
	Bytes       int64
	Resynced    bool
	CursorSaved bool
	Took        time.Duration
}

func (r *PassReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", r.ID),
		slog.Int("changes", r.Changes),
		slog.Int("planned", r.Planned),
		slog.Int("transferred", r.Transferred),
		slog.Int("failed", r.Failed),
		slog.String("bytes", humanize.IBytes(uint64(r.Bytes))),
		slog.Bool("cursorSaved", r.CursorSaved),
		slog.Duration("took", r.Took),
	)
}

// RunPass performs one full sync pass. The cursor is persisted only after every
// planned transfer succeeded; on any failure the next pass starts from the old cursor.
func (s *Session) RunPass(ctx context.Context) (*PassReport, error) {
	if !s.muPass.TryLock() {
		return nil, ErrPassAlreadyRunning
	}
	defer s.muPass.Unlock()

	tstart := time.Now()
	report := &PassReport{ID: uuid.NewString()}
	log := slog.With("pass", report.ID)

	defer func() {
		report.Took = time.Since(tstart)
	}()

	set, err := s.creds.Load(ctx)
	if err != nil {
		return report, stageErr(StageCredentials, err)
	}
	s.setCredentials(set)

	cursor, err := s.cursors.Load()
	if err != nil {
		return report, stageErr(StageCursor, err)
	}

	records, next, err := s.feed.Changes(ctx, s, cursor)
	if errors.Is(err, delta.ErrCursorExpired) && cursor != nil {
		log.Warn("saved cursor expired, enumerating from root", "capturedAt", cursor.CapturedAt)
		report.Resynced = true
		records, next, err = s.feed.Changes(ctx, s, nil)
	}
	if err != nil {
		return report, stageErr(StageChanges, err)
	}

	records = delta.Transferable(delta.Dedupe(records))
	report.Changes = len(records)

	if len(records) == 0 {
		log.Info("no changes since last pass")
		return report, s.saveCursor(report, next)
	}

	decisions, err := s.plan(ctx, records)
	if err != nil {
		return report, stageErr(StageInventory, err)
	}
	report.Planned = len(decisions)
	log.Info("pass planned", "changes", report.Changes, "transfers", report.Planned)

	var errs []error
	for _, d := range decisions {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		res, err := s.transfer.Transfer(ctx, s, d.Record)
		if err != nil {
			report.Failed++
			errs = append(errs, err)
			log.Error("transfer failed", "key", d.Record.Path, "reason", d.Reason, "kind", syncerr.KindOf(err), "error", err)
			if syncerr.Is(err, syncerr.KindAuthRejected) {
				break
			}
			continue
		}
		report.Transferred++
		report.Bytes += res.Size
	}

	if len(errs) > 0 {
		return report, stageErr(StageTransfer, errors.Join(errs...))
	}

	return report, s.saveCursor(report, next)
}

func (s *Session) saveCursor(report *PassReport, next delta.Cursor) error {
	if err := s.cursors.Save(next); err != nil {
		return stageErr(StageCursor, err)
	}
	report.CursorSaved = true
	return nil
}

// plan lists the bucket once, then heads only the keys that exist so the
// stored modification time can be compared.
func (s *Session) plan(ctx context.Context, records []delta.ChangeRecord) ([]reconcile.Decision, error) {
	objects, err := s.store.ListObjects(ctx)
	if err != nil {
		return nil, err
	}

	inventory := make(map[string]*blob.ObjectInfo, len(objects))
	for _, obj := range objects {
		inventory[obj.Key] = obj
	}

	lookup := func(ctx context.Context, key string) (*blob.ObjectInfo, error) {
		listed, ok := inventory[key]
		if !ok {
			return nil, nil
		}
		info, err := s.store.HeadObject(ctx, key)
		if err != nil {
			return nil, err
		}
		if info == nil {
			// deleted between list and head
			return nil, nil
		}
		if info.Size == nil {
			info.Size = listed.Size
		}
		return info, nil
	}

	return reconcile.Plan(ctx, records, lookup, s.transfer.ChunkSize(), s.filter)
}
