package reconcile

import (
	"context"
	"fmt"

	"github.com/stonefire/cloudsync/internal/blob"
	"github.com/stonefire/cloudsync/internal/delta"
)

type Strategy int

const (
	SingleShot Strategy = iota
	Multipart
)

func (s Strategy) String() string {
	if s == Multipart {
		return "multipart"
	}
	return "single"
}

// Reason explains a transfer decision in logs.
type Reason string

const (
	ReasonMissing      Reason = "missing"
	ReasonModified     Reason = "modified"
	ReasonSizeMismatch Reason = "size_mismatch"
	ReasonUnchanged    Reason = "unchanged"
)

// Decide compares a source record with its destination match.
// The stored modification time wins when present; otherwise sizes are compared,
// except that a zero-size source never triggers a transfer on size alone.
func Decide(rec delta.ChangeRecord, dst *blob.ObjectInfo) (bool, Reason) {
	if dst == nil {
		return true, ReasonMissing
	}

	if dst.StoredModifiedAt != nil {
		if *dst.StoredModifiedAt != rec.ModifiedUnix() {
			return true, ReasonModified
		}
		return false, ReasonUnchanged
	}

	if rec.Size != 0 && (dst.Size == nil || *dst.Size != rec.Size) {
		return true, ReasonSizeMismatch
	}
	return false, ReasonUnchanged
}

// NeedsTransfer reports whether rec must be copied over dst (nil when absent).
func NeedsTransfer(rec delta.ChangeRecord, dst *blob.ObjectInfo) bool {
	ok, _ := Decide(rec, dst)
	return ok
}

// StrategyFor picks single-shot for files that fit one chunk, multipart otherwise.
func StrategyFor(rec delta.ChangeRecord, chunkSize int64) Strategy {
	if rec.Size <= chunkSize {
		return SingleShot
	}
	return Multipart
}

type Decision struct {
	Record   delta.ChangeRecord
	Strategy Strategy
	Reason   Reason
}

// Lookup finds the destination match for a key, or nil.
type Lookup func(ctx context.Context, key string) (*blob.ObjectInfo, error)

// Plan returns the ordered transfers needed for the given records.
// Non-transferable and excluded records are skipped.
func Plan(ctx context.Context, records []delta.ChangeRecord, lookup Lookup, chunkSize int64, filter *Filter) ([]Decision, error) {
	var decisions []Decision
	for _, rec := range records {
		if !rec.Transferable() || filter.Excluded(rec.Path) {
			continue
		}

		dst, err := lookup(ctx, rec.Path)
		if err != nil {
			return nil, fmt.Errorf("lookup %q: %w", rec.Path, err)
		}

		ok, reason := Decide(rec, dst)
		if !ok {
			continue
		}
		decisions = append(decisions, Decision{
			Record:   rec,
			Strategy: StrategyFor(rec, chunkSize),
			Reason:   reason,
		})
	}
	return decisions, nil
}
