// Package reconcile rolls back saves that were abandoned halfway, using the
// intents journaled in Redis.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cipherstudio/sandbox-backend/internal/blobstore"
	"github.com/cipherstudio/sandbox-backend/internal/projects/domain"
	"github.com/cipherstudio/sandbox-backend/internal/projects/intents"
)

type IntentStore interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]intents.Intent, error)
	Remove(ctx context.Context, intentID string) error
}

type ProjectDeleter interface {
	Delete(ctx context.Context, id string) (bool, error)
}

type FileStore interface {
	List(ctx context.Context, projectID string) ([]domain.FileRecord, error)
	UpsertFile(ctx context.Context, rec *domain.FileRecord) error
}

// Result summarises one pass.
type Result struct {
	Examined   int
	RolledBack int
	Failed     int
}

type Reconciler struct {
	intents    IntentStore
	projects   ProjectDeleter
	files      FileStore
	blobs      blobstore.Store
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger
}

func New(in IntentStore, projects ProjectDeleter, files FileStore, blobs blobstore.Store, staleAfter time.Duration) *Reconciler {
	return &Reconciler{
		intents:    in,
		projects:   projects,
		files:      files,
		blobs:      blobs,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        slog.Default().With("component", "reconciler"),
	}
}

// WithClock overrides the time source. Used by tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// RunOnce rolls back every intent older than the staleness threshold. A
// failure on one intent does not stop the others; that intent is retried on
// the next pass.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	stale, err := r.intents.ListStale(ctx, r.now().Add(-r.staleAfter))
	if err != nil {
		return res, err
	}

	for _, in := range stale {
		res.Examined++
		if err := r.rollback(ctx, in); err != nil {
			res.Failed++
			r.log.Error("rollback failed", "intent_id", in.ID, "project_id", in.ProjectID, "error", err)
			continue
		}
		if err := r.intents.Remove(ctx, in.ID); err != nil {
			res.Failed++
			r.log.Error("failed to remove intent", "intent_id", in.ID, "error", err)
			continue
		}
		res.RolledBack++
		r.log.Info("rolled back abandoned save",
			"intent_id", in.ID, "operation", in.Operation, "project_id", in.ProjectID, "blobs", len(in.BlobKeys))
	}
	return res, nil
}

func (r *Reconciler) rollback(ctx context.Context, in intents.Intent) error {
	switch in.Operation {
	case intents.OpCreate:
		return r.rollbackCreate(ctx, in)
	case intents.OpUpdate:
		return r.repairUpdate(ctx, in)
	default:
		return fmt.Errorf("unknown operation %q", in.Operation)
	}
}

// rollbackCreate removes everything a failed create may have produced.
// Pieces that never got written are skipped.
func (r *Reconciler) rollbackCreate(ctx context.Context, in intents.Intent) error {
	for _, key := range in.BlobKeys {
		if err := r.blobs.Delete(ctx, in.Container, key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("delete blob %q: %w", key, err)
		}
	}
	if err := r.blobs.DeleteContainer(ctx, in.Container); err != nil {
		return fmt.Errorf("delete container: %w", err)
	}
	if _, err := r.projects.Delete(ctx, in.ProjectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// repairUpdate cannot restore overwritten bytes, so it makes the catalog
// agree with storage instead: blobs without a record are removed and
// records whose blob was rewritten get their size refreshed.
func (r *Reconciler) repairUpdate(ctx context.Context, in intents.Intent) error {
	recs, err := r.files.List(ctx, in.ProjectID)
	if err != nil {
		return err
	}
	byKey := make(map[string]domain.FileRecord, len(recs))
	for _, rec := range recs {
		if rec.Kind == domain.KindFile && rec.BlobKey != nil {
			byKey[*rec.BlobKey] = rec
		}
	}

	for _, key := range in.BlobKeys {
		rec, ok := byKey[key]
		if !ok {
			if err := r.blobs.Delete(ctx, in.Container, key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
				return fmt.Errorf("delete orphan %q: %w", key, err)
			}
			continue
		}

		data, err := r.blobs.Get(ctx, in.Container, key)
		if errors.Is(err, blobstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %q: %w", key, err)
		}
		size := int64(len(data))
		if rec.SizeInBytes != nil && *rec.SizeInBytes == size {
			continue
		}
		rec.SizeInBytes = &size
		if err := r.files.UpsertFile(ctx, &rec); err != nil {
			return fmt.Errorf("refresh record %q: %w", key, err)
		}
	}
	return nil
}
