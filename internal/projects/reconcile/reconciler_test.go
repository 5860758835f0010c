package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherstudio/sandbox-backend/internal/blobstore"
	"github.com/cipherstudio/sandbox-backend/internal/projects/domain"
	"github.com/cipherstudio/sandbox-backend/internal/projects/intents"
)

type fakeCatalog struct {
	projects map[string]bool
	files    []domain.FileRecord
}

func (f *fakeCatalog) Delete(_ context.Context, id string) (bool, error) {
	existed := f.projects[id]
	delete(f.projects, id)
	return existed, nil
}

func (f *fakeCatalog) List(_ context.Context, projectID string) ([]domain.FileRecord, error) {
	var out []domain.FileRecord
	for _, rec := range f.files {
		if rec.ProjectID == projectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeCatalog) UpsertFile(_ context.Context, rec *domain.FileRecord) error {
	for i := range f.files {
		if f.files[i].BlobKey != nil && *f.files[i].BlobKey == *rec.BlobKey {
			f.files[i] = *rec
			return nil
		}
	}
	f.files = append(f.files, *rec)
	return nil
}

type fixture struct {
	log     *intents.Log
	blobs   *blobstore.Memory
	catalog *fakeCatalog
	rec     *Reconciler
	start   time.Time
}

func newFixture(t *testing.T) *fixture {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	log := intents.NewLog(client).WithClock(func() time.Time { return start })
	blobs := blobstore.NewMemory()
	catalog := &fakeCatalog{projects: map[string]bool{}}
	rec := New(log, catalog, catalog, blobs, 15*time.Minute).
		WithClock(func() time.Time { return start.Add(20 * time.Minute) })

	return &fixture{log: log, blobs: blobs, catalog: catalog, rec: rec, start: start}
}

func TestRunOnce_RollsBackAbandonedCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.blobs.CreateContainer(ctx, "project-1"))
	_, err := f.blobs.Put(ctx, "project-1", "App.js", []byte("x"), "text/plain")
	require.NoError(t, err)
	f.catalog.projects["p1"] = true

	in, err := f.log.Begin(ctx, intents.OpCreate, "p1", "project-1")
	require.NoError(t, err)
	require.NoError(t, f.log.AddBlob(ctx, in.ID, "App.js"))
	require.NoError(t, f.log.AddBlob(ctx, in.ID, "never-written.js"))

	res, err := f.rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Examined: 1, RolledBack: 1}, res)

	assert.False(t, f.blobs.HasContainer("project-1"))
	assert.False(t, f.catalog.projects["p1"])
	_, err = f.log.Get(ctx, in.ID)
	assert.ErrorIs(t, err, intents.ErrIntentNotFound)
}

func TestRunOnce_ToleratesMissingPieces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// intent begun but the process died before creating anything
	_, err := f.log.Begin(ctx, intents.OpCreate, "ghost", "project-ghost")
	require.NoError(t, err)

	res, err := f.rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RolledBack)
}

func TestRunOnce_LeavesFreshIntents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in, err := f.log.Begin(ctx, intents.OpCreate, "p1", "project-1")
	require.NoError(t, err)

	f.rec.WithClock(func() time.Time { return f.start.Add(5 * time.Minute) })
	res, err := f.rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Examined)

	_, err = f.log.Get(ctx, in.ID)
	assert.NoError(t, err)
}

func TestRunOnce_RepairsAbandonedUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.blobs.CreateContainer(ctx, "project-1"))
	_, err := f.blobs.Put(ctx, "project-1", "a.js", []byte("abc"), "text/plain")
	require.NoError(t, err)
	_, err = f.blobs.Put(ctx, "project-1", "b.js", []byte("orphan"), "text/plain")
	require.NoError(t, err)
	_, err = f.blobs.Put(ctx, "project-1", "c.js", []byte("keep"), "text/plain")
	require.NoError(t, err)

	key, size := "a.js", int64(1)
	f.catalog.projects["p1"] = true
	f.catalog.files = []domain.FileRecord{{ID: "f1", ProjectID: "p1", Name: "a.js", Kind: domain.KindFile, BlobKey: &key, SizeInBytes: &size}}

	in, err := f.log.Begin(ctx, intents.OpUpdate, "p1", "project-1")
	require.NoError(t, err)
	require.NoError(t, f.log.AddBlob(ctx, in.ID, "a.js"))
	require.NoError(t, f.log.AddBlob(ctx, in.ID, "b.js"))

	res, err := f.rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RolledBack)

	assert.True(t, f.catalog.projects["p1"], "update rollback keeps the project")
	assert.Equal(t, []string{"a.js", "c.js"}, f.blobs.Keys("project-1"))
	assert.Equal(t, int64(3), *f.catalog.files[0].SizeInBytes)
}
