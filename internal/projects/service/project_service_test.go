package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherstudio/sandbox-backend/internal/blobstore"
	"github.com/cipherstudio/sandbox-backend/internal/projects/domain"
	"github.com/cipherstudio/sandbox-backend/internal/projects/intents"
)

// memCatalog is an in-memory stand-in for both catalog repositories that
// enforces the same uniqueness rules as the schema.
type memCatalog struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
	files    map[string]*domain.FileRecord
	seq      int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{projects: map[string]*domain.Project{}, files: map[string]*domain.FileRecord{}}
}

func (m *memCatalog) Create(_ context.Context, p *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.projects {
		if existing.Slug == p.Slug {
			return domain.ErrDuplicateKey
		}
	}
	m.seq++
	p.CreatedAt = time.Unix(int64(m.seq), 0)
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *memCatalog) Get(_ context.Context, id string) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memCatalog) ListByOwner(_ context.Context, ownerID int64) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Project
	for _, p := range m.projects {
		if p.OwnedBy(ownerID) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memCatalog) UpdateMeta(_ context.Context, id string, name, description *string) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if name != nil {
		p.Name = *name
	}
	if description != nil {
		p.Description = *description
	}
	p.UpdatedAt = p.UpdatedAt.Add(time.Second)
	cp := *p
	return &cp, nil
}

func (m *memCatalog) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return false, nil
	}
	delete(m.projects, id)
	for fid, f := range m.files {
		if f.ProjectID == id {
			delete(m.files, fid)
		}
	}
	return true, nil
}

func (m *memCatalog) UpsertFile(_ context.Context, rec *domain.FileRecord) error {
	rec.Kind = domain.KindFile
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[rec.ProjectID]; !ok {
		return domain.ErrNotFound
	}
	for _, f := range m.files {
		if f.ProjectID == rec.ProjectID && f.Kind == domain.KindFile && *f.BlobKey == *rec.BlobKey {
			rec.ID, rec.CreatedAt = f.ID, f.CreatedAt
			cp := *rec
			m.files[f.ID] = &cp
			return nil
		}
	}
	m.seq++
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Unix(int64(m.seq), 0)
	cp := *rec
	m.files[rec.ID] = &cp
	return nil
}

func (m *memCatalog) UpsertFolder(_ context.Context, rec *domain.FileRecord) error {
	rec.Kind = domain.KindFolder
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.ProjectID == rec.ProjectID && f.Kind == domain.KindFolder && f.Name == rec.Name {
			rec.ID = f.ID
			return nil
		}
	}
	m.seq++
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Unix(int64(m.seq), 0)
	cp := *rec
	m.files[rec.ID] = &cp
	return nil
}

func (m *memCatalog) List(_ context.Context, projectID string) ([]domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FileRecord
	for _, f := range m.files {
		if f.ProjectID == projectID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *memCatalog) fileCount(projectID string) int {
	recs, _ := m.List(context.Background(), projectID)
	return len(recs)
}

// countingStore counts Get calls and can fail Put on a chosen key.
type countingStore struct {
	blobstore.Store
	gets    atomic.Int32
	failPut string
}

func (c *countingStore) Get(ctx context.Context, container, key string) ([]byte, error) {
	c.gets.Add(1)
	return c.Store.Get(ctx, container, key)
}

func (c *countingStore) Put(ctx context.Context, container, key string, data []byte, ct string) (string, error) {
	if key == c.failPut {
		return "", blobstore.ErrStorageUnavailable
	}
	return c.Store.Put(ctx, container, key, data, ct)
}

type fixture struct {
	svc     *ProjectService
	catalog *memCatalog
	mem     *blobstore.Memory
	blobs   *countingStore
	log     *intents.Log
}

func newFixture(t *testing.T) *fixture {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	catalog := newMemCatalog()
	mem := blobstore.NewMemory()
	blobs := &countingStore{Store: mem}
	log := intents.NewLog(client)
	return &fixture{
		svc:     NewProjectService(catalog, catalog, blobs, log),
		catalog: catalog,
		mem:     mem,
		blobs:   blobs,
		log:     log,
	}
}

func (f *fixture) pending(t *testing.T) []intents.Intent {
	out, err := f.log.ListStale(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	return out
}

func owner(id int64) *int64 { return &id }

func sampleFiles() []domain.FileInput {
	return []domain.FileInput{
		{Name: "App.js", Content: "export default () => null"},
		{Name: "src/index.js", Content: "import App from '../App'"},
		{Name: "src/styles.css", Content: "body{}"},
		{Name: "README.md", Content: "# demo", Language: "markdown"},
	}
}

func TestSaveThenLoad_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SaveProject(ctx, domain.SaveRequest{OwnerID: owner(1), Name: "My Demo", Files: sampleFiles()})
	require.NoError(t, err)
	assert.Regexp(t, `^my-demo-\d+$`, p.Slug)
	assert.True(t, f.mem.HasContainer(p.StorageContainer))
	assert.Empty(t, f.pending(t))

	loaded, err := f.svc.LoadProjectFiles(ctx, p.ID, owner(1))
	require.NoError(t, err)
	assert.Equal(t, p.ID, loaded.Project.ID)

	byPath := map[string]domain.LoadedFile{}
	for _, lf := range loaded.Files {
		byPath[lf.Path] = lf
	}
	require.Len(t, byPath, 5) // four files plus the src folder

	assert.Equal(t, domain.KindFolder, byPath["src"].Kind)
	assert.Nil(t, byPath["src"].BlobKey)

	for _, in := range sampleFiles() {
		lf, ok := byPath[in.Name]
		require.True(t, ok, in.Name)
		assert.Equal(t, in.Content, lf.Content)
		assert.Equal(t, int64(len(in.Content)), *lf.SizeInBytes)
		assert.Equal(t, in.Name, *lf.BlobKey)
		assert.False(t, lf.Missing)
	}
	assert.Equal(t, "css", byPath["src/styles.css"].Language)
	assert.Equal(t, "markdown", byPath["README.md"].Language)
	assert.Equal(t, "javascript", byPath["App.js"].Language)
	assert.Equal(t, byPath["src"].ID, *byPath["src/index.js"].ParentID)
}

func TestSaveProject_EmptyFileList(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.CreateProject(context.Background(), 4, "Empty", "nothing yet")
	require.NoError(t, err)
	assert.True(t, f.mem.HasContainer(p.StorageContainer))
	assert.Equal(t, 0, f.catalog.fileCount(p.ID))
}

func TestSaveProject_DistinctContainers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tick := time.UnixMilli(1700000000000)
	f.svc.WithClock(func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	})

	a, err := f.svc.SaveProject(ctx, domain.SaveRequest{Name: "same"})
	require.NoError(t, err)
	b, err := f.svc.SaveProject(ctx, domain.SaveRequest{Name: "same"})
	require.NoError(t, err)
	assert.NotEqual(t, a.StorageContainer, b.StorageContainer)
	assert.NotEqual(t, a.Slug, b.Slug)
}

func TestSaveProject_SlugCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fixed := time.UnixMilli(1700000000000)
	f.svc.WithClock(func() time.Time { return fixed })

	_, err := f.svc.SaveProject(ctx, domain.SaveRequest{Name: "Demo"})
	require.NoError(t, err)
	_, err = f.svc.SaveProject(ctx, domain.SaveRequest{Name: "demo"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestSaveProject_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveProject(ctx, domain.SaveRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.SaveProject(ctx, domain.SaveRequest{Name: "x", Files: []domain.FileInput{{Name: "a/b/c.js"}}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.SaveProject(ctx, domain.SaveRequest{Name: "x", Files: []domain.FileInput{{Name: ""}}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.SaveProject(ctx, domain.SaveRequest{Name: "x", Files: []domain.FileInput{
		{Name: "App.js", Content: "x=1"},
		{Name: " App.js", Content: "x=2"},
	}})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), `duplicate file "App.js"`)

	// nothing was written for rejected requests
	assert.Empty(t, f.pending(t))
	assert.Empty(t, f.catalog.projects)
}

func TestSaveProject_FailureLeavesPendingIntent(t *testing.T) {
	f := newFixture(t)
	f.blobs.failPut = "src/index.js"

	_, err := f.svc.SaveProject(context.Background(), domain.SaveRequest{OwnerID: owner(1), Name: "Broken", Files: sampleFiles()})
	require.ErrorIs(t, err, blobstore.ErrStorageUnavailable)

	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, intents.OpCreate, pending[0].Operation)
	assert.ElementsMatch(t, []string{"App.js", "src/index.js"}, pending[0].BlobKeys)
	assert.Equal(t, []string{"App.js"}, f.mem.Keys(pending[0].Container))
}

func TestLoadProjectFiles_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SaveProject(ctx, domain.SaveRequest{OwnerID: owner(1), Name: "Private", Files: sampleFiles()})
	require.NoError(t, err)

	before := f.blobs.gets.Load()
	_, err = f.svc.LoadProjectFiles(ctx, p.ID, owner(2))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.LoadProjectFiles(ctx, p.ID, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, before, f.blobs.gets.Load(), "no blob reads before authorization")

	_, err = f.svc.LoadProjectFiles(ctx, uuid.NewString(), owner(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnonymousProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SaveProject(ctx, domain.SaveRequest{Name: "Anon", Files: []domain.FileInput{{Name: "a.js", Content: "1"}}})
	require.NoError(t, err)
	assert.Nil(t, p.OwnerID)

	loaded, err := f.svc.LoadProjectFiles(ctx, p.ID, nil)
	require.NoError(t, err)
	require.Len(t, loaded.Files, 1)

	_, err = f.svc.LoadProjectFiles(ctx, p.ID, owner(9))
	require.NoError(t, err)

	name := "mine now"
	_, err = f.svc.UpdateProject(ctx, p.ID, owner(9), domain.UpdateRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteProject(ctx, p.ID, owner(9)), domain.ErrForbidden)

	listed, err := f.svc.ListProjects(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestLoadProjectFiles_MissingBlobDegrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SaveProject(ctx, domain.SaveRequest{OwnerID: owner(1), Name: "Gap", Files: sampleFiles()})
	require.NoError(t, err)
	require.NoError(t, f.mem.Delete(ctx, p.StorageContainer, "App.js"))

	loaded, err := f.svc.LoadProjectFiles(ctx, p.ID, owner(1))
	require.NoError(t, err)
	for _, lf := range loaded.Files {
		if lf.Path == "App.js" {
			assert.True(t, lf.Missing)
			assert.Equal(t, "", lf.Content)
		} else {
			assert.False(t, lf.Missing, lf.Path)
		}
	}
}

func TestUpdateProject_OverwritesFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SaveProject(ctx, domain.SaveRequest{OwnerID: owner(1), Name: "Edit", Files: sampleFiles()})
	require.NoError(t, err)
	records := f.catalog.fileCount(p.ID)

	name, desc := " Edited ", "now with more"
	updated, err := f.svc.UpdateProject(ctx, p.ID, owner(1), domain.UpdateRequest{
		Name:        &name,
		Description: &desc,
		Files:       []domain.FileInput{{Name: "src/index.js", Content: "changed"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Name)
	assert.Equal(t, p.StorageContainer, updated.StorageContainer)
	assert.Equal(t, records, f.catalog.fileCount(p.ID), "replayed key must not add records")
	assert.Empty(t, f.pending(t))

	loaded, err := f.svc.LoadProjectFiles(ctx, p.ID, owner(1))
	require.NoError(t, err)
	for _, lf := range loaded.Files {
		if lf.Path == "src/index.js" {
			assert.Equal(t, "changed", lf.Content)
			assert.Equal(t, int64(7), *lf.SizeInBytes)
		}
	}

	_, err = f.svc.UpdateProject(ctx, p.ID, owner(2), domain.UpdateRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	blank := ""
	_, err = f.svc.UpdateProject(ctx, p.ID, owner(1), domain.UpdateRequest{Name: &blank})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.UpdateProject(ctx, p.ID, owner(1), domain.UpdateRequest{Files: []domain.FileInput{
		{Name: "src/index.js", Content: "a"},
		{Name: "src/index.js", Content: "b"},
	}})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, f.pending(t))
}

func TestDeleteProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SaveProject(ctx, domain.SaveRequest{OwnerID: owner(1), Name: "Doomed", Files: sampleFiles()})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteProject(ctx, p.ID, owner(2)), domain.ErrForbidden)

	require.NoError(t, f.svc.DeleteProject(ctx, p.ID, owner(1)))
	assert.False(t, f.mem.HasContainer(p.StorageContainer))
	assert.Equal(t, 0, f.catalog.fileCount(p.ID))

	_, err = f.svc.GetProject(ctx, p.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListProjects_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProject(ctx, 1, "first", "")
	require.NoError(t, err)
	_, err = f.svc.CreateProject(ctx, 1, "second", "")
	require.NoError(t, err)
	_, err = f.svc.CreateProject(ctx, 2, "other", "")
	require.NoError(t, err)

	list, err := f.svc.ListProjects(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Name)
}
