package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/billing-extract/pkg/models/domain"
	"github.com/de-tools/billing-extract/pkg/services/identity"
	"github.com/de-tools/billing-extract/pkg/services/window"
	"github.com/de-tools/billing-extract/pkg/store/duckdb"
	"github.com/de-tools/billing-extract/pkg/store/duckdb/archive"
	"github.com/de-tools/billing-extract/pkg/store/duckdb/cursor"
)

type fakeSources struct {
	stats     map[string][]domain.Statistic
	resources []domain.Resource
	flavors   []domain.Flavor
}

func (f *fakeSources) GetStatistics(_ context.Context, meter string, _ domain.Window) ([]domain.Statistic, error) {
	return f.stats[meter], nil
}

func (f *fakeSources) GetResources(_ context.Context) ([]domain.Resource, error) {
	return f.resources, nil
}

func (f *fakeSources) GetProject(_ context.Context, id string) (domain.IdentityEntry, error) {
	if id == "p-1" {
		return domain.IdentityEntry{ID: id, Name: "SNIC 2018/10-30"}, nil
	}
	return domain.IdentityEntry{}, identity.ErrNotFound
}

func (f *fakeSources) GetUser(_ context.Context, id string) (domain.IdentityEntry, error) {
	if id == "u-1" {
		return domain.IdentityEntry{ID: id, Name: "s11778"}, nil
	}
	return domain.IdentityEntry{}, identity.ErrNotFound
}

func (f *fakeSources) ListFlavors(_ context.Context) ([]domain.Flavor, error) {
	return f.flavors, nil
}

type fakeWriter struct {
	calls int
	fail  error
	last  *domain.RecordSet
}

func (w *fakeWriter) Write(_ context.Context, set *domain.RecordSet, end time.Time) (string, error) {
	w.calls++
	w.last = set
	if w.fail != nil {
		return "", w.fail
	}
	return "/data/records/" + end.UTC().Format("20060102T1504") + "Z.xml", nil
}

type controllerFixture struct {
	controller *Controller
	db         *sql.DB
	cursor     cursor.Store
	archive    archive.Store
	writer     *fakeWriter
}

func windowedStats(w domain.Window, meter string) []domain.Statistic {
	var max float64
	switch meter {
	case "vcpus":
		max = 4
	case "memory":
		max = 8192
	}
	return []domain.Statistic{{
		ResourceID:  "i-1",
		ProjectID:   "p-1",
		UserID:      "u-1",
		PeriodStart: w.Start,
		PeriodEnd:   w.End,
		Max:         max,
	}}
}

func setupController(t *testing.T, sources Sources) *controllerFixture {
	t.Helper()

	db, err := duckdb.NewDB(duckdb.Settings{DbPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cursorStore, err := cursor.NewStore(db)
	require.NoError(t, err)
	archiveStore, err := archive.NewStore(db)
	require.NoError(t, err)

	dir := t.TempDir()
	costsPath := filepath.Join(dir, "costs.json")
	require.NoError(t, os.WriteFile(costsPath, []byte(
		`{"regions": {"HPC2N": {"m1.large": 0.05, "storage.block": 0.001}}}`,
	), 0o644))

	writer := &fakeWriter{}
	c := NewController(
		Settings{
			Site:       "HPC2N",
			Region:     "HPC2N",
			Resource:   "SE-SNIC-SSC",
			CostsPath:  costsPath,
			LedgerPath: filepath.Join(dir, "deleted-volumes.tsv"),
		},
		db,
		cursorStore,
		archiveStore,
		func(context.Context) (Sources, error) { return sources, nil },
		nil,
		writer,
	)

	return &controllerFixture{
		controller: c,
		db:         db,
		cursor:     cursorStore,
		archive:    archiveStore,
		writer:     writer,
	}
}

func TestController_Run(t *testing.T) {
	start := time.Date(2023, 12, 18, 0, 0, 0, 0, time.UTC)
	w := domain.Window{Start: start, End: start.Add(time.Hour)}

	sources := &fakeSources{
		stats: map[string][]domain.Statistic{
			"vcpus":  windowedStats(w, "vcpus"),
			"memory": windowedStats(w, "memory"),
		},
		resources: []domain.Resource{
			{ID: "i-1", ProjectID: "p-1", UserID: "u-1", InstanceType: "m1.large", Zone: "nova"},
		},
		flavors: []domain.Flavor{{ID: "42", Name: "m1.large"}},
	}

	fix := setupController(t, sources)
	ctx := context.Background()
	require.NoError(t, fix.cursor.Advance(ctx, start))
	fix.controller.now = func() time.Time { return start.Add(3 * time.Hour) }

	summary, err := fix.controller.Run(ctx, RunOptions{Mode: window.ModeSingleStep})
	require.NoError(t, err)

	assert.False(t, summary.NoWork)
	assert.Equal(t, w, summary.Window)
	assert.Equal(t, 1, summary.ComputeRecords)
	assert.Equal(t, "/data/records/20231218T0100Z.xml", summary.OutputFile)
	assert.Equal(t, 1, fix.writer.calls)

	t.Run("cursor advanced to the window end", func(t *testing.T) {
		last, err := fix.cursor.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, w.End, *last)
	})

	t.Run("records archived", func(t *testing.T) {
		stats, err := fix.archive.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.RecordsCount)
	})

	t.Run("next run picks the adjacent window", func(t *testing.T) {
		summary, err := fix.controller.Run(ctx, RunOptions{Mode: window.ModeSingleStep})
		require.NoError(t, err)
		assert.Equal(t, w.End, summary.Window.Start)
		assert.Equal(t, w.End.Add(time.Hour), summary.Window.End)
	})
}

func TestController_DryRun(t *testing.T) {
	start := time.Date(2023, 12, 18, 0, 0, 0, 0, time.UTC)
	w := domain.Window{Start: start, End: start.Add(time.Hour)}

	sources := &fakeSources{
		stats: map[string][]domain.Statistic{
			"vcpus":  windowedStats(w, "vcpus"),
			"memory": windowedStats(w, "memory"),
		},
		resources: []domain.Resource{
			{ID: "i-1", ProjectID: "p-1", UserID: "u-1", InstanceType: "m1.large", Zone: "nova"},
		},
	}

	fix := setupController(t, sources)
	ctx := context.Background()
	require.NoError(t, fix.cursor.Advance(ctx, start))
	fix.controller.now = func() time.Time { return start.Add(3 * time.Hour) }

	summary, err := fix.controller.Run(ctx, RunOptions{Mode: window.ModeSingleStep, DryRun: true})
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 1, summary.ComputeRecords)
	assert.Empty(t, summary.OutputFile)
	assert.Zero(t, fix.writer.calls)

	// The cursor must not move on a dry run.
	last, err := fix.cursor.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, start, *last)

	stats, err := fix.archive.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.RecordsCount)
}

func TestController_NoWork(t *testing.T) {
	start := time.Date(2023, 12, 18, 0, 0, 0, 0, time.UTC)

	fix := setupController(t, nil)
	fix.controller.dial = func(context.Context) (Sources, error) {
		return nil, fmt.Errorf("dial must not happen on a no-work run")
	}
	ctx := context.Background()
	require.NoError(t, fix.cursor.Advance(ctx, start))
	fix.controller.now = func() time.Time { return start.Add(30 * time.Minute) }

	summary, err := fix.controller.Run(ctx, RunOptions{Mode: window.ModeSingleStep})
	require.NoError(t, err)
	assert.True(t, summary.NoWork)
}

func TestController_WriteFailureLeavesCursor(t *testing.T) {
	start := time.Date(2023, 12, 18, 0, 0, 0, 0, time.UTC)
	w := domain.Window{Start: start, End: start.Add(time.Hour)}

	sources := &fakeSources{
		stats: map[string][]domain.Statistic{
			"vcpus":  windowedStats(w, "vcpus"),
			"memory": windowedStats(w, "memory"),
		},
		resources: []domain.Resource{
			{ID: "i-1", ProjectID: "p-1", UserID: "u-1", InstanceType: "m1.large", Zone: "nova"},
		},
	}

	fix := setupController(t, sources)
	fix.writer.fail = errors.New("disk full")
	ctx := context.Background()
	require.NoError(t, fix.cursor.Advance(ctx, start))
	fix.controller.now = func() time.Time { return start.Add(3 * time.Hour) }

	_, err := fix.controller.Run(ctx, RunOptions{Mode: window.ModeSingleStep})
	require.Error(t, err)

	last, err := fix.cursor.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, start, *last)
}

type fakeObjects struct {
	buckets []domain.ObjectBucket
}

func (f *fakeObjects) BucketStats(context.Context) ([]domain.ObjectBucket, error) {
	return f.buckets, nil
}

func TestController_ObjectStorage(t *testing.T) {
	start := time.Date(2023, 12, 18, 0, 0, 0, 0, time.UTC)

	fix := setupController(t, &fakeSources{})
	fix.controller.objects = &fakeObjects{buckets: []domain.ObjectBucket{
		{ID: "b-1", Name: "backups", Owner: "u-1", SizeKB: 1 << 20, ObjectCount: 42},
	}}
	ctx := context.Background()
	require.NoError(t, fix.cursor.Advance(ctx, start))
	fix.controller.now = func() time.Time { return start.Add(3 * time.Hour) }

	summary, err := fix.controller.Run(ctx, RunOptions{Mode: window.ModeSingleStep})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.StorageRecords)
	require.NotNil(t, fix.writer.last)
	require.Len(t, fix.writer.last.Storage, 1)
	assert.Equal(t, domain.StorageTypeObject, fix.writer.last.Storage[0].StorageType)
	assert.Equal(t, int64(42), fix.writer.last.Storage[0].FileCount)
}
